package usecase

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"VolLens/internal/domain/models"
	domrepo "VolLens/internal/domain/repository"
	"VolLens/internal/services/analytics"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(i int) time.Time { return t0.AddDate(0, 0, i) }

// memStore is an in-memory MarketStore keyed by symbol.
type memStore struct {
	mu        sync.Mutex
	bars      map[string]models.BarSeries
	sentiment []models.SentimentPoint
	err       error
}

func newMemStore() *memStore { return &memStore{bars: map[string]models.BarSeries{}} }

func (m *memStore) GetBars(_ context.Context, symbol string, from, to time.Time, _ domrepo.Timeframe) (models.BarSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.BarSeries{}, m.err
	}
	s := m.bars[symbol]
	out := s
	out.Bars = nil
	for _, b := range s.Bars {
		if !b.Time.Before(from) && !b.Time.After(to) {
			out.Bars = append(out.Bars, b)
		}
	}
	return out, nil
}

func (m *memStore) GetLatestNBars(_ context.Context, symbol string, n int, _ domrepo.Timeframe) (models.BarSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.BarSeries{}, m.err
	}
	return m.bars[symbol].Tail(n), nil
}

func (m *memStore) GetSentiment(_ context.Context, symbol string, from, to time.Time) ([]models.SentimentPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SentimentPoint
	for _, p := range m.sentiment {
		if (p.Symbol == symbol || p.Symbol == "") && !p.Time.Before(from) && !p.Time.After(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) StoreBars(_ context.Context, symbol string, tf domrepo.Timeframe, bars []models.PriceBar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	s := m.bars[symbol]
	s.Symbol, s.Timeframe, s.Fields = symbol, string(tf), models.FieldsAll
	s.Bars = append(s.Bars, bars...)
	sort.Slice(s.Bars, func(i, j int) bool { return s.Bars[i].Time.Before(s.Bars[j].Time) })
	m.bars[symbol] = s
	return nil
}

func (m *memStore) StoreSentiment(_ context.Context, pts []models.SentimentPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sentiment = append(m.sentiment, pts...)
	return nil
}

func (m *memStore) Health(context.Context) error { return nil }
func (m *memStore) Close() error                 { return nil }

// countingMetrics records calls for assertions.
type countingMetrics struct {
	mu       sync.Mutex
	computed map[string]int
	noResult map[string]string
	errs     map[string]int
	latest   map[string]float64
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		computed: map[string]int{},
		noResult: map[string]string{},
		errs:     map[string]int{},
		latest:   map[string]float64{},
	}
}

func (c *countingMetrics) RecordComputation(metric string, _ float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.computed[metric]++
}

func (c *countingMetrics) RecordNoResult(metric, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noResult[metric] = reason
}

func (c *countingMetrics) RecordError(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[kind]++
}

func (c *countingMetrics) RecordLatestVolatility(symbol, kind string, v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest[symbol+"/"+kind] = v
}

// walk builds n daily OHLCV bars whose log returns are driven by drive (may be nil).
func walk(symbol string, n int, seed int64, drive []float64) models.BarSeries {
	rng := rand.New(rand.NewSource(seed))
	s := models.BarSeries{Symbol: symbol, Timeframe: "1d", Fields: models.FieldsAll}
	price := 100.0
	for i := 0; i < n; i++ {
		r := rng.NormFloat64() * 0.002
		if drive != nil && i < len(drive) {
			r += drive[i]
		}
		open := price
		price *= math.Exp(r)
		hi := math.Max(open, price) * (1 + 0.004*rng.Float64())
		lo := math.Min(open, price) * (1 - 0.004*rng.Float64())
		s.Bars = append(s.Bars, models.PriceBar{
			Time: day(i), Open: open, High: hi, Low: lo, Close: price, Volume: 1000, OpenInterest: 0,
		})
	}
	return s
}

// closeOnly strips everything but closes from the schema.
func closeOnly(s models.BarSeries) models.BarSeries {
	out := s
	out.Fields = models.FieldSet(models.FieldClose)
	out.Bars = make([]models.PriceBar, len(s.Bars))
	for i, b := range s.Bars {
		out.Bars[i] = models.PriceBar{Time: b.Time, Open: math.NaN(), High: math.NaN(), Low: math.NaN(), Close: b.Close, Volume: math.NaN(), OpenInterest: math.NaN()}
	}
	return out
}

func newAnalyzer(store domrepo.MarketStore, m domrepo.Metrics) *MarketAnalyzer {
	bank := NewVolatilityBank(analytics.VolatilityConfig{Window: 20, Annualize: true})
	classifier := analytics.NewRegimeClassifier(analytics.RegimeConfig{K: 2, Window: 20, Seed: 42}, bank.For(domrepo.TF1d))
	engine, err := analytics.NewCorrelationEngine(analytics.CorrelationConfig{})
	if err != nil {
		panic(err)
	}
	a := NewMarketAnalyzer(store, bank, classifier, engine, m)
	a.SetCorrelationDefaults(1, 0)
	return a
}

var errBoom = errors.New("boom")

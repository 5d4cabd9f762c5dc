package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolLens/internal/domain/models"
	domrepo "VolLens/internal/domain/repository"
	icache "VolLens/internal/service/cache"
	"VolLens/internal/service/ratelimit"
	"VolLens/internal/services/analytics"
	"VolLens/internal/usecase"
	xhttp "VolLens/pkg/http"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeStore struct {
	bars      models.BarSeries
	sentiment []models.SentimentPoint
	err       error
	calls     int
}

func (f *fakeStore) GetBars(_ context.Context, _ string, from, to time.Time, _ domrepo.Timeframe) (models.BarSeries, error) {
	f.calls++
	if f.err != nil {
		return models.BarSeries{}, f.err
	}
	out := f.bars
	out.Bars = nil
	for _, b := range f.bars.Bars {
		if !b.Time.Before(from) && !b.Time.After(to) {
			out.Bars = append(out.Bars, b)
		}
	}
	return out, nil
}

func (f *fakeStore) GetLatestNBars(_ context.Context, symbol string, n int, _ domrepo.Timeframe) (models.BarSeries, error) {
	f.calls++
	if f.err != nil {
		return models.BarSeries{}, f.err
	}
	if symbol != f.bars.Symbol {
		return models.BarSeries{Symbol: symbol}, nil
	}
	return f.bars.Tail(n), nil
}

func (f *fakeStore) GetSentiment(context.Context, string, time.Time, time.Time) ([]models.SentimentPoint, error) {
	return f.sentiment, f.err
}

func (f *fakeStore) StoreBars(context.Context, string, domrepo.Timeframe, []models.PriceBar) error {
	return nil
}

func (f *fakeStore) StoreSentiment(context.Context, []models.SentimentPoint) error { return nil }
func (f *fakeStore) Health(context.Context) error                                 { return nil }
func (f *fakeStore) Close() error                                                 { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordComputation(string, float64)              {}
func (nopMetrics) RecordNoResult(string, string)                  {}
func (nopMetrics) RecordError(string)                             {}
func (nopMetrics) RecordLatestVolatility(string, string, float64) {}

// zigzag builds n daily bars alternating between calm and wide stretches.
func zigzag(n int) models.BarSeries {
	s := models.BarSeries{Symbol: "NIFTY", Timeframe: "1d", Fields: models.FieldsAll}
	price := 100.0
	for i := 0; i < n; i++ {
		amp := 0.002
		if (i/40)%2 == 1 {
			amp = 0.02
		}
		r := amp * math.Sin(float64(i)*1.7)
		open := price
		price *= math.Exp(r)
		s.Bars = append(s.Bars, models.PriceBar{
			Time:  t0.AddDate(0, 0, i),
			Open:  open,
			High:  math.Max(open, price) * (1 + amp),
			Low:   math.Min(open, price) * (1 - amp),
			Close: price, Volume: 1000, OpenInterest: math.NaN(),
		})
	}
	return s
}

func newTestServer(t *testing.T, store *fakeStore) (*echo.Echo, *AnalysisHandler) {
	t.Helper()
	bank := usecase.NewVolatilityBank(analytics.VolatilityConfig{Window: 20, Annualize: true})
	classifier := analytics.NewRegimeClassifier(analytics.RegimeConfig{K: 2, Window: 20, Seed: 42}, bank.For(domrepo.TF1d))
	engine, err := analytics.NewCorrelationEngine(analytics.CorrelationConfig{})
	require.NoError(t, err)
	an := usecase.NewMarketAnalyzer(store, bank, classifier, engine, nopMetrics{})
	h := NewAnalysisHandler(an, usecase.NewSnapshotUseCase(an), usecase.NewBarsUseCase(store), nil)
	e := echo.New()
	h.RegisterRoutes(e)
	return e, h
}

func get(e *echo.Echo, target string) (*httptest.ResponseRecorder, xhttp.APIResponse) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var body xhttp.APIResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestAnalysisRoutes(t *testing.T) {
	store := &fakeStore{bars: zigzag(200)}
	e, _ := newTestServer(t, store)

	cases := []struct {
		name   string
		target string
		status int
	}{
		{"bars latest", "/api/bars?symbol=NIFTY&n=10", http.StatusOK},
		{"bars range", "/api/bars?symbol=NIFTY&from=2024-01-05&to=2024-01-10", http.StatusOK},
		{"bars bad range", "/api/bars?symbol=NIFTY&from=2024-01-10&to=2024-01-05", http.StatusBadRequest},
		{"bars bad time", "/api/bars?symbol=NIFTY&from=yesterday&to=2024-01-05", http.StatusBadRequest},
		{"volatility", "/api/volatility?symbol=NIFTY&kind=gk&window=10", http.StatusOK},
		{"volatility missing symbol", "/api/volatility?kind=hv", http.StatusBadRequest},
		{"volatility bad kind", "/api/volatility?symbol=NIFTY&kind=yang_zhang", http.StatusBadRequest},
		{"historical window of one return", "/api/volatility?symbol=NIFTY&kind=hv&window=2", http.StatusBadRequest},
		{"parkinson window two", "/api/volatility?symbol=NIFTY&kind=pk&window=2", http.StatusOK},
		{"cone period too short", "/api/cone?symbol=NIFTY&period=2", http.StatusBadRequest},
		{"cone", "/api/cone?symbol=NIFTY&period=10&period=30", http.StatusOK},
		{"cone summary", "/api/cone?symbol=NIFTY&summary=true", http.StatusOK},
		{"regime", "/api/regime?symbol=NIFTY", http.StatusOK},
		{"regime too few bars", "/api/regime?symbol=NIFTY&n=15", http.StatusUnprocessableEntity},
		{"correlation without sentiment", "/api/correlation?symbol=NIFTY", http.StatusUnprocessableEntity},
		{"correlation bad target", "/api/correlation?symbol=NIFTY&target=volume", http.StatusBadRequest},
		{"snapshot", "/api/snapshot?symbol=NIFTY", http.StatusOK},
		{"unknown symbol", "/api/regime?symbol=BANKNIFTY", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := get(e, tc.target)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.status, body.Status)
		})
	}
}

func TestVolatilityResponseShape(t *testing.T) {
	e, _ := newTestServer(t, &fakeStore{bars: zigzag(60)})
	rec, _ := get(e, "/api/volatility?symbol=NIFTY&kind=parkinson&window=5&raw=true")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Kind       string `json:"kind"`
			Annualized bool   `json:"annualized"`
			Series     struct {
				Points []struct {
					Value *float64 `json:"value"`
				} `json:"points"`
			} `json:"series"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "parkinson", body.Data.Kind)
	assert.False(t, body.Data.Annualized)
	require.Len(t, body.Data.Series.Points, 60)
	assert.Nil(t, body.Data.Series.Points[3].Value)
	require.NotNil(t, body.Data.Series.Points[4].Value)
	assert.Greater(t, *body.Data.Series.Points[4].Value, 0.0)
}

func TestCorrelationWithSentiment(t *testing.T) {
	bars := zigzag(120)
	var pts []models.SentimentPoint
	for i := 1; i < len(bars.Bars); i++ {
		r := math.Log(bars.Bars[i].Close / bars.Bars[i-1].Close)
		pts = append(pts, models.SentimentPoint{Time: bars.Bars[i].Time.Add(2 * time.Hour), Symbol: "NIFTY", Source: "news", Score: math.Tanh(50 * r)})
	}
	e, _ := newTestServer(t, &fakeStore{bars: bars, sentiment: pts})

	rec, _ := get(e, "/api/correlation?symbol=NIFTY&lag=0")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Data models.CorrelationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Data.Value)
	assert.Greater(t, body.Data.Value.Value, 0.9)
	assert.GreaterOrEqual(t, body.Data.Samples, 2)
}

func TestResponseCache(t *testing.T) {
	store := &fakeStore{bars: zigzag(100)}
	e, h := newTestServer(t, store)
	h.SetCache(icache.NewTTLCache(), time.Minute)

	rec1, _ := get(e, "/api/regime?symbol=NIFTY&n=100")
	require.Equal(t, http.StatusOK, rec1.Code)
	calls := store.calls
	rec2, _ := get(e, "/api/regime?n=100&symbol=NIFTY")
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, calls, store.calls)
	assert.JSONEq(t, rec1.Body.String(), rec2.Body.String())
	assert.Equal(t, xhttp.CacheMiss, rec1.Header().Get(xhttp.HeaderCache))
	assert.Equal(t, xhttp.CacheHit, rec2.Header().Get(xhttp.HeaderCache))

	store.err = fmt.Errorf("should not be reached")
	rec3, _ := get(e, "/api/regime?symbol=NIFTY&n=100")
	assert.Equal(t, http.StatusOK, rec3.Code)
}

func TestRateLimit(t *testing.T) {
	e, h := newTestServer(t, &fakeStore{bars: zigzag(60)})
	h.SetRateLimiter(ratelimit.New(0.001, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec, _ := get(e, "/api/bars?symbol=NIFTY")
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestAnalysisErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&analytics.PreconditionError{Metric: "parkinson", Missing: []models.Field{models.FieldHigh}}, http.StatusUnprocessableEntity, "ERR_PRECONDITION"},
		{&analytics.InsufficientDataError{Op: "regime", Need: 3, Have: 1}, http.StatusUnprocessableEntity, "ERR_INSUFFICIENT_DATA"},
		{&analytics.EmptyOverlapError{A: "returns", B: "sentiment"}, http.StatusConflict, "ERR_EMPTY_OVERLAP"},
		{fmt.Errorf("load: %w", analytics.ErrMalformedSeries), http.StatusBadRequest, "ERR_MALFORMED_SERIES"},
		{fmt.Errorf("x: %w", analytics.ErrInvalidConfig), http.StatusBadRequest, "ERR_BAD_REQUEST"},
		{fmt.Errorf("x: %w", usecase.ErrNoBars), http.StatusNotFound, "ERR_NOT_FOUND"},
		{fmt.Errorf("x: %w", domrepo.ErrStoreUnavailable), http.StatusServiceUnavailable, "ERR_UNAVAILABLE"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "ERR_TIMEOUT"},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, "ERR_INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			got := analysisError(tc.err)
			assert.Equal(t, tc.status, got.Status)
			assert.Equal(t, tc.code, got.Code)
		})
	}
}

func TestStoreUnavailableReturns503(t *testing.T) {
	e, _ := newTestServer(t, &fakeStore{bars: zigzag(60), err: domrepo.ErrStoreUnavailable})
	rec, _ := get(e, "/api/snapshot?symbol=NIFTY")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

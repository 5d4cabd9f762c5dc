package usecase

import (
	"context"
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolLens/internal/domain/models"
	domrepo "VolLens/internal/domain/repository"
	"VolLens/internal/services/analytics"
)

func TestVolatilityBankScalesAnnualization(t *testing.T) {
	bank := NewVolatilityBank(analytics.VolatilityConfig{})
	assert.Equal(t, 252.0, bank.For(domrepo.TF1d).Config().PeriodsPerYear)
	assert.Equal(t, 252*6.5, bank.For(domrepo.TF1h).Config().PeriodsPerYear)
	assert.Equal(t, 252.0, bank.For("weird").Config().PeriodsPerYear)
}

func TestAnalyzer_LoadBars(t *testing.T) {
	store := newMemStore()
	m := newCountingMetrics()
	a := newAnalyzer(store, m)

	_, err := a.LoadBars(context.Background(), "NONE", 10, domrepo.TF1d)
	assert.ErrorIs(t, err, ErrNoBars)

	store.err = errBoom
	_, err = a.LoadBars(context.Background(), "NONE", 10, domrepo.TF1d)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, m.errs["store"])
}

func TestAnalyzer_Volatility(t *testing.T) {
	store := newMemStore()
	store.bars["X"] = walk("X", 60, 1, nil)
	m := newCountingMetrics()
	a := newAnalyzer(store, m)

	s, err := a.Volatility(context.Background(), VolatilityParams{
		Symbol: "X", Kind: models.VolGarmanKlass, Window: 10, Annualize: true, N: 60, Timeframe: domrepo.TF1d,
	})
	require.NoError(t, err)
	require.Len(t, s.Points, 60)
	assert.False(t, s.Points[8].Valid)
	assert.True(t, s.Points[9].Valid)
	assert.Equal(t, 1, m.computed["garman_klass"])
	assert.Contains(t, m.latest, "X/garman_klass")
}

func TestAnalyzer_PreconditionIsCountedAsNoResult(t *testing.T) {
	store := newMemStore()
	store.bars["C"] = closeOnly(walk("C", 40, 2, nil))
	m := newCountingMetrics()
	a := newAnalyzer(store, m)

	_, err := a.Volatility(context.Background(), VolatilityParams{
		Symbol: "C", Kind: models.VolParkinson, Window: 10, N: 40, Timeframe: domrepo.TF1d,
	})
	assert.ErrorIs(t, err, analytics.ErrPrecondition)
	assert.Equal(t, "precondition", m.noResult["parkinson"])
	assert.Zero(t, m.errs["parkinson"])
}

func TestAnalyzer_ConeDefaultsToConfiguredPeriods(t *testing.T) {
	store := newMemStore()
	store.bars["X"] = walk("X", 300, 3, nil)
	a := newAnalyzer(store, newCountingMetrics())

	view, err := a.Cone(context.Background(), "X", 300, domrepo.TF1d, nil)
	require.NoError(t, err)
	assert.Equal(t, analytics.DefaultConePeriods, view.Cone.Periods)
	require.Len(t, view.Summary, 4)
	for _, st := range view.Summary {
		assert.LessOrEqual(t, st.Min, st.Median)
		assert.LessOrEqual(t, st.Median, st.Max)
	}
}

func TestAnalyzer_RegimeLatestState(t *testing.T) {
	store := newMemStore()
	store.bars["X"] = walk("X", 200, 4, nil)
	a := newAnalyzer(store, newCountingMetrics())

	view, err := a.Regime(context.Background(), "X", 200, domrepo.TF1d)
	require.NoError(t, err)
	require.NotNil(t, view.Latest)
	assert.Contains(t, []string{"low", "high"}, view.Latest.Name)
	assert.Len(t, view.Ranks, 2)
	assert.Equal(t, view.Ranks[view.Latest.Label], view.Latest.Rank)
}

func TestAnalyzer_RegimeTooFewBarsStillReturnsLabels(t *testing.T) {
	store := newMemStore()
	store.bars["X"] = walk("X", 15, 5, nil)
	m := newCountingMetrics()
	a := newAnalyzer(store, m)

	view, err := a.Regime(context.Background(), "X", 15, domrepo.TF1d)
	assert.True(t, analytics.IsNoResult(err))
	assert.Len(t, view.Result.Labels, 15)
	assert.Nil(t, view.Latest)
	assert.Equal(t, "insufficient_data", m.noResult["regime"])
}

// sentimentDriven returns bars whose return at day i follows sentiment at day i-1.
func sentimentDriven(n int) (models.BarSeries, []models.SentimentPoint) {
	rng := rand.New(rand.NewSource(7))
	scores := make([]float64, n)
	drive := make([]float64, n)
	pts := make([]models.SentimentPoint, n)
	for i := range scores {
		scores[i] = rng.Float64()*2 - 1
		pts[i] = models.SentimentPoint{Time: day(i), Symbol: "X", Source: "news", Score: scores[i]}
		if i > 0 {
			drive[i] = 0.01 * scores[i-1]
		}
	}
	return walk("X", n, 8, drive), pts
}

func TestAnalyzer_SentimentCorrelationFindsLead(t *testing.T) {
	bars, pts := sentimentDriven(120)
	store := newMemStore()
	store.bars["X"] = bars
	store.sentiment = pts
	a := newAnalyzer(store, newCountingMetrics())

	p := CorrelationParams{Symbol: "X", Target: TargetReturns, Lag: 1, N: 120, Timeframe: domrepo.TF1d}
	lead, err := a.SentimentCorrelation(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, lead.Value)
	assert.Greater(t, lead.Value.Value, 0.8)
	assert.Equal(t, bars.Bars[119].Time, lead.Value.Time)

	p.Lag = 0
	same, err := a.SentimentCorrelation(context.Background(), p)
	require.NoError(t, err)
	assert.Greater(t, lead.Value.Value, same.Value.Value+0.5)
}

func TestAnalyzer_SentimentCorrelationTargets(t *testing.T) {
	bars, pts := sentimentDriven(80)
	store := newMemStore()
	store.bars["X"] = bars
	store.sentiment = pts
	a := newAnalyzer(store, newCountingMetrics())

	for _, target := range []string{TargetClose, TargetVolatility} {
		res, err := a.SentimentCorrelation(context.Background(), CorrelationParams{
			Symbol: "X", Target: target, Window: 10, N: 80, Timeframe: domrepo.TF1d,
		})
		require.NoError(t, err, target)
		require.NotNil(t, res.Rolling, target)
		for _, p := range res.Rolling.Points {
			if p.Valid {
				assert.InDelta(t, 0, p.Value, 1.0+1e-12)
			}
		}
	}

	_, err := a.SentimentCorrelation(context.Background(), CorrelationParams{Symbol: "X", Target: "volume", N: 80})
	assert.ErrorIs(t, err, analytics.ErrInvalidConfig)
}

func TestAnalyzer_SentimentCorrelationWithoutSentiment(t *testing.T) {
	store := newMemStore()
	store.bars["X"] = walk("X", 50, 9, nil)
	m := newCountingMetrics()
	a := newAnalyzer(store, m)

	_, err := a.SentimentCorrelation(context.Background(), CorrelationParams{Symbol: "X", N: 50, Timeframe: domrepo.TF1d})
	assert.True(t, analytics.IsNoResult(err))
	assert.NotEmpty(t, m.noResult["correlation"])
}

func TestAnalyzer_SentimentBeforeFirstBarCarriesForward(t *testing.T) {
	bars, pts := sentimentDriven(40)
	tail := closeOnly(bars).Tail(30)
	without := func(skip ...int) []models.SentimentPoint {
		var out []models.SentimentPoint
		for i, p := range pts {
			if !slices.Contains(skip, i) {
				out = append(out, p)
			}
		}
		return out
	}
	store := newMemStore()
	store.sentiment = without(10)
	a := newAnalyzer(store, newCountingMetrics())

	res, err := a.SentimentCorrelationOf(context.Background(), tail, TargetClose, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 30, res.Samples)

	store.sentiment = without(8, 9, 10)
	res, err = a.SentimentCorrelationOf(context.Background(), tail, TargetClose, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 29, res.Samples)

	a.SetSentimentLookback(5 * 24 * time.Hour)
	res, err = a.SentimentCorrelationOf(context.Background(), tail, TargetClose, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 30, res.Samples)
}

func TestAnalyzer_SentimentBucketsFollowMarketZone(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+30*60)
	vals := []float64{1, 3, 2, 5, 4, 6, 2, 7, 3, 8}
	bars := models.BarSeries{Symbol: "NIFTY", Timeframe: "1d", Fields: models.FieldSet(models.FieldClose)}
	store := newMemStore()
	for i, v := range vals {
		open := time.Date(2024, 1, 1+i, 0, 0, 0, 0, ist).UTC()
		bars.Bars = append(bars.Bars, models.PriceBar{Time: open, Close: v})
		store.sentiment = append(store.sentiment, models.SentimentPoint{Time: open.Add(7 * time.Hour), Symbol: "NIFTY", Score: v})
	}
	a := newAnalyzer(store, newCountingMetrics())

	utc, err := a.SentimentCorrelationOf(context.Background(), bars, TargetClose, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, utc.Value)
	assert.Less(t, utc.Value.Value, 0.0)

	a.SetLocation(ist)
	local, err := a.SentimentCorrelationOf(context.Background(), bars, TargetClose, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, local.Value)
	assert.InDelta(t, 1.0, local.Value.Value, 1e-9)
	assert.Equal(t, len(vals), local.Samples)
}

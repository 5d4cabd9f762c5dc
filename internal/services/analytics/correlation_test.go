package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolLens/internal/domain/models"
)

func mustEngine(t *testing.T, cfg CorrelationConfig) *CorrelationEngine {
	t.Helper()
	e, err := NewCorrelationEngine(cfg)
	require.NoError(t, err)
	return e
}

func TestLagUndoesShift(t *testing.T) {
	const n, lag = 30, 3
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Sin(float64(i)/3) + 0.1*float64(i)
	}
	a := series("a", days(0, n), x)
	b := series("b", days(0, n-lag), x[lag:])

	res, err := mustEngine(t, CorrelationConfig{}).Correlate(a, b, WithLag(lag))
	require.NoError(t, err)
	require.NotNil(t, res.Value)
	assert.InDelta(t, 1.0, res.Value.Value, 1e-9)
	assert.Equal(t, n-2*lag, res.Samples)
	assert.Equal(t, day(n-lag-1), res.Value.Time)
	assert.Nil(t, res.Rolling)
}

func TestNoOverlapIsNoResult(t *testing.T) {
	a := series("price", days(0, 10), []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	b := series("sentiment", days(100, 10), []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	res, err := mustEngine(t, CorrelationConfig{}).Correlate(a, b)
	require.ErrorIs(t, err, ErrEmptyOverlap)
	assert.True(t, IsNoResult(err))
	assert.Nil(t, res.Value)

	var oe *EmptyOverlapError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "price", oe.A)
}

func TestPredictiveSentimentPrefersLagOne(t *testing.T) {
	rets := []float64{0.01, -0.02, 0.03, -0.01, 0.02, -0.03, 0.01, -0.02, 0.03, -0.01}
	aVals := append([]float64{math.NaN()}, rets...)
	a := series("returns", days(0, 11), aVals)

	sent := make([]float64, 10)
	for d := range sent {
		sent[d] = math.Copysign(1, rets[d])
	}
	b := series("sentiment", days(0, 10), sent)

	e := mustEngine(t, CorrelationConfig{})
	lag0, err := e.Correlate(a, b, WithLag(0))
	require.NoError(t, err)
	lag1, err := e.Correlate(a, b, WithLag(1))
	require.NoError(t, err)

	assert.Greater(t, lag1.Value.Value, lag0.Value.Value)
	assert.Greater(t, lag1.Value.Value, 0.8)
	assert.Less(t, lag0.Value.Value, -0.8)
}

func TestRollingCorrelation(t *testing.T) {
	const n = 40
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = math.Sin(float64(i) / 2)
		y[i] = math.Cos(float64(i)/5) + 0.3*x[i]
	}
	res, err := mustEngine(t, CorrelationConfig{Window: 10}).Correlate(series("x", days(0, n), x), series("y", days(0, n), y))
	require.NoError(t, err)
	require.NotNil(t, res.Rolling)
	assert.Nil(t, res.Value)
	require.Len(t, res.Rolling.Points, n)
	for i, p := range res.Rolling.Points {
		if i < 9 {
			assert.False(t, p.Valid)
			continue
		}
		require.True(t, p.Valid, "index %d", i)
		assert.GreaterOrEqual(t, p.Value, -1.0)
		assert.LessOrEqual(t, p.Value, 1.0)
	}
}

func TestRollingConstantWindowUndefined(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	y := []float64{2, 2, 2, 2, 5, 7}
	res, err := mustEngine(t, CorrelationConfig{Window: 3}).Correlate(series("x", days(0, 6), x), series("y", days(0, 6), y))
	require.NoError(t, err)
	pts := res.Rolling.Points
	assert.False(t, pts[2].Valid)
	assert.False(t, pts[3].Valid)
	assert.True(t, pts[4].Valid)
}

func TestWholeSampleNeedsTwoPoints(t *testing.T) {
	a := series("a", days(0, 3), []float64{1, 2, 3})
	b := series("b", days(2, 1), []float64{0.5})
	_, err := mustEngine(t, CorrelationConfig{}).Correlate(a, b)
	require.ErrorIs(t, err, ErrInsufficientData)

	var ie *InsufficientDataError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 2, ie.Need)
	assert.Equal(t, 1, ie.Have)
}

func TestConstantSeriesIsNoResult(t *testing.T) {
	a := series("a", days(0, 5), []float64{1, 2, 3, 4, 5})
	b := series("b", days(0, 5), []float64{0.2, 0.2, 0.2, 0.2, 0.2})
	_, err := mustEngine(t, CorrelationConfig{}).Correlate(a, b)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEmptyInputsAreNoResult(t *testing.T) {
	e := mustEngine(t, CorrelationConfig{})
	_, err := e.Correlate(models.Series{Name: "a"}, series("b", days(0, 3), []float64{1, 2, 3}))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestInvalidCorrelationConfig(t *testing.T) {
	_, err := NewCorrelationEngine(CorrelationConfig{Lag: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewCorrelationEngine(CorrelationConfig{Window: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	e := mustEngine(t, CorrelationConfig{})
	a := series("a", days(0, 3), []float64{1, 2, 3})
	_, err = e.Correlate(a, a, WithLag(-2))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAlignResamplesSparseSecondary(t *testing.T) {
	at := make([]time.Time, 5)
	for i := range at {
		at[i] = day(i).Add(16 * time.Hour)
	}
	a := series("close", at, []float64{10, 11, 12, 13, 14})
	b := series("sentiment", []time.Time{
		day(0).Add(10 * time.Hour),
		day(0).Add(14 * time.Hour),
		day(2).Add(9 * time.Hour),
	}, []float64{1, 3, -1})

	al, err := Align(a, b, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, al.Resolution)
	assert.Equal(t, at[:3], al.Times)
	assert.Equal(t, []float64{10, 11, 12}, al.A)
	assert.Equal(t, []float64{2, 2, -1}, al.B)

	shifted, err := Align(a, b, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, at[1:3], shifted.Times)
	assert.Equal(t, []float64{2, 2}, shifted.B)
}

func TestAlignRejectsUnorderedInput(t *testing.T) {
	a := series("a", []time.Time{day(1), day(0)}, []float64{1, 2})
	_, err := Align(a, series("b", days(0, 2), []float64{1, 2}), 0, 0)
	assert.ErrorIs(t, err, ErrMalformedSeries)
}

func TestInferResolution(t *testing.T) {
	s := series("m", []time.Time{day(0), day(0).Add(time.Minute), day(0).Add(2 * time.Minute), day(0).Add(10 * time.Minute)}, []float64{1, 2, 3, 4})
	assert.Equal(t, time.Minute, InferResolution(s))
	assert.Equal(t, DefaultResolution, InferResolution(series("one", days(0, 1), []float64{1})))
}

func TestAlignBucketsOnPrimaryWallClock(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+30*60)
	vals := []float64{1, 3, 2, 5, 4, 6, 2, 7, 3, 8}
	bt := make([]time.Time, len(vals))
	st := make([]time.Time, len(vals))
	for i := range vals {
		bt[i] = time.Date(2024, 1, 1+i, 0, 0, 0, 0, ist)
		st[i] = bt[i].Add(12 * time.Hour).UTC()
	}
	a := series("close", bt, vals)
	b := series("sentiment", st, vals)

	al, err := Align(a, b, 0, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, vals, al.A)
	assert.Equal(t, vals, al.B)

	res, err := mustEngine(t, CorrelationConfig{Resolution: 24 * time.Hour}).Correlate(a, b)
	require.NoError(t, err)
	require.NotNil(t, res.Value)
	assert.InDelta(t, 1.0, res.Value.Value, 1e-12)
	assert.Equal(t, len(vals), res.Samples)
}

func TestAlignHourlyBucketsInOffsetZone(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+30*60)
	at := func(h, m int) time.Time { return time.Date(2024, 3, 4, h, m, 0, 0, ist) }
	a := series("close", []time.Time{at(10, 0), at(11, 0), at(12, 0)}, []float64{10, 11, 12})
	b := series("sentiment", []time.Time{at(10, 10).UTC(), at(11, 50).UTC(), at(12, 20).UTC()}, []float64{1, 2, 3})

	al, err := Align(a, b, 0, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, al.B)
}

func TestAlignCostFollowsInputNotSpan(t *testing.T) {
	base := day(1)
	a := series("ticks", []time.Time{base, base.Add(time.Microsecond), base.Add(2 * time.Microsecond)}, []float64{1, 2, 3})
	b := series("sentiment", []time.Time{day(0), day(2)}, []float64{5, 9})

	al, err := Align(a, b, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Microsecond, al.Resolution)
	assert.Equal(t, []float64{5, 5, 5}, al.B)
}

func TestAlignAveragesRepeatedTimestamps(t *testing.T) {
	noon := day(0).Add(12 * time.Hour)
	a := series("close", []time.Time{day(0).Add(16 * time.Hour)}, []float64{100})
	b := series("sentiment", []time.Time{day(0).Add(10 * time.Hour), day(0).Add(10 * time.Hour), noon}, []float64{1, 1, -1})

	al, err := Align(a, b, 0, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, al.B, 1)
	assert.InDelta(t, 1.0/3, al.B[0], 1e-12)

	back := series("sentiment", []time.Time{noon, day(0)}, []float64{1, 2})
	_, err = Align(a, back, 0, 24*time.Hour)
	assert.ErrorIs(t, err, ErrMalformedSeries)
}

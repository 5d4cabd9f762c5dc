package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolLens/internal/domain/models"
)

func TestHistoricalWorkedExample(t *testing.T) {
	closes := []float64{100, 102, 101, 105, 108, 107, 110, 112, 109, 115}
	est := NewVolatilityEstimator(VolatilityConfig{})

	s, err := est.Historical(closeBars(closes...), 5, true)
	require.NoError(t, err)
	require.Len(t, s.Points, len(closes))

	for i := 0; i < 4; i++ {
		assert.False(t, s.Points[i].Valid, "index %d should be warm-up", i)
	}

	rets := make([]float64, 0, 4)
	for i := 1; i <= 4; i++ {
		rets = append(rets, math.Log(closes[i]/closes[i-1]))
	}
	mean := (rets[0] + rets[1] + rets[2] + rets[3]) / 4
	ss := 0.0
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	want := math.Sqrt(ss/3) * math.Sqrt(252)

	require.True(t, s.Points[4].Valid)
	assert.InDelta(t, want, s.Points[4].Value, 1e-12)
	assert.Equal(t, day(4), s.Points[4].Time)
	for i := 4; i < len(closes); i++ {
		assert.True(t, s.Points[i].Valid)
	}
}

func TestShortSeriesAllUndefined(t *testing.T) {
	est := NewVolatilityEstimator(VolatilityConfig{})
	bars := randomBars(9, 1)
	for _, kind := range models.VolKinds {
		t.Run(string(kind), func(t *testing.T) {
			s, err := est.Estimate(kind, bars, 10, true)
			require.NoError(t, err)
			assert.Len(t, s.Points, 9)
			assert.Zero(t, s.Defined())
		})
	}
}

func TestWarmupLength(t *testing.T) {
	est := NewVolatilityEstimator(VolatilityConfig{})
	bars := randomBars(50, 2)
	for _, kind := range models.VolKinds {
		s, err := est.Estimate(kind, bars, 20, false)
		require.NoError(t, err)
		assert.Equal(t, 31, s.Defined(), string(kind))
		assert.False(t, s.Points[18].Valid, string(kind))
		assert.True(t, s.Points[19].Valid, string(kind))
	}
}

func TestVolatilityNonNegative(t *testing.T) {
	est := NewVolatilityEstimator(VolatilityConfig{})
	for seed := int64(1); seed <= 20; seed++ {
		bars := randomBars(120, seed)
		set, err := est.All(bars, 10, true)
		require.NoError(t, err)
		require.Empty(t, set.Unavailable)
		for kind, s := range set.Series {
			for _, p := range s.Points {
				if p.Valid {
					assert.GreaterOrEqual(t, p.Value, 0.0, "%s seed %d", kind, seed)
				}
			}
		}
	}
}

func TestGarmanKlassClampsInconsistentBars(t *testing.T) {
	est := NewVolatilityEstimator(VolatilityConfig{})
	// tiny range with a large open-to-close move drives the GK term negative
	bars := models.BarSeries{Fields: models.FieldsOHLC}
	for i := 0; i < 5; i++ {
		bars.Bars = append(bars.Bars, models.PriceBar{Time: day(i), Open: 100, High: 100.01, Low: 100, Close: 120})
	}
	s, err := est.GarmanKlass(bars, 3, false)
	require.NoError(t, err)
	for _, p := range s.Points[2:] {
		require.True(t, p.Valid)
		assert.Equal(t, 0.0, p.Value)
	}
}

func TestAnnualizationScalesBySqrt252(t *testing.T) {
	est := NewVolatilityEstimator(VolatilityConfig{})
	bars := randomBars(80, 7)
	for _, kind := range models.VolKinds {
		t.Run(string(kind), func(t *testing.T) {
			raw, err := est.Estimate(kind, bars, 15, false)
			require.NoError(t, err)
			ann, err := est.Estimate(kind, bars, 15, true)
			require.NoError(t, err)
			for i := range raw.Points {
				require.Equal(t, raw.Points[i].Valid, ann.Points[i].Valid)
				if raw.Points[i].Valid {
					assert.InDelta(t, raw.Points[i].Value*math.Sqrt(252), ann.Points[i].Value, 1e-12)
				}
			}
		})
	}
}

func TestParkinsonMatchesFormula(t *testing.T) {
	est := NewVolatilityEstimator(VolatilityConfig{})
	bars := models.BarSeries{Fields: models.FieldsOHLC}
	highs := []float64{101, 103, 102}
	lows := []float64{99, 100, 98}
	for i := range highs {
		bars.Bars = append(bars.Bars, models.PriceBar{Time: day(i), Open: 100, High: highs[i], Low: lows[i], Close: 100})
	}
	s, err := est.Parkinson(bars, 3, false)
	require.NoError(t, err)

	sum := 0.0
	for i := range highs {
		l := math.Log(highs[i] / lows[i])
		sum += l * l
	}
	want := math.Sqrt(sum / 3 / (4 * math.Ln2))
	require.True(t, s.Points[2].Valid)
	assert.InDelta(t, want, s.Points[2].Value, 1e-12)
}

func TestNaNInsideWindowIsUndefined(t *testing.T) {
	est := NewVolatilityEstimator(VolatilityConfig{})
	bars := closeBars(100, 101, 102, math.NaN(), 104, 105, 106, 107, 108)
	s, err := est.Historical(bars, 3, false)
	require.NoError(t, err)
	// returns at 3 and 4 touch the missing close
	for i := 3; i <= 5; i++ {
		assert.False(t, s.Points[i].Valid, "index %d", i)
	}
	assert.True(t, s.Points[2].Valid)
	assert.True(t, s.Points[6].Valid)
}

func TestMissingColumnsArePreconditionErrors(t *testing.T) {
	est := NewVolatilityEstimator(VolatilityConfig{})
	bars := closeBars(100, 101, 102, 103, 104)

	_, err := est.Parkinson(bars, 3, true)
	require.ErrorIs(t, err, ErrPrecondition)
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []models.Field{models.FieldHigh, models.FieldLow}, pe.Missing)

	set, err := est.All(bars, 3, true)
	require.NoError(t, err)
	assert.Contains(t, set.Series, models.VolHistorical)
	assert.Contains(t, set.Unavailable, models.VolParkinson)
	assert.Contains(t, set.Unavailable, models.VolGarmanKlass)
}

func TestMalformedTimestamps(t *testing.T) {
	est := NewVolatilityEstimator(VolatilityConfig{})
	bars := closeBars(100, 101, 102)
	bars.Bars[2].Time = bars.Bars[1].Time
	_, err := est.Historical(bars, 3, true)
	require.ErrorIs(t, err, ErrMalformedSeries)
	assert.False(t, IsNoResult(err))

	bars.Bars[2].Time = day(-1)
	_, err = est.Historical(bars, 3, true)
	require.ErrorIs(t, err, ErrMalformedSeries)
}

func TestInvalidWindow(t *testing.T) {
	est := NewVolatilityEstimator(VolatilityConfig{})
	_, err := est.Historical(closeBars(1, 2, 3), 1, true)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	// one return has no sample deviation
	_, err = est.Historical(closeBars(1, 2, 3), 2, true)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	s, err := est.Historical(closeBars(1, 2, 3), 3, false)
	require.NoError(t, err)
	assert.True(t, s.Points[2].Valid)
	_, err = est.Estimate("bogus", closeBars(1, 2, 3), 2, true)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCone(t *testing.T) {
	est := NewVolatilityEstimator(VolatilityConfig{})
	bars := randomBars(300, 3)

	cone, err := est.Cone(bars, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{20, 60, 120, 252}, cone.Periods)
	for _, p := range cone.Periods {
		s := cone.Series[p]
		assert.Equal(t, 300-p+1, s.Defined(), "period %d", p)
		hv, err := est.Historical(bars, p, true)
		require.NoError(t, err)
		assert.Equal(t, hv, s)
	}

	stats := ConeSummary(cone)
	require.Len(t, stats, 4)
	for _, st := range stats {
		assert.LessOrEqual(t, st.Min, st.Q25)
		assert.LessOrEqual(t, st.Q25, st.Median)
		assert.LessOrEqual(t, st.Median, st.Q75)
		assert.LessOrEqual(t, st.Q75, st.Max)
		assert.True(t, st.Latest.Valid)
		assert.Equal(t, day(299), st.Latest.Time)
	}

	_, err = est.Cone(bars, []int{20, 20})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConeSummarySkipsEmptyPeriods(t *testing.T) {
	est := NewVolatilityEstimator(VolatilityConfig{})
	cone, err := est.Cone(randomBars(30, 4), []int{10, 60})
	require.NoError(t, err)
	stats := ConeSummary(cone)
	require.Len(t, stats, 1)
	assert.Equal(t, 10, stats[0].Period)
}

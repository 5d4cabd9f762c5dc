package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolLens/internal/domain/models"
)

func newClassifier(k int) *RegimeClassifier {
	return NewRegimeClassifier(RegimeConfig{K: k, Seed: DefaultRegimeSeed}, NewVolatilityEstimator(VolatilityConfig{}))
}

func TestClassifyLabelsInRange(t *testing.T) {
	bars := regimeBars(60)
	res, err := newClassifier(3).Classify(bars)
	require.NoError(t, err)
	require.Len(t, res.Labels, len(bars.Bars))

	for i, l := range res.Labels {
		assert.Equal(t, bars.Bars[i].Time, l.Time)
		if i < DefaultWindow-1 {
			assert.False(t, l.Valid, "warm-up bar %d", i)
			continue
		}
		require.True(t, l.Valid, "bar %d", i)
		assert.GreaterOrEqual(t, l.Value, 0)
		assert.Less(t, l.Value, 3)
	}
	assert.Equal(t, len(bars.Bars)-DefaultWindow+1, res.Classified)
	assert.Len(t, res.Centroids, 3)
	assert.GreaterOrEqual(t, res.Inertia, 0.0)
}

func TestClassifyDeterministic(t *testing.T) {
	bars := randomBars(200, 11)
	a, err := newClassifier(3).Classify(bars)
	require.NoError(t, err)
	b, err := newClassifier(3).Classify(bars)
	require.NoError(t, err)
	assert.Equal(t, a.Labels, b.Labels)
	assert.Equal(t, a.Centroids, b.Centroids)
}

func TestClassifySeparatesCalmFromTurbulent(t *testing.T) {
	res, err := newClassifier(2).Classify(regimeBars(60))
	require.NoError(t, err)

	calm, turbulent, calmAgain := res.Labels[50], res.Labels[100], res.Labels[170]
	require.True(t, calm.Valid && turbulent.Valid && calmAgain.Valid)
	assert.NotEqual(t, calm.Value, turbulent.Value)
	assert.Equal(t, calm.Value, calmAgain.Value)

	ranks := RankRegimes(res)
	assert.Equal(t, 0, ranks[calm.Value])
	assert.Equal(t, 1, ranks[turbulent.Value])
	assert.Equal(t, "high", RegimeName(ranks[turbulent.Value], 2))
}

func TestClassifyNoSurvivors(t *testing.T) {
	bars := regimeBars(5)
	res, err := newClassifier(3).Classify(bars)
	require.ErrorIs(t, err, ErrInsufficientData)
	assert.True(t, IsNoResult(err))
	require.Len(t, res.Labels, 15)
	for _, l := range res.Labels {
		assert.False(t, l.Valid)
	}
	assert.Zero(t, res.Classified)
}

func TestClassifyEmptySeries(t *testing.T) {
	res, err := newClassifier(3).Classify(models.BarSeries{Fields: models.FieldsOHLC})
	require.ErrorIs(t, err, ErrInsufficientData)
	assert.Empty(t, res.Labels)
}

func TestClassifyMissingColumns(t *testing.T) {
	res, err := newClassifier(3).Classify(closeBars(1, 2, 3, 4))
	require.ErrorIs(t, err, ErrPrecondition)
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "regime", pe.Metric)
	assert.Len(t, res.Labels, 4)
}

func TestRegimeName(t *testing.T) {
	assert.Equal(t, "low", RegimeName(0, 3))
	assert.Equal(t, "medium", RegimeName(1, 3))
	assert.Equal(t, "level_4", RegimeName(4, 5))
}

package service

import (
	"time"

	"VolLens/internal/domain/models"
)

// VolatilityEstimator produces rolling volatility series and cones from bars.
type VolatilityEstimator interface {
	Estimate(kind models.VolKind, bars models.BarSeries, window int, annualize bool) (models.Series, error)
	Cone(bars models.BarSeries, periods []int) (models.VolatilityCone, error)
}

// RegimeClassifier clusters bars into volatility regimes.
type RegimeClassifier interface {
	Classify(bars models.BarSeries) (models.RegimeResult, error)
}

// CorrelationEngine measures the lagged relationship between two series.
// Secondary is resampled onto the primary's time grid before correlating.
type CorrelationEngine interface {
	Correlate(primary, secondary models.Series, opts ...CorrelationOption) (models.CorrelationResult, error)
}

// CorrelationParams are per-call overrides of the engine's configuration.
type CorrelationParams struct {
	Lag        int
	Window     int
	Resolution time.Duration // zero infers from the primary series
}

// CorrelationOption mutates CorrelationParams.
type CorrelationOption func(*CorrelationParams)

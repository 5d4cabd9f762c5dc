package analytics

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"VolLens/internal/domain/models"
	domsvc "VolLens/internal/domain/service"
)

// CorrelationConfig holds the engine defaults. Window zero selects whole-sample mode.
type CorrelationConfig struct {
	Lag        int
	Window     int
	Resolution time.Duration
}

// CorrelationEngine correlates a primary series against a lagged, resampled secondary.
type CorrelationEngine struct {
	cfg CorrelationConfig
}

func NewCorrelationEngine(cfg CorrelationConfig) (*CorrelationEngine, error) {
	if err := validateCorrelation(domsvc.CorrelationParams(cfg)); err != nil {
		return nil, err
	}
	return &CorrelationEngine{cfg: cfg}, nil
}

func (e *CorrelationEngine) Config() CorrelationConfig { return e.cfg }

func WithLag(lag int) domsvc.CorrelationOption {
	return func(p *domsvc.CorrelationParams) { p.Lag = lag }
}

// WithWindow selects rolling mode; zero selects whole-sample mode.
func WithWindow(window int) domsvc.CorrelationOption {
	return func(p *domsvc.CorrelationParams) { p.Window = window }
}

func WithResolution(d time.Duration) domsvc.CorrelationOption {
	return func(p *domsvc.CorrelationParams) { p.Resolution = d }
}

// Correlate aligns secondary onto primary's grid, shifts it forward by the lag so that
// secondary's value lag periods ago faces primary's current value, then computes a
// Pearson coefficient over the whole sample or over a rolling window.
//
// No value is ever fabricated: empty or disjoint inputs, fewer than two aligned points
// and constant series all return an error classed by IsNoResult.
func (e *CorrelationEngine) Correlate(primary, secondary models.Series, opts ...domsvc.CorrelationOption) (models.CorrelationResult, error) {
	p := domsvc.CorrelationParams(e.cfg)
	for _, opt := range opts {
		opt(&p)
	}
	if err := validateCorrelation(p); err != nil {
		return models.CorrelationResult{}, err
	}

	al, err := Align(primary, secondary, p.Lag, p.Resolution)
	if err != nil {
		return models.CorrelationResult{}, err
	}
	res := models.CorrelationResult{Lag: p.Lag, Window: p.Window, Samples: al.Len()}
	if p.Window > 0 {
		if al.Len() == 0 {
			return res, &InsufficientDataError{Op: "rolling correlation", Need: 1, Have: 0}
		}
		s := RollingPearson(al, p.Window)
		s.Name = primary.Name + "~" + secondary.Name
		res.Rolling = &s
		return res, nil
	}

	if al.Len() < 2 {
		return res, &InsufficientDataError{Op: "correlation", Need: 2, Have: al.Len()}
	}
	r := stat.Correlation(al.A, al.B, nil)
	if !finite(r) {
		// one side has zero variance
		return res, &InsufficientDataError{Op: "correlation", Need: 2, Have: 1}
	}
	pt := models.Defined(al.Times[al.Len()-1], clamp(r, -1, 1))
	res.Value = &pt
	return res, nil
}

// RollingPearson computes the coefficient over each full window of an aligned pair.
// Warm-up points and windows where either side is constant are undefined.
func RollingPearson(al Aligned, window int) models.Series {
	pts := make([]models.Point, al.Len())
	for i := range pts {
		if i < window-1 {
			pts[i] = models.Undefined(al.Times[i])
			continue
		}
		r := stat.Correlation(al.A[i-window+1:i+1], al.B[i-window+1:i+1], nil)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			pts[i] = models.Undefined(al.Times[i])
			continue
		}
		pts[i] = models.Defined(al.Times[i], clamp(r, -1, 1))
	}
	return models.Series{Points: pts}
}

func validateCorrelation(p domsvc.CorrelationParams) error {
	if p.Lag < 0 {
		return invalidConfig("lag %d is negative", p.Lag)
	}
	if p.Window < 0 || p.Window == 1 {
		return invalidConfig("correlation window %d must be zero or at least 2", p.Window)
	}
	if p.Resolution < 0 {
		return invalidConfig("resolution %s is negative", p.Resolution)
	}
	return nil
}

var _ domsvc.CorrelationEngine = (*CorrelationEngine)(nil)

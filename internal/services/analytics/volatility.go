package analytics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"VolLens/internal/domain/models"
	domsvc "VolLens/internal/domain/service"
)

const (
	DefaultWindow         = 20
	DefaultPeriodsPerYear = 252
)

// DefaultConePeriods are the look-backs used when a cone is requested without periods.
var DefaultConePeriods = []int{20, 60, 120, 252}

var (
	ln2       = math.Ln2
	gkCloseCo = 2*math.Ln2 - 1
)

// VolatilityConfig is fixed at construction.
type VolatilityConfig struct {
	Window         int
	Annualize      bool
	PeriodsPerYear float64
	ConePeriods    []int
}

func (c VolatilityConfig) withDefaults() VolatilityConfig {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.PeriodsPerYear <= 0 {
		c.PeriodsPerYear = DefaultPeriodsPerYear
	}
	if len(c.ConePeriods) == 0 {
		c.ConePeriods = append([]int(nil), DefaultConePeriods...)
	}
	return c
}

// VolatilityEstimator computes close-to-close, Parkinson and Garman-Klass volatility.
type VolatilityEstimator struct {
	cfg    VolatilityConfig
	factor float64
}

func NewVolatilityEstimator(cfg VolatilityConfig) *VolatilityEstimator {
	cfg = cfg.withDefaults()
	return &VolatilityEstimator{cfg: cfg, factor: math.Sqrt(cfg.PeriodsPerYear)}
}

// Config returns the construction-time configuration.
func (e *VolatilityEstimator) Config() VolatilityConfig { return e.cfg }

// Historical is the rolling sample standard deviation of close-to-close log returns.
// The value at bar i uses bars i-window+1..i, so window-1 returns. The sample deviation
// needs two returns, hence a window of at least 3.
func (e *VolatilityEstimator) Historical(bars models.BarSeries, window int, annualize bool) (models.Series, error) {
	if err := e.prepare(models.VolHistorical, bars, window, minHistoricalWindow, models.FieldClose); err != nil {
		return models.Series{}, err
	}
	rets := make([]float64, len(bars.Bars))
	if len(rets) > 0 {
		rets[0] = math.NaN()
	}
	for i := 1; i < len(bars.Bars); i++ {
		prev, cur := bars.Bars[i-1].Close, bars.Bars[i].Close
		if !positive(prev, cur) {
			rets[i] = math.NaN()
			continue
		}
		rets[i] = math.Log(cur / prev)
	}
	std := rolling(rets, window-1, func(w []float64) float64 { return stat.StdDev(w, nil) })
	return e.series(models.VolHistorical, bars, std, annualize), nil
}

// Parkinson is sqrt(mean((ln(h/l))^2) / (4 ln 2)) over the window.
func (e *VolatilityEstimator) Parkinson(bars models.BarSeries, window int, annualize bool) (models.Series, error) {
	if err := e.prepare(models.VolParkinson, bars, window, 1, models.FieldHigh, models.FieldLow); err != nil {
		return models.Series{}, err
	}
	terms := make([]float64, len(bars.Bars))
	for i, b := range bars.Bars {
		if !positive(b.High, b.Low) {
			terms[i] = math.NaN()
			continue
		}
		hl := math.Log(b.High / b.Low)
		terms[i] = hl * hl
	}
	vol := rolling(terms, window, func(w []float64) float64 {
		return math.Sqrt(stat.Mean(w, nil) / (4 * ln2))
	})
	return e.series(models.VolParkinson, bars, vol, annualize), nil
}

// GarmanKlass is sqrt(mean(0.5(ln h/l)^2 - (2ln2-1)(ln c/o)^2)) over the window.
// A negative mean, possible only with inconsistent bars, is clamped to zero.
func (e *VolatilityEstimator) GarmanKlass(bars models.BarSeries, window int, annualize bool) (models.Series, error) {
	if err := e.prepare(models.VolGarmanKlass, bars, window, 1, models.FieldOpen, models.FieldHigh, models.FieldLow, models.FieldClose); err != nil {
		return models.Series{}, err
	}
	terms := make([]float64, len(bars.Bars))
	for i, b := range bars.Bars {
		if !positive(b.Open, b.High, b.Low, b.Close) {
			terms[i] = math.NaN()
			continue
		}
		hl := math.Log(b.High / b.Low)
		co := math.Log(b.Close / b.Open)
		terms[i] = 0.5*hl*hl - gkCloseCo*co*co
	}
	vol := rolling(terms, window, func(w []float64) float64 {
		return math.Sqrt(math.Max(stat.Mean(w, nil), 0))
	})
	return e.series(models.VolGarmanKlass, bars, vol, annualize), nil
}

// Estimate dispatches on kind.
func (e *VolatilityEstimator) Estimate(kind models.VolKind, bars models.BarSeries, window int, annualize bool) (models.Series, error) {
	switch kind {
	case models.VolHistorical:
		return e.Historical(bars, window, annualize)
	case models.VolParkinson:
		return e.Parkinson(bars, window, annualize)
	case models.VolGarmanKlass:
		return e.GarmanKlass(bars, window, annualize)
	default:
		return models.Series{}, invalidConfig("unknown volatility kind %q", kind)
	}
}

// VolatilitySet holds every estimator's output; a metric whose inputs are absent is
// listed in Unavailable instead of Series.
type VolatilitySet struct {
	Series      map[models.VolKind]models.Series
	Unavailable map[models.VolKind]error
}

// All runs every estimator. Only structural or configuration errors are returned;
// precondition failures are recorded per metric.
func (e *VolatilityEstimator) All(bars models.BarSeries, window int, annualize bool) (VolatilitySet, error) {
	set := VolatilitySet{
		Series:      make(map[models.VolKind]models.Series, len(models.VolKinds)),
		Unavailable: map[models.VolKind]error{},
	}
	for _, kind := range models.VolKinds {
		s, err := e.Estimate(kind, bars, window, annualize)
		if err != nil {
			if errors.Is(err, ErrPrecondition) {
				set.Unavailable[kind] = err
				continue
			}
			return VolatilitySet{}, err
		}
		set.Series[kind] = s
	}
	return set, nil
}

// Default runs every estimator with the configured window and annualization.
func (e *VolatilityEstimator) Default(bars models.BarSeries) (VolatilitySet, error) {
	return e.All(bars, e.cfg.Window, e.cfg.Annualize)
}

// Cone runs the annualized Historical estimator once per period.
func (e *VolatilityEstimator) Cone(bars models.BarSeries, periods []int) (models.VolatilityCone, error) {
	if len(periods) == 0 {
		periods = e.cfg.ConePeriods
	}
	cone := models.VolatilityCone{
		Symbol:  bars.Symbol,
		Periods: append([]int(nil), periods...),
		Series:  make(map[int]models.Series, len(periods)),
	}
	for _, p := range periods {
		if _, dup := cone.Series[p]; dup {
			return models.VolatilityCone{}, invalidConfig("duplicate cone period %d", p)
		}
		s, err := e.Historical(bars, p, true)
		if err != nil {
			return models.VolatilityCone{}, fmt.Errorf("cone period %d: %w", p, err)
		}
		cone.Series[p] = s
	}
	return cone, nil
}

// ConeSummary reduces each cone period to its distribution quantiles and latest value.
// Periods with no defined values are omitted.
func ConeSummary(cone models.VolatilityCone) []models.ConeStats {
	out := make([]models.ConeStats, 0, len(cone.Periods))
	for _, p := range cone.Periods {
		s := cone.Series[p]
		vals := s.Values()
		if len(vals) == 0 {
			continue
		}
		sort.Float64s(vals)
		last, _ := s.Last()
		out = append(out, models.ConeStats{
			Period:  p,
			Samples: len(vals),
			Min:     vals[0],
			Q25:     stat.Quantile(0.25, stat.Empirical, vals, nil),
			Median:  stat.Quantile(0.5, stat.Empirical, vals, nil),
			Q75:     stat.Quantile(0.75, stat.Empirical, vals, nil),
			Max:     vals[len(vals)-1],
			Latest:  last,
		})
	}
	return out
}

const minHistoricalWindow = 3

func (e *VolatilityEstimator) prepare(kind models.VolKind, bars models.BarSeries, window, minWindow int, need ...models.Field) error {
	if window < minWindow {
		return invalidConfig("%s window %d below %d", kind, window, minWindow)
	}
	if missing := bars.Fields.Missing(need...); len(missing) > 0 {
		return &PreconditionError{Metric: string(kind), Missing: missing}
	}
	return checkOrdered(bars.Symbol, bars.Times())
}

func (e *VolatilityEstimator) series(kind models.VolKind, bars models.BarSeries, vals []float64, annualize bool) models.Series {
	scale := 1.0
	if annualize {
		scale = e.factor
	}
	return models.Series{Name: string(kind), Points: toPoints(bars.Times(), vals, scale)}
}

var _ domsvc.VolatilityEstimator = (*VolatilityEstimator)(nil)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	domrepo "VolLens/internal/domain/repository"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	computations *prometheus.HistogramVec
	noResult     *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latestVol    *prometheus.GaugeVec
}

// New registers the recorder on the default registry. Call it once per process.
func New() *Recorder { return NewWithRegistry(prometheus.DefaultRegisterer) }

// NewWithRegistry registers the recorder on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		computations: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vollens_computation_duration_seconds",
				Help:    "Duration of analysis computations in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"metric"},
		),
		noResult: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vollens_no_result_total",
				Help: "Computations that produced no result, by reason",
			},
			[]string{"metric", "reason"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vollens_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latestVol: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vollens_latest_volatility",
				Help: "Latest defined annualized volatility per symbol and estimator",
			},
			[]string{"symbol", "kind"},
		),
	}
}

func (r *Recorder) RecordComputation(metric string, seconds float64) {
	r.computations.WithLabelValues(metric).Observe(seconds)
}

func (r *Recorder) RecordNoResult(metric, reason string) {
	r.noResult.WithLabelValues(metric, reason).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLatestVolatility(symbol, kind string, value float64) {
	r.latestVol.WithLabelValues(symbol, kind).Set(value)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordComputation(string, float64)              {}
func (Nop) RecordNoResult(string, string)                  {}
func (Nop) RecordError(string)                             {}
func (Nop) RecordLatestVolatility(string, string, float64) {}

var (
	_ domrepo.Metrics = (*Recorder)(nil)
	_ domrepo.Metrics = Nop{}
)

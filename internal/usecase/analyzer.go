package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"VolLens/internal/domain/models"
	domrepo "VolLens/internal/domain/repository"
	domsvc "VolLens/internal/domain/service"
	"VolLens/internal/services/analytics"
	"VolLens/internal/services/features"
	applogger "VolLens/pkg/logger"
)

// ErrNoBars is returned when the store holds no bars for the requested symbol.
var ErrNoBars = errors.New("no bars for symbol")

// Correlation targets: which price-derived series sentiment is compared against.
const (
	TargetReturns    = "returns"
	TargetClose      = "close"
	TargetVolatility = "volatility"
)

// VolatilityBank hands out an estimator whose annualization matches the timeframe.
type VolatilityBank struct {
	byTF map[domrepo.Timeframe]*analytics.VolatilityEstimator
	def  *analytics.VolatilityEstimator
}

// NewVolatilityBank scales cfg.PeriodsPerYear, which is expressed for daily bars,
// to every supported timeframe.
func NewVolatilityBank(cfg analytics.VolatilityConfig) *VolatilityBank {
	base := analytics.NewVolatilityEstimator(cfg)
	daily := base.Config().PeriodsPerYear
	b := &VolatilityBank{byTF: map[domrepo.Timeframe]*analytics.VolatilityEstimator{}, def: base}
	for _, tf := range []domrepo.Timeframe{domrepo.TF1m, domrepo.TF5m, domrepo.TF1h, domrepo.TF1d} {
		c := base.Config()
		c.PeriodsPerYear = daily * features.PeriodsPerYearForTF(string(tf)) / features.PeriodsPerYearForTF(string(domrepo.TF1d))
		b.byTF[tf] = analytics.NewVolatilityEstimator(c)
	}
	return b
}

func (b *VolatilityBank) For(tf domrepo.Timeframe) *analytics.VolatilityEstimator {
	if e, ok := b.byTF[tf]; ok {
		return e
	}
	return b.def
}

// MarketAnalyzer loads bars and sentiment from the store and runs the analytics
// core over them, recording timings and no-result outcomes.
type MarketAnalyzer struct {
	store      domrepo.MarketStore
	vols       *VolatilityBank
	regime     domsvc.RegimeClassifier
	corr       domsvc.CorrelationEngine
	metrics    domrepo.Metrics
	resolution time.Duration
	loc        *time.Location
	lookback   time.Duration
	corrLag    int
	corrWindow int
	l          *applogger.Logger
}

func NewMarketAnalyzer(store domrepo.MarketStore, vols *VolatilityBank, regime domsvc.RegimeClassifier, corr domsvc.CorrelationEngine, metrics domrepo.Metrics) *MarketAnalyzer {
	return &MarketAnalyzer{store: store, vols: vols, regime: regime, corr: corr, metrics: metrics, loc: time.UTC, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (a *MarketAnalyzer) SetLogger(l *applogger.Logger) {
	if l != nil {
		a.l = l
	}
}

// SetResolution fixes the correlation bucket width; zero uses the timeframe's bar spacing.
func (a *MarketAnalyzer) SetResolution(d time.Duration) { a.resolution = d }

// SetLocation sets the market time zone correlation buckets follow. Nil means UTC.
func (a *MarketAnalyzer) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	a.loc = loc
}

// SetSentimentLookback widens the sentiment fetch before the first bar. Sentiment from
// the bucket before the first bar's is always fetched so it can carry forward.
func (a *MarketAnalyzer) SetSentimentLookback(d time.Duration) { a.lookback = d }

// SetCorrelationDefaults sets the lag and window used when a caller does not choose.
func (a *MarketAnalyzer) SetCorrelationDefaults(lag, window int) {
	a.corrLag, a.corrWindow = lag, window
}

func (a *MarketAnalyzer) CorrelationDefaults() (lag, window int) { return a.corrLag, a.corrWindow }

// LoadBars returns the latest n bars, or ErrNoBars when there are none.
func (a *MarketAnalyzer) LoadBars(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (models.BarSeries, error) {
	bars, err := a.store.GetLatestNBars(ctx, symbol, n, tf)
	if err != nil {
		a.metrics.RecordError("store")
		return models.BarSeries{}, fmt.Errorf("load bars: %w", err)
	}
	if bars.Len() == 0 {
		return models.BarSeries{}, fmt.Errorf("%w: %s", ErrNoBars, symbol)
	}
	return bars, nil
}

// VolatilityParams selects one estimator run.
type VolatilityParams struct {
	Symbol    string
	Kind      models.VolKind
	Window    int
	Annualize bool
	N         int
	Timeframe domrepo.Timeframe
}

func (a *MarketAnalyzer) Volatility(ctx context.Context, p VolatilityParams) (models.Series, error) {
	bars, err := a.LoadBars(ctx, p.Symbol, p.N, p.Timeframe)
	if err != nil {
		return models.Series{}, err
	}
	return a.VolatilityOf(bars, p.Kind, p.Window, p.Annualize)
}

// VolatilityOf runs one estimator on already loaded bars.
func (a *MarketAnalyzer) VolatilityOf(bars models.BarSeries, kind models.VolKind, window int, annualize bool) (models.Series, error) {
	start := time.Now()
	s, err := a.vols.For(domrepo.Timeframe(bars.Timeframe)).Estimate(kind, bars, window, annualize)
	a.observe(string(kind), start, err)
	if err == nil && annualize {
		if last, ok := s.Last(); ok {
			a.metrics.RecordLatestVolatility(bars.Symbol, string(kind), last.Value)
		}
	}
	return s, err
}

// VolatilityAll runs every estimator with the default window of the bars' timeframe.
// Estimators that cannot run are reported in the error map keyed "volatility.<kind>".
func (a *MarketAnalyzer) VolatilityAll(bars models.BarSeries) (map[models.VolKind]models.Series, map[string]string) {
	cfg := a.vols.For(domrepo.Timeframe(bars.Timeframe)).Config()
	out := map[models.VolKind]models.Series{}
	errs := map[string]string{}
	for _, kind := range models.VolKinds {
		s, err := a.VolatilityOf(bars, kind, cfg.Window, cfg.Annualize)
		if err != nil {
			errs["volatility."+string(kind)] = err.Error()
			continue
		}
		out[kind] = s
	}
	return out, errs
}

// ConeView is a cone together with its per-period summary.
type ConeView struct {
	Cone    models.VolatilityCone `json:"cone"`
	Summary []models.ConeStats    `json:"summary"`
}

func (a *MarketAnalyzer) Cone(ctx context.Context, symbol string, n int, tf domrepo.Timeframe, periods []int) (ConeView, error) {
	bars, err := a.LoadBars(ctx, symbol, n, tf)
	if err != nil {
		return ConeView{}, err
	}
	return a.ConeOf(bars, periods)
}

func (a *MarketAnalyzer) ConeOf(bars models.BarSeries, periods []int) (ConeView, error) {
	est := a.vols.For(domrepo.Timeframe(bars.Timeframe))
	if len(periods) == 0 {
		periods = est.Config().ConePeriods
	}
	start := time.Now()
	cone, err := est.Cone(bars, periods)
	a.observe("cone", start, err)
	if err != nil {
		return ConeView{}, err
	}
	return ConeView{Cone: cone, Summary: analytics.ConeSummary(cone)}, nil
}

// RegimeView is a classification plus magnitude ranks of its clusters.
type RegimeView struct {
	Result models.RegimeResult `json:"result"`
	Ranks  []int               `json:"ranks"`
	Latest *models.RegimeState `json:"latest,omitempty"`
}

func (a *MarketAnalyzer) Regime(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (RegimeView, error) {
	bars, err := a.LoadBars(ctx, symbol, n, tf)
	if err != nil {
		return RegimeView{}, err
	}
	return a.RegimeOf(bars)
}

// RegimeOf classifies bars. A no-result outcome still returns the all-undefined labels.
func (a *MarketAnalyzer) RegimeOf(bars models.BarSeries) (RegimeView, error) {
	start := time.Now()
	res, err := a.regime.Classify(bars)
	a.observe("regime", start, err)
	view := RegimeView{Result: res}
	if err != nil {
		return view, err
	}
	view.Ranks = analytics.RankRegimes(res)
	if lb, ok := res.Latest(); ok {
		rank := view.Ranks[lb.Value]
		view.Latest = &models.RegimeState{Time: lb.Time, Label: lb.Value, Rank: rank, Name: analytics.RegimeName(rank, res.K)}
	}
	return view, nil
}

// CorrelationParams selects a sentiment correlation run.
type CorrelationParams struct {
	Symbol    string
	Target    string
	Lag       int
	Window    int
	N         int
	Timeframe domrepo.Timeframe
}

// SentimentCorrelation correlates the symbol's sentiment with a price-derived target
// over the span of the latest N bars.
func (a *MarketAnalyzer) SentimentCorrelation(ctx context.Context, p CorrelationParams) (models.CorrelationResult, error) {
	bars, err := a.LoadBars(ctx, p.Symbol, p.N, p.Timeframe)
	if err != nil {
		return models.CorrelationResult{}, err
	}
	return a.SentimentCorrelationOf(ctx, bars, p.Target, p.Lag, p.Window)
}

func (a *MarketAnalyzer) SentimentCorrelationOf(ctx context.Context, bars models.BarSeries, target string, lag, window int) (models.CorrelationResult, error) {
	primary, err := a.target(bars, target)
	if err != nil {
		return models.CorrelationResult{}, err
	}
	res := a.resolution
	if res == 0 {
		res = features.ResolutionForTF(bars.Timeframe)
	}
	primary = primary.In(a.loc)
	from := a.sentimentFrom(bars.Bars[0].Time, res)
	to := bars.Bars[len(bars.Bars)-1].Time.Add(features.ResolutionForTF(bars.Timeframe))
	pts, err := a.store.GetSentiment(ctx, bars.Symbol, from, to)
	if err != nil {
		a.metrics.RecordError("store")
		return models.CorrelationResult{}, fmt.Errorf("load sentiment: %w", err)
	}
	secondary := features.Sentiment(bars.Symbol+":sentiment", pts)

	start := time.Now()
	out, err := a.corr.Correlate(primary, secondary,
		analytics.WithLag(lag), analytics.WithWindow(window), analytics.WithResolution(res))
	a.observe("correlation", start, err)
	return out, err
}

// sentimentFrom is the start of the bucket before the one holding first, or earlier
// when the lookback reaches further.
func (a *MarketAnalyzer) sentimentFrom(first time.Time, res time.Duration) time.Time {
	cur := analytics.BucketStart(first, res, a.loc)
	from := analytics.BucketStart(cur.Add(-time.Nanosecond), res, a.loc)
	if a.lookback > 0 {
		if lb := analytics.BucketStart(first.Add(-a.lookback), res, a.loc); lb.Before(from) {
			from = lb
		}
	}
	return from
}

func (a *MarketAnalyzer) target(bars models.BarSeries, target string) (models.Series, error) {
	switch target {
	case "", TargetReturns:
		return features.LogReturns(bars), nil
	case TargetClose:
		return features.Closes(bars), nil
	case TargetVolatility:
		cfg := a.vols.For(domrepo.Timeframe(bars.Timeframe)).Config()
		return a.VolatilityOf(bars, models.VolHistorical, cfg.Window, cfg.Annualize)
	default:
		return models.Series{}, fmt.Errorf("%w: unknown correlation target %q", analytics.ErrInvalidConfig, target)
	}
}

func (a *MarketAnalyzer) observe(metric string, start time.Time, err error) {
	a.metrics.RecordComputation(metric, time.Since(start).Seconds())
	switch {
	case err == nil:
	case analytics.IsNoResult(err):
		a.metrics.RecordNoResult(metric, NoResultReason(err))
	default:
		a.metrics.RecordError(metric)
		a.l.Warn("analysis failed", applogger.String("metric", metric), applogger.Error(err))
	}
}

// NoResultReason names the class of a recoverable analytics outcome.
func NoResultReason(err error) string {
	switch {
	case errors.Is(err, analytics.ErrPrecondition):
		return "precondition"
	case errors.Is(err, analytics.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, analytics.ErrEmptyOverlap):
		return "empty_overlap"
	default:
		return "other"
	}
}

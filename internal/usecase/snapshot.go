package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"VolLens/internal/domain/models"
	domrepo "VolLens/internal/domain/repository"
)

// SnapshotUseCase assembles every analysis for a symbol in one pass over its bars.
type SnapshotUseCase struct {
	an      *MarketAnalyzer
	timeout time.Duration
	now     func() time.Time
}

func NewSnapshotUseCase(an *MarketAnalyzer) *SnapshotUseCase {
	return &SnapshotUseCase{an: an, timeout: 10 * time.Second, now: time.Now}
}

// SetTimeout bounds one Compute call; d <= 0 is ignored.
func (uc *SnapshotUseCase) SetTimeout(d time.Duration) {
	if d > 0 {
		uc.timeout = d
	}
}

type SnapshotParams struct {
	Symbol    string
	N         int
	Timeframe domrepo.Timeframe
}

// SnapshotBundle carries the full series behind a snapshot for persistence.
type SnapshotBundle struct {
	Snapshot   *models.AnalysisSnapshot
	Volatility map[models.VolKind]models.Series
	Regime     *models.RegimeResult
}

func (uc *SnapshotUseCase) GetSnapshot(ctx context.Context, p SnapshotParams) (*models.AnalysisSnapshot, error) {
	b, err := uc.Compute(ctx, p)
	if err != nil {
		return nil, err
	}
	return b.Snapshot, nil
}

// Compute loads bars once and runs the analyses concurrently. Only a failure to load
// bars is returned as an error; a failing analysis lands in Snapshot.Errors.
func (uc *SnapshotUseCase) Compute(ctx context.Context, p SnapshotParams) (*SnapshotBundle, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.N <= 0 {
		p.N = 500
	}
	if p.Timeframe == "" {
		p.Timeframe = domrepo.DefaultTimeframe()
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	bars, err := uc.an.LoadBars(ctx, p.Symbol, p.N, p.Timeframe)
	if err != nil {
		return nil, err
	}

	snap := &models.AnalysisSnapshot{
		ID:        uuid.New().String(),
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Timestamp: uc.now().UTC(),
		Bars:      bars.Len(),
		Errors:    map[string]string{},
	}
	bundle := &SnapshotBundle{Snapshot: snap}

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 4)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		series, errs := uc.an.VolatilityAll(bars)
		ch <- item{"volatility", series, nil}
		for k, v := range errs {
			ch <- item{k, nil, errors.New(v)}
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.an.ConeOf(bars, nil)
		ch <- item{"cone", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.an.RegimeOf(bars)
		ch <- item{"regime", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		lag, window := uc.an.CorrelationDefaults()
		v, err := uc.an.SentimentCorrelationOf(ctx, bars, TargetReturns, lag, window)
		ch <- item{"sentiment", v, err}
	}()

	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			snap.Errors[it.name] = it.err.Error()
			if it.name == "regime" {
				v := it.val.(RegimeView)
				bundle.Regime = &v.Result
			}
			continue
		}
		switch it.name {
		case "volatility":
			series := it.val.(map[models.VolKind]models.Series)
			bundle.Volatility = series
			snap.Volatility = latestPoints(series, bars)
		case "cone":
			snap.Cone = it.val.(ConeView).Summary
		case "regime":
			v := it.val.(RegimeView)
			bundle.Regime = &v.Result
			snap.Regime = v.Latest
		case "sentiment":
			v := it.val.(models.CorrelationResult)
			snap.Sentiment = &v
		}
	}

	if len(snap.Errors) == 0 {
		snap.Errors = nil
	}
	return bundle, nil
}

// latestPoints keeps the last defined value per estimator, or an undefined point
// at the last bar when an estimator has not warmed up yet.
func latestPoints(series map[models.VolKind]models.Series, bars models.BarSeries) map[models.VolKind]models.Point {
	if len(series) == 0 {
		return nil
	}
	last := bars.Bars[len(bars.Bars)-1].Time
	out := make(map[models.VolKind]models.Point, len(series))
	for kind, s := range series {
		if p, ok := s.Last(); ok {
			out[kind] = p
		} else {
			out[kind] = models.Undefined(last)
		}
	}
	return out
}

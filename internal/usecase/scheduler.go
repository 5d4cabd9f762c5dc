package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"VolLens/internal/domain/models"
	domrepo "VolLens/internal/domain/repository"
	svcmetrics "VolLens/internal/service/metrics"
	applogger "VolLens/pkg/logger"
)

// SchedulerSettings drives periodic snapshot recomputation.
type SchedulerSettings struct {
	Spec        string
	Symbols     []string
	Timeframe   domrepo.Timeframe
	Bars        int
	Concurrency int
	Persist     bool
	RunTimeout  time.Duration
}

// RunReport summarizes one scheduled pass.
type RunReport struct {
	Snapshots []*models.AnalysisSnapshot
	Failed    map[string]string
}

// SnapshotScheduler recomputes snapshots for a fixed symbol list on a cron
// schedule, optionally persists the derived series, and publishes the results.
type SnapshotScheduler struct {
	snaps *SnapshotUseCase
	sink  domrepo.FeatureSink
	pub   domrepo.Publisher
	cfg   SchedulerSettings
	cron  *cron.Cron
	l     *applogger.Logger
}

// NewSnapshotScheduler builds a scheduler. sink may be nil when nothing is persisted.
func NewSnapshotScheduler(snaps *SnapshotUseCase, sink domrepo.FeatureSink, pub domrepo.Publisher, cfg SchedulerSettings, l *applogger.Logger) *SnapshotScheduler {
	if l == nil {
		l = applogger.Nop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = domrepo.DefaultTimeframe()
	}
	return &SnapshotScheduler{
		snaps: snaps,
		sink:  sink,
		pub:   pub,
		cfg:   cfg,
		cron:  cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		l:     l,
	}
}

// Start registers the job and starts the cron loop.
func (s *SnapshotScheduler) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.l.Error("scheduled snapshot run failed", applogger.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	s.cron.Start()
	s.l.Info("snapshot scheduler started",
		applogger.String("spec", s.cfg.Spec),
		applogger.Strings("symbols", s.cfg.Symbols),
	)
	return nil
}

// Stop halts scheduling and waits for a running pass up to ctx.
func (s *SnapshotScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// RunOnce computes every configured symbol with bounded concurrency. A failing symbol
// is reported and does not stop the others; only a publish failure is returned.
func (s *SnapshotScheduler) RunOnce(ctx context.Context) (RunReport, error) {
	start := time.Now()
	report := RunReport{Failed: map[string]string{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, sym := range s.cfg.Symbols {
		sym := sym
		g.Go(func() error {
			snap, err := s.runSymbol(gctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[sym] = err.Error()
				return nil
			}
			report.Snapshots = append(report.Snapshots, snap)
			return nil
		})
	}
	_ = g.Wait()

	var pubErr error
	if s.pub != nil && len(report.Snapshots) > 0 {
		if err := s.pub.PublishSnapshots(ctx, report.Snapshots); err != nil {
			pubErr = fmt.Errorf("publish snapshots: %w", err)
		}
	}

	outcome := "ok"
	switch {
	case pubErr != nil || (len(report.Snapshots) == 0 && len(s.cfg.Symbols) > 0):
		outcome = "failed"
	case len(report.Failed) > 0:
		outcome = "partial"
	}
	svcmetrics.SchedulerRuns.WithLabelValues(outcome).Inc()
	s.l.Info("snapshot run finished",
		applogger.String("outcome", outcome),
		applogger.Int("ok", len(report.Snapshots)),
		applogger.Int("failed", len(report.Failed)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return report, pubErr
}

func (s *SnapshotScheduler) runSymbol(ctx context.Context, sym string) (*models.AnalysisSnapshot, error) {
	b, err := s.snaps.Compute(ctx, SnapshotParams{Symbol: sym, N: s.cfg.Bars, Timeframe: s.cfg.Timeframe})
	if err != nil {
		s.l.Warn("snapshot failed", applogger.String("symbol", sym), applogger.Error(err))
		return nil, err
	}
	if s.cfg.Persist && s.sink != nil {
		s.persist(ctx, sym, b)
	}
	return b.Snapshot, nil
}

// persist writes derived series; failures are logged and noted on the snapshot.
func (s *SnapshotScheduler) persist(ctx context.Context, sym string, b *SnapshotBundle) {
	note := func(key string, err error) {
		s.l.Warn("persist failed", applogger.String("symbol", sym), applogger.String("part", key), applogger.Error(err))
		if b.Snapshot.Errors == nil {
			b.Snapshot.Errors = map[string]string{}
		}
		b.Snapshot.Errors["persist."+key] = err.Error()
	}
	for kind, series := range b.Volatility {
		if err := s.sink.StoreSeries(ctx, sym, s.cfg.Timeframe, series); err != nil {
			note(string(kind), err)
		}
	}
	if b.Regime != nil {
		if err := s.sink.StoreRegimes(ctx, sym, s.cfg.Timeframe, *b.Regime); err != nil {
			note("regime", err)
		}
	}
}

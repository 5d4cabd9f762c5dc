package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "VolLens/internal/domain/repository"
	icache "VolLens/internal/service/cache"
	"VolLens/internal/service/ratelimit"
	"VolLens/internal/usecase"
	"VolLens/pkg/config"
	xhttp "VolLens/pkg/http"
	pkgkafka "VolLens/pkg/kafka"
	applogger "VolLens/pkg/logger"
)

const janitorInterval = time.Minute

// Closer releases an infrastructure client on shutdown.
type Closer interface {
	Close() error
}

// Components are the long-running parts of the service. Consumer, Scheduler and
// Limiter may be nil when disabled.
type Components struct {
	Handler   xhttp.Handler
	Store     domrepo.MarketStore
	Publisher domrepo.Publisher
	Consumer  *pkgkafka.Consumer
	Scheduler *usecase.SnapshotScheduler
	Cache     icache.BytesCache
	Limiter   *ratelimit.Limiter
	Closers   []Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	c          Components
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, l: l, c: c}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(); err != nil {
		return err
	}
	go a.janitor(ctx)

	<-ctx.Done()
	a.l.Info("shutdown signal received")

	shutdownCtx, stop := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer stop()
	return a.Shutdown(shutdownCtx)
}

// Start launches the HTTP server, the Kafka consumer and the scheduler.
func (a *App) Start() error {
	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.c.Handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(a.l),
	)

	if a.c.Consumer != nil {
		go func() {
			if err := a.c.Consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.Strings("topics", []string{a.cfg.Kafka.Topics.Bars, a.cfg.Kafka.Topics.Sentiment}))
	}

	if a.c.Scheduler != nil {
		if err := a.c.Scheduler.Start(); err != nil {
			return err
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// janitor evicts idle rate-limit buckets and expired in-process cache entries.
func (a *App) janitor(ctx context.Context) {
	t := time.NewTicker(janitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if a.c.Limiter != nil {
				a.c.Limiter.Prune(10 * janitorInterval)
			}
			if ttl, ok := a.c.Cache.(*icache.TTLCache); ok {
				if n := ttl.Sweep(); n > 0 {
					a.l.Debug("cache swept", applogger.Int("evicted", n))
				}
			}
		}
	}
}

// Shutdown stops intake first, then the scheduler, then closes clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.l.Info("shutting down...")

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.c.Scheduler != nil {
		if err := a.c.Scheduler.Stop(ctx); err != nil {
			a.l.Warn("scheduler stop error", applogger.Error(err))
		}
	}
	if a.c.Publisher != nil {
		if err := a.c.Publisher.Close(); err != nil {
			a.l.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.c.Store != nil {
		if err := a.c.Store.Close(); err != nil {
			a.l.Warn("store close error", applogger.Error(err))
		}
	}
	for _, c := range a.c.Closers {
		if err := c.Close(); err != nil {
			a.l.Warn("client close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}

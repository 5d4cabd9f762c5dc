package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"VolLens/internal/domain/models"
	domrepo "VolLens/internal/domain/repository"
	applogger "VolLens/pkg/logger"
)

// BreakerSettings tunes BreakerStore.
type BreakerSettings struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// BreakerStore guards a MarketStore with a circuit breaker so a failing database
// is not hammered by every request and scheduler tick.
type BreakerStore struct {
	next domrepo.MarketStore
	cb   *gobreaker.CircuitBreaker
	l    *applogger.Logger
}

func NewBreakerStore(next domrepo.MarketStore, st BreakerSettings, l *applogger.Logger) *BreakerStore {
	if l == nil {
		l = applogger.Nop()
	}
	if st.Name == "" {
		st.Name = "market_store"
	}
	if st.FailureThreshold == 0 {
		st.FailureThreshold = 5
	}
	b := &BreakerStore{next: next, l: l}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: st.MaxRequests,
		Interval:    st.Interval,
		Timeout:     st.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("circuit breaker state change",
				applogger.String("breaker", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()),
			)
		},
		// a caller that went away says nothing about the store
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return b
}

// State reports the breaker state, e.g. for health output.
func (b *BreakerStore) State() string { return b.cb.State().String() }

func (b *BreakerStore) execute(fn func() (interface{}, error)) (interface{}, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Join(domrepo.ErrStoreUnavailable, err)
	}
	return res, err
}

func (b *BreakerStore) GetBars(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) (models.BarSeries, error) {
	res, err := b.execute(func() (interface{}, error) {
		return b.next.GetBars(ctx, symbol, from, to, tf)
	})
	if err != nil {
		return models.BarSeries{}, err
	}
	return res.(models.BarSeries), nil
}

func (b *BreakerStore) GetLatestNBars(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (models.BarSeries, error) {
	res, err := b.execute(func() (interface{}, error) {
		return b.next.GetLatestNBars(ctx, symbol, n, tf)
	})
	if err != nil {
		return models.BarSeries{}, err
	}
	return res.(models.BarSeries), nil
}

func (b *BreakerStore) GetSentiment(ctx context.Context, symbol string, from, to time.Time) ([]models.SentimentPoint, error) {
	res, err := b.execute(func() (interface{}, error) {
		return b.next.GetSentiment(ctx, symbol, from, to)
	})
	if err != nil {
		return nil, err
	}
	return res.([]models.SentimentPoint), nil
}

func (b *BreakerStore) StoreBars(ctx context.Context, symbol string, tf domrepo.Timeframe, bars []models.PriceBar) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.next.StoreBars(ctx, symbol, tf, bars)
	})
	return err
}

func (b *BreakerStore) StoreSentiment(ctx context.Context, pts []models.SentimentPoint) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.next.StoreSentiment(ctx, pts)
	})
	return err
}

// Health bypasses the breaker so probes see the real store state.
func (b *BreakerStore) Health(ctx context.Context) error { return b.next.Health(ctx) }

func (b *BreakerStore) Close() error { return b.next.Close() }

var _ domrepo.MarketStore = (*BreakerStore)(nil)

package repository

import (
	"context"
	"errors"
	"time"

	"VolLens/internal/domain/models"
)

// Timeframe represents bar resolution buckets.
type Timeframe string

const (
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
	TF1h Timeframe = "1h"
	TF1d Timeframe = "1d"
)

// ErrStoreUnavailable is returned while the store is failing fast after repeated errors.
var ErrStoreUnavailable = errors.New("market store unavailable")

// MarketStore provides read access to bars and sentiment for analysis, and accepts
// ingested events from the collaborators that produce them.
type MarketStore interface {
	GetBars(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) (models.BarSeries, error)
	GetLatestNBars(ctx context.Context, symbol string, n int, tf Timeframe) (models.BarSeries, error)
	GetSentiment(ctx context.Context, symbol string, from, to time.Time) ([]models.SentimentPoint, error)
	StoreBars(ctx context.Context, symbol string, tf Timeframe, bars []models.PriceBar) error
	StoreSentiment(ctx context.Context, pts []models.SentimentPoint) error
	Health(ctx context.Context) error
	Close() error
}

// FeatureSink persists derived series so downstream consumers need not recompute them.
type FeatureSink interface {
	StoreSeries(ctx context.Context, symbol string, tf Timeframe, s models.Series) error
	StoreRegimes(ctx context.Context, symbol string, tf Timeframe, r models.RegimeResult) error
}

// Publisher emits analysis snapshots to downstream consumers.
type Publisher interface {
	PublishSnapshot(ctx context.Context, s *models.AnalysisSnapshot) error
	PublishSnapshots(ctx context.Context, ss []*models.AnalysisSnapshot) error
	Close() error
}

type Metrics interface {
	RecordComputation(metric string, seconds float64)
	RecordNoResult(metric, reason string)
	RecordError(kind string)
	RecordLatestVolatility(symbol, kind string, value float64)
}

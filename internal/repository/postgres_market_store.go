package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"VolLens/internal/domain/models"
	domrepo "VolLens/internal/domain/repository"
	applogger "VolLens/pkg/logger"
	pkgpg "VolLens/pkg/postgres"
)

// PGMarketStore implements MarketStore over the market_data and sentiment_data tables.
type PGMarketStore struct {
	db *sqlx.DB
	l  *applogger.Logger
}

func NewPGMarketStore(pg *pkgpg.Client) *PGMarketStore {
	return &PGMarketStore{db: pg.DB(), l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *PGMarketStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

const pgBarColumns = `timestamp, open, high, low, close, volume, oi`

func (s *PGMarketStore) GetBars(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) (models.BarSeries, error) {
	start := time.Now()
	q := `SELECT ` + pgBarColumns + ` FROM market_data
        WHERE tradingsymbol = $1 AND timeframe = $2 AND timestamp >= $3 AND timestamp <= $4
        ORDER BY timestamp ASC`
	var rows []barRow
	if err := s.db.SelectContext(ctx, &rows, q, symbol, string(tf), from, to); err != nil {
		s.l.Error("postgres get_bars error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return models.BarSeries{}, fmt.Errorf("get bars: %w", err)
	}
	s.l.Info("postgres get_bars ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(rows)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return assembleBars(symbol, string(tf), rows), nil
}

func (s *PGMarketStore) GetLatestNBars(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (models.BarSeries, error) {
	q := `SELECT ` + pgBarColumns + ` FROM market_data
        WHERE tradingsymbol = $1 AND timeframe = $2
        ORDER BY timestamp DESC
        LIMIT $3`
	var rows []barRow
	if err := s.db.SelectContext(ctx, &rows, q, symbol, string(tf), n); err != nil {
		s.l.Error("postgres latest_bars error",
			applogger.String("symbol", symbol),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return models.BarSeries{}, fmt.Errorf("get latest bars: %w", err)
	}
	reverseRows(rows)
	return assembleBars(symbol, string(tf), rows), nil
}

type sentimentRow struct {
	Time      time.Time       `db:"timestamp"`
	Symbol    sql.NullString  `db:"tradingsymbol"`
	Source    string          `db:"source"`
	Score     float64         `db:"sentiment_score"`
	Magnitude sql.NullFloat64 `db:"sentiment_magnitude"`
}

// GetSentiment returns scores tagged with symbol and untagged market-wide scores.
func (s *PGMarketStore) GetSentiment(ctx context.Context, symbol string, from, to time.Time) ([]models.SentimentPoint, error) {
	const q = `SELECT timestamp, tradingsymbol, source, sentiment_score, sentiment_magnitude
        FROM sentiment_data
        WHERE (tradingsymbol = $1 OR tradingsymbol IS NULL OR tradingsymbol = '')
          AND timestamp >= $2 AND timestamp <= $3
        ORDER BY timestamp ASC`
	var rows []sentimentRow
	if err := s.db.SelectContext(ctx, &rows, q, symbol, from, to); err != nil {
		s.l.Error("postgres get_sentiment error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("get sentiment: %w", err)
	}
	out := make([]models.SentimentPoint, len(rows))
	for i, r := range rows {
		out[i] = models.SentimentPoint{
			Time:      r.Time.UTC(),
			Symbol:    r.Symbol.String,
			Source:    r.Source,
			Score:     r.Score,
			Magnitude: r.Magnitude.Float64,
		}
	}
	return out, nil
}

func (s *PGMarketStore) StoreBars(ctx context.Context, symbol string, tf domrepo.Timeframe, bars []models.PriceBar) error {
	const q = `INSERT INTO market_data (tradingsymbol, timeframe, timestamp, open, high, low, close, volume, oi)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (tradingsymbol, timeframe, timestamp) DO UPDATE SET
            open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
            close = EXCLUDED.close, volume = EXCLUDED.volume, oi = EXCLUDED.oi`
	err := execBatch(ctx, s.db, q, len(bars), func(i int) []interface{} {
		b := bars[i]
		return []interface{}{symbol, string(tf), b.Time.UTC(),
			nullable(b.Open), nullable(b.High), nullable(b.Low), nullable(b.Close),
			nullable(b.Volume), nullable(b.OpenInterest)}
	})
	if err != nil {
		s.l.Error("postgres store_bars error", applogger.String("symbol", symbol), applogger.Error(err))
		return fmt.Errorf("store bars: %w", err)
	}
	return nil
}

func (s *PGMarketStore) StoreSentiment(ctx context.Context, pts []models.SentimentPoint) error {
	const q = `INSERT INTO sentiment_data (source, tradingsymbol, timestamp, sentiment_score, sentiment_magnitude)
        VALUES ($1, $2, $3, $4, $5)`
	err := execBatch(ctx, s.db, q, len(pts), func(i int) []interface{} {
		p := pts[i]
		var sym interface{}
		if p.Symbol != "" {
			sym = p.Symbol
		}
		return []interface{}{p.Source, sym, p.Time.UTC(), p.Score, p.Magnitude}
	})
	if err != nil {
		s.l.Error("postgres store_sentiment error", applogger.Int("rows", len(pts)), applogger.Error(err))
		return fmt.Errorf("store sentiment: %w", err)
	}
	return nil
}

func (s *PGMarketStore) Health(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close is a no-op; the pool belongs to the postgres client.
func (s *PGMarketStore) Close() error { return nil }

// PGFeatureSink persists derived output next to market_data.
type PGFeatureSink struct {
	db  *sqlx.DB
	now func() time.Time
	l   *applogger.Logger
}

func NewPGFeatureSink(pg *pkgpg.Client) *PGFeatureSink {
	return &PGFeatureSink{db: pg.DB(), now: time.Now, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *PGFeatureSink) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *PGFeatureSink) StoreSeries(ctx context.Context, symbol string, tf domrepo.Timeframe, series models.Series) error {
	const q = `INSERT INTO derived_series (tradingsymbol, timeframe, name, timestamp, value, computed_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (tradingsymbol, timeframe, name, timestamp) DO UPDATE SET
            value = EXCLUDED.value, computed_at = EXCLUDED.computed_at`
	computed := s.now().UTC()
	err := execBatch(ctx, s.db, q, len(series.Points), func(i int) []interface{} {
		p := series.Points[i]
		var v interface{}
		if p.Valid {
			v = p.Value
		}
		return []interface{}{symbol, string(tf), series.Name, p.Time.UTC(), v, computed}
	})
	if err != nil {
		s.l.Error("postgres store_series error", applogger.String("series", series.Name), applogger.Error(err))
		return fmt.Errorf("store series %s: %w", series.Name, err)
	}
	return nil
}

func (s *PGFeatureSink) StoreRegimes(ctx context.Context, symbol string, tf domrepo.Timeframe, r models.RegimeResult) error {
	const q = `INSERT INTO regime_labels (tradingsymbol, timeframe, k, timestamp, label, computed_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (tradingsymbol, timeframe, k, timestamp) DO UPDATE SET
            label = EXCLUDED.label, computed_at = EXCLUDED.computed_at`
	computed := s.now().UTC()
	err := execBatch(ctx, s.db, q, len(r.Labels), func(i int) []interface{} {
		lb := r.Labels[i]
		var v interface{}
		if lb.Valid {
			v = int64(lb.Value)
		}
		return []interface{}{symbol, string(tf), int64(r.K), lb.Time.UTC(), v, computed}
	})
	if err != nil {
		s.l.Error("postgres store_regimes error", applogger.String("symbol", symbol), applogger.Error(err))
		return fmt.Errorf("store regimes: %w", err)
	}
	return nil
}

// execBatch runs one prepared statement n times inside a transaction.
func execBatch(ctx context.Context, db *sqlx.DB, q string, n int, argsAt func(i int) []interface{}) (err error) {
	if n == 0 {
		return nil
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PreparexContext(ctx, q)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err = stmt.ExecContext(ctx, argsAt(i)...); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var (
	_ domrepo.MarketStore = (*PGMarketStore)(nil)
	_ domrepo.FeatureSink = (*PGFeatureSink)(nil)
)

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"VolLens/internal/domain/models"
	domrepo "VolLens/internal/domain/repository"
	pkgch "VolLens/pkg/clickhouse"
	applogger "VolLens/pkg/logger"
)

const defaultBatchSize = 2000

// CHMarketStore implements MarketStore backed by ClickHouse.
type CHMarketStore struct {
	db        *sql.DB
	database  string
	batchSize int
	l         *applogger.Logger
}

func NewCHMarketStore(ch *pkgch.Client, batchSize int) *CHMarketStore {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &CHMarketStore{db: ch.DB(), database: ch.Database(), batchSize: batchSize, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHMarketStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CHMarketStore) table(name string) string { return s.database + "." + name }

func (s *CHMarketStore) GetBars(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) (models.BarSeries, error) {
	start := time.Now()
	const qtpl = `
        SELECT ts, open, high, low, close, volume, oi
        FROM %s FINAL
        WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	table := s.table("market_bars")
	rows, err := s.queryBars(ctx, "get_bars", fmt.Sprintf(qtpl, table), symbol, string(tf), from, to)
	if err != nil {
		return models.BarSeries{}, err
	}
	s.l.Info("clickhouse get_bars ok",
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(rows)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return assembleBars(symbol, string(tf), rows), nil
}

func (s *CHMarketStore) GetLatestNBars(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (models.BarSeries, error) {
	start := time.Now()
	const qtpl = `
        SELECT ts, open, high, low, close, volume, oi
        FROM %s FINAL
        WHERE symbol = ? AND timeframe = ?
        ORDER BY ts DESC
        LIMIT ?
    `
	table := s.table("market_bars")
	rows, err := s.queryBars(ctx, "latest_bars", fmt.Sprintf(qtpl, table), symbol, string(tf), n)
	if err != nil {
		return models.BarSeries{}, err
	}
	reverseRows(rows)
	s.l.Info("clickhouse latest_bars ok",
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("limit", n),
		applogger.Int("rows", len(rows)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return assembleBars(symbol, string(tf), rows), nil
}

func (s *CHMarketStore) queryBars(ctx context.Context, op, q string, args ...interface{}) ([]barRow, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse "+op+" query error", applogger.Error(err))
		return nil, fmt.Errorf("%s: %w", strings.ReplaceAll(op, "_", " "), err)
	}
	defer rows.Close()

	out := make([]barRow, 0, 256)
	for rows.Next() {
		var r barRow
		if err := rows.Scan(&r.Time, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume, &r.OI); err != nil {
			s.l.Error("clickhouse "+op+" scan error", applogger.Error(err))
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse "+op+" rows error", applogger.Error(err))
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// GetSentiment returns scores for symbol plus market-wide scores (empty symbol).
func (s *CHMarketStore) GetSentiment(ctx context.Context, symbol string, from, to time.Time) ([]models.SentimentPoint, error) {
	start := time.Now()
	const qtpl = `
        SELECT ts, symbol, source, score, magnitude
        FROM %s
        WHERE symbol IN (?, '') AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	table := s.table("sentiment_scores")
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, table), symbol, from, to)
	if err != nil {
		s.l.Error("clickhouse get_sentiment query error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get sentiment: %w", err)
	}
	defer rows.Close()

	var out []models.SentimentPoint
	for rows.Next() {
		var p models.SentimentPoint
		if err := rows.Scan(&p.Time, &p.Symbol, &p.Source, &p.Score, &p.Magnitude); err != nil {
			s.l.Error("clickhouse get_sentiment scan error", applogger.String("symbol", symbol), applogger.Error(err))
			return nil, fmt.Errorf("scan sentiment: %w", err)
		}
		p.Time = p.Time.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Info("clickhouse get_sentiment ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// StoreBars inserts bars in multi-row chunks. NaN values are stored as NULL.
func (s *CHMarketStore) StoreBars(ctx context.Context, symbol string, tf domrepo.Timeframe, bars []models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	table := s.table("market_bars")
	for _, c := range chunks(len(bars), s.batchSize) {
		values := make([]string, 0, c[1]-c[0])
		args := make([]interface{}, 0, (c[1]-c[0])*9)
		for _, b := range bars[c[0]:c[1]] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, symbol, string(tf), b.Time.UTC(),
				nullable(b.Open), nullable(b.High), nullable(b.Low), nullable(b.Close),
				nullable(b.Volume), nullable(b.OpenInterest))
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, timeframe, ts, open, high, low, close, volume, oi) VALUES %s", table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_bars error",
				applogger.String("symbol", symbol),
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
			return fmt.Errorf("store bars: %w", err)
		}
	}
	return nil
}

func (s *CHMarketStore) StoreSentiment(ctx context.Context, pts []models.SentimentPoint) error {
	if len(pts) == 0 {
		return nil
	}
	table := s.table("sentiment_scores")
	for _, c := range chunks(len(pts), s.batchSize) {
		values := make([]string, 0, c[1]-c[0])
		args := make([]interface{}, 0, (c[1]-c[0])*5)
		for _, p := range pts[c[0]:c[1]] {
			values = append(values, "(?, ?, ?, ?, ?)")
			args = append(args, p.Symbol, p.Source, p.Time.UTC(), p.Score, p.Magnitude)
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, source, ts, score, magnitude) VALUES %s", table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_sentiment error", applogger.Int("rows", len(values)), applogger.Error(err))
			return fmt.Errorf("store sentiment: %w", err)
		}
	}
	return nil
}

func (s *CHMarketStore) Health(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *CHMarketStore) Close() error { return nil }

var _ domrepo.MarketStore = (*CHMarketStore)(nil)

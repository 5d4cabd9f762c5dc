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

// CHFeatureSink writes derived series and regime labels to ClickHouse.
// Undefined points are kept as NULL so readers see the same warm-up gaps.
type CHFeatureSink struct {
	db        *sql.DB
	database  string
	batchSize int
	now       func() time.Time
	l         *applogger.Logger
}

func NewCHFeatureSink(ch *pkgch.Client, batchSize int) *CHFeatureSink {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &CHFeatureSink{
		db:        ch.DB(),
		database:  ch.Database(),
		batchSize: batchSize,
		now:       time.Now,
		l:         applogger.Nop(),
	}
}

// SetLogger injects a structured logger.
func (s *CHFeatureSink) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CHFeatureSink) StoreSeries(ctx context.Context, symbol string, tf domrepo.Timeframe, series models.Series) error {
	if len(series.Points) == 0 {
		return nil
	}
	start := time.Now()
	computed := s.now().UTC()
	table := s.database + ".derived_series"
	for _, c := range chunks(len(series.Points), s.batchSize) {
		values := make([]string, 0, c[1]-c[0])
		args := make([]interface{}, 0, (c[1]-c[0])*6)
		for _, p := range series.Points[c[0]:c[1]] {
			var v interface{}
			if p.Valid {
				v = p.Value
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, symbol, string(tf), series.Name, p.Time.UTC(), v, computed)
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, timeframe, name, ts, value, computed) VALUES %s", table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_series error",
				applogger.String("symbol", symbol),
				applogger.String("series", series.Name),
				applogger.Error(err),
			)
			return fmt.Errorf("store series %s: %w", series.Name, err)
		}
	}
	s.l.Debug("clickhouse store_series ok",
		applogger.String("symbol", symbol),
		applogger.String("series", series.Name),
		applogger.Int("points", len(series.Points)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHFeatureSink) StoreRegimes(ctx context.Context, symbol string, tf domrepo.Timeframe, r models.RegimeResult) error {
	if len(r.Labels) == 0 {
		return nil
	}
	computed := s.now().UTC()
	table := s.database + ".regime_labels"
	for _, c := range chunks(len(r.Labels), s.batchSize) {
		values := make([]string, 0, c[1]-c[0])
		args := make([]interface{}, 0, (c[1]-c[0])*6)
		for _, lb := range r.Labels[c[0]:c[1]] {
			var v interface{}
			if lb.Valid {
				v = int32(lb.Value)
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, symbol, string(tf), uint8(r.K), lb.Time.UTC(), v, computed)
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, timeframe, k, ts, label, computed) VALUES %s", table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_regimes error", applogger.String("symbol", symbol), applogger.Error(err))
			return fmt.Errorf("store regimes: %w", err)
		}
	}
	return nil
}

var _ domrepo.FeatureSink = (*CHFeatureSink)(nil)

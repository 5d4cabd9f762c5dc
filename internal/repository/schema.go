package repository

import "fmt"

// ClickHouseSchema returns idempotent DDL for the market and feature tables in db.
func ClickHouseSchema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.market_bars (
    symbol    LowCardinality(String),
    timeframe LowCardinality(String),
    ts        DateTime64(3, 'UTC'),
    open      Nullable(Float64),
    high      Nullable(Float64),
    low       Nullable(Float64),
    close     Nullable(Float64),
    volume    Nullable(Float64),
    oi        Nullable(Float64),
    ingested  DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(ingested)
PARTITION BY toYYYYMM(ts)
ORDER BY (symbol, timeframe, ts)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.sentiment_scores (
    symbol    LowCardinality(String),
    source    LowCardinality(String),
    ts        DateTime64(3, 'UTC'),
    score     Float64,
    magnitude Float64
) ENGINE = MergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (symbol, ts, source)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.derived_series (
    symbol    LowCardinality(String),
    timeframe LowCardinality(String),
    name      LowCardinality(String),
    ts        DateTime64(3, 'UTC'),
    value     Nullable(Float64),
    computed  DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(computed)
ORDER BY (symbol, timeframe, name, ts)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.regime_labels (
    symbol    LowCardinality(String),
    timeframe LowCardinality(String),
    k         UInt8,
    ts        DateTime64(3, 'UTC'),
    label     Nullable(Int32),
    computed  DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(computed)
ORDER BY (symbol, timeframe, k, ts)`, db),
	}
}

// PostgresSchema returns idempotent DDL for the relational layout: market_data
// and sentiment_data as the ingest side writes them, plus the derived tables.
func PostgresSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS market_data (
    id               BIGSERIAL PRIMARY KEY,
    instrument_token BIGINT,
    tradingsymbol    VARCHAR(64) NOT NULL,
    timeframe        VARCHAR(8) NOT NULL DEFAULT '1d',
    timestamp        TIMESTAMPTZ NOT NULL,
    open             DOUBLE PRECISION,
    high             DOUBLE PRECISION,
    low              DOUBLE PRECISION,
    close            DOUBLE PRECISION,
    volume           DOUBLE PRECISION,
    oi               DOUBLE PRECISION,
    UNIQUE (tradingsymbol, timeframe, timestamp)
)`,
		`CREATE TABLE IF NOT EXISTS sentiment_data (
    id                  BIGSERIAL PRIMARY KEY,
    source              VARCHAR(64) NOT NULL,
    tradingsymbol       VARCHAR(64),
    timestamp           TIMESTAMPTZ NOT NULL,
    text                TEXT,
    sentiment_score     DOUBLE PRECISION NOT NULL,
    sentiment_magnitude DOUBLE PRECISION,
    keywords            TEXT
)`,
		`CREATE INDEX IF NOT EXISTS sentiment_data_ts_idx ON sentiment_data (timestamp)`,
		`CREATE TABLE IF NOT EXISTS derived_series (
    tradingsymbol VARCHAR(64) NOT NULL,
    timeframe     VARCHAR(8) NOT NULL,
    name          VARCHAR(128) NOT NULL,
    timestamp     TIMESTAMPTZ NOT NULL,
    value         DOUBLE PRECISION,
    computed_at   TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (tradingsymbol, timeframe, name, timestamp)
)`,
		`CREATE TABLE IF NOT EXISTS regime_labels (
    tradingsymbol VARCHAR(64) NOT NULL,
    timeframe     VARCHAR(8) NOT NULL,
    k             SMALLINT NOT NULL,
    timestamp     TIMESTAMPTZ NOT NULL,
    label         INTEGER,
    computed_at   TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (tradingsymbol, timeframe, k, timestamp)
)`,
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RequestTimeout  time.Duration `yaml:"request_timeout" default:"10s"`
		RateLimit       struct {
			RPS   float64 `yaml:"rps" default:"10" validate:"gte=0"`
			Burst int     `yaml:"burst" default:"20" validate:"gte=0"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logger struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic"`
		Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxBackups int    `yaml:"max_backups" default:"5"`
		MaxAgeDays int    `yaml:"max_age_days" default:"14"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`
	Storage struct {
		Driver    string        `yaml:"driver" default:"clickhouse" validate:"oneof=clickhouse postgres"`
		BatchSize int           `yaml:"batch_size" default:"1000" validate:"gt=0"`
		Breaker   BreakerConfig `yaml:"breaker"`
	} `yaml:"storage"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"vollens"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Postgres struct {
		DSN          string        `yaml:"dsn"`
		MaxOpenConns int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns int           `yaml:"max_idle_conns" default:"5"`
		ConnLifetime time.Duration `yaml:"conn_lifetime" default:"30m"`
	} `yaml:"postgres"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Topics       struct {
			Bars      string `yaml:"bars" default:"market.bars"`
			Sentiment string `yaml:"sentiment" default:"market.sentiment"`
			Snapshots string `yaml:"snapshots" default:"analysis.snapshots"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"vollens"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Cache struct {
		TTL   time.Duration `yaml:"ttl" default:"30s"`
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// BreakerConfig tunes the circuit breaker in front of the market store.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled" default:"true"`
	MaxRequests      uint32        `yaml:"max_requests" default:"3"`
	Interval         time.Duration `yaml:"interval" default:"60s"`
	Timeout          time.Duration `yaml:"timeout" default:"30s"`
	FailureThreshold uint32        `yaml:"failure_threshold" default:"5"`
}

// AnalysisConfig is passed to the analytics constructors; it is fixed for the process lifetime.
type AnalysisConfig struct {
	Window         int     `yaml:"window" default:"20" validate:"gte=3"`
	Annualize      bool    `yaml:"annualize" default:"true"`
	PeriodsPerYear float64 `yaml:"periods_per_year" default:"252" validate:"gt=0"`
	ConePeriods    []int   `yaml:"cone_periods" default:"[20,60,120,252]" validate:"min=1,dive,gte=3"`
	Regime         struct {
		K       int    `yaml:"k" default:"3" validate:"gte=1"`
		Window  int    `yaml:"window" default:"20" validate:"gte=3"`
		Seed    uint64 `yaml:"seed" default:"42"`
		NInit   int    `yaml:"n_init" default:"10" validate:"gte=1"`
		MaxIter int    `yaml:"max_iter" default:"300" validate:"gte=1"`
	} `yaml:"regime"`
	Correlation struct {
		Lag        int           `yaml:"lag" validate:"gte=0"`
		Window     int           `yaml:"window" validate:"gte=0,ne=1"`
		Resolution time.Duration `yaml:"resolution"`
		Lookback   time.Duration `yaml:"lookback" validate:"gte=0"`
		Timezone   string        `yaml:"timezone" default:"UTC"`
	} `yaml:"correlation"`
}

// SchedulerConfig drives periodic snapshot recomputation.
type SchedulerConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Spec        string   `yaml:"spec" default:"0 */5 * * * *"`
	Symbols     []string `yaml:"symbols"`
	Timeframe   string   `yaml:"timeframe" default:"1d" validate:"oneof=1m 5m 1h 1d"`
	Bars        int      `yaml:"bars" default:"500" validate:"gt=0"`
	Concurrency int      `yaml:"concurrency" default:"4" validate:"gt=0"`
	Persist     bool     `yaml:"persist" default:"true"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse applies defaults, decodes YAML over them and validates the result.
// Defaults go first so that an explicit false or zero in the file is kept.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file in the working directory, if present, is loaded first.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment lookup.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		c.Cache.Redis.Enabled = true
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Scheduler.Symbols = strings.Split(v, ",")
	}
	if v := getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("ANALYSIS_WINDOW"); v != "" {
		w, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ANALYSIS_WINDOW: %w", err)
		}
		c.Analysis.Window = w
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Storage.Driver == "postgres" && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when storage.driver is postgres")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Scheduler.Enabled && len(c.Scheduler.Symbols) == 0 {
		return fmt.Errorf("scheduler.symbols cannot be empty when the scheduler is enabled")
	}
	if _, err := time.LoadLocation(c.Analysis.Correlation.Timezone); err != nil {
		return fmt.Errorf("analysis.correlation.timezone: %w", err)
	}
	return nil
}

// MarketLocation is the zone correlation buckets follow. Validate has already
// rejected an unknown name, so a lookup failure falls back to UTC.
func (c *Config) MarketLocation() *time.Location {
	loc, err := time.LoadLocation(c.Analysis.Correlation.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

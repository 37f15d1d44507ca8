package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            bool          `yaml:"cors" default:"true"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
	} `yaml:"server"`
	Log struct {
		Level      string `yaml:"level" default:"info"`
		Format     string `yaml:"format" default:"console"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxBackups int    `yaml:"max_backups" default:"5"`
		MaxAgeDays int    `yaml:"max_age_days" default:"14"`
		Compress   bool   `yaml:"compress"`
		// Aggregated error logs are published to this Kafka topic when Kafka is enabled.
		CollectorTopic    string        `yaml:"collector_topic" default:"coindash.logs"`
		CollectorInterval time.Duration `yaml:"collector_interval" default:"30s"`
	} `yaml:"log"`
	Store struct {
		Backend string        `yaml:"backend" default:"postgres"` // clickhouse | postgres | postgrest
		Timeout time.Duration `yaml:"timeout" default:"15s"`
	} `yaml:"store"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"coindash"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"5m"`
	} `yaml:"postgres"`
	PostgREST struct {
		URL     string        `yaml:"url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout" default:"15s"`
	} `yaml:"postgrest"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Host     string        `yaml:"host" default:"localhost"`
		Port     int           `yaml:"port" default:"6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		PoolSize int           `yaml:"pool_size" default:"10"`
		Timeout  time.Duration `yaml:"timeout" default:"30s"`
		Prefix   string        `yaml:"prefix" default:"coindash"`
	} `yaml:"redis"`
	Cache struct {
		SeriesTTL     time.Duration `yaml:"series_ttl" default:"5m"`
		CoinsTTL      time.Duration `yaml:"coins_ttl" default:"15m"`
		EvaluationTTL time.Duration `yaml:"evaluation_ttl" default:"5m"`
		MemoryMaxSize int           `yaml:"memory_max_size" default:"1000"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"coindash.metric-events"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"coindash"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"10"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Dashboard struct {
		DefaultCoins []string `yaml:"default_coins" default:"[\"BTC\",\"ETH\",\"SOL\",\"BNB\"]"`
		DefaultStart string   `yaml:"default_start" default:"2024-01-01"`
		EarliestDate string   `yaml:"earliest_date" default:"2022-12-31"`
		MaxRangeDays int      `yaml:"max_range_days" default:"1500"`
		MaxCoins     int      `yaml:"max_coins" default:"50"`
	} `yaml:"dashboard"`
	Scheduler struct {
		Enabled   bool   `yaml:"enabled" default:"true"`
		WarmSpec  string `yaml:"warm_spec" default:"0 */15 * * * *"`
		WarmRange string `yaml:"warm_range" default:"3m"`
	} `yaml:"scheduler"`
	RateLimit struct {
		Enabled bool    `yaml:"enabled" default:"true"`
		RPS     float64 `yaml:"rps" default:"5"`
		Burst   int     `yaml:"burst" default:"10"`
	} `yaml:"ratelimit"`
}

// Load reads and parses a YAML configuration file, applying struct defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// decode applies struct defaults first so that YAML can override them,
// including explicit false and zero values.
func decode(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads a .env file (if any), then the YAML config, then applies
// environment overrides. ENV_FILE selects the .env path.
func LoadWithEnv(path string) (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		c.PostgREST.URL = v
	}
	if v := os.Getenv("SUPABASE_KEY"); v != "" {
		c.PostgREST.APIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
		c.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Store.Backend {
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for store.backend=clickhouse")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for store.backend=postgres")
		}
	case "postgrest":
		if c.PostgREST.URL == "" {
			return fmt.Errorf("postgrest.url is required for store.backend=postgrest")
		}
	default:
		return fmt.Errorf("store.backend must be 'clickhouse', 'postgres' or 'postgrest', got '%s'", c.Store.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if len(c.Dashboard.DefaultCoins) == 0 {
		return fmt.Errorf("dashboard.default_coins cannot be empty")
	}
	if _, err := time.Parse("2006-01-02", c.Dashboard.EarliestDate); err != nil {
		return fmt.Errorf("dashboard.earliest_date: %w", err)
	}
	if _, err := time.Parse("2006-01-02", c.Dashboard.DefaultStart); err != nil {
		return fmt.Errorf("dashboard.default_start: %w", err)
	}
	switch c.Scheduler.WarmRange {
	case "7d", "1m", "3m", "6m", "1y", "all":
	default:
		return fmt.Errorf("scheduler.warm_range must be one of 7d, 1m, 3m, 6m, 1y, all, got '%s'", c.Scheduler.WarmRange)
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("ratelimit.rps must be positive")
	}
	return nil
}

package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"matchsim/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the simulator.
// LoadConfig reads it from YAML, then applies environment overrides.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Engine struct {
		OrderTimeoutMS int `yaml:"order_timeout_ms"`
		Workers        int `yaml:"workers"`
		BackoffMS      int `yaml:"backoff_ms"`
		EventBuffer    int `yaml:"event_buffer"`
		DrainTimeoutMS int `yaml:"drain_timeout_ms"`
	} `yaml:"engine"`

	Simulator struct {
		Manual          bool            `yaml:"manual"`
		Brokers         int             `yaml:"brokers"`
		OrdersPerBroker int             `yaml:"orders_per_broker"`
		Tickers         []string        `yaml:"tickers"`
		MinQty          int64           `yaml:"min_qty"`
		MaxQty          int64           `yaml:"max_qty"`
		MinPrice        decimal.Decimal `yaml:"min_price"`
		MaxPrice        decimal.Decimal `yaml:"max_price"`
		OrdersPerSecond float64         `yaml:"orders_per_second"`
		Seed            int64           `yaml:"seed"`
	} `yaml:"simulator"`

	Storage struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"storage"`

	Feed struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"feed"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// DefaultConfig returns the settings used when no file overrides them.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "matchsim"
	cfg.App.Version = "dev"

	cfg.Engine.OrderTimeoutMS = 3000
	cfg.Engine.Workers = 20
	cfg.Engine.BackoffMS = 10
	cfg.Engine.EventBuffer = 1024
	cfg.Engine.DrainTimeoutMS = 10000

	cfg.Simulator.Brokers = 10
	cfg.Simulator.OrdersPerBroker = 10
	for i := 1; i <= 10; i++ {
		cfg.Simulator.Tickers = append(cfg.Simulator.Tickers, fmt.Sprintf("Ticker_%d", i))
	}
	cfg.Simulator.MinQty = 1
	cfg.Simulator.MaxQty = 100
	cfg.Simulator.MinPrice = decimal.NewFromInt(10)
	cfg.Simulator.MaxPrice = decimal.NewFromInt(1000)
	cfg.Simulator.OrdersPerSecond = 100

	cfg.Storage.Path = "data/matchsim.db"
	cfg.Feed.Addr = "localhost:8090"

	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return &cfg
}

// LoadConfig reads and parses the YAML file at path on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// OrderTimeout is the matching attempt bound for each BUY order.
func (c *Config) OrderTimeout() time.Duration {
	return time.Duration(c.Engine.OrderTimeoutMS) * time.Millisecond
}

// Backoff is the idle wait between scans of a matching attempt.
func (c *Config) Backoff() time.Duration {
	return time.Duration(c.Engine.BackoffMS) * time.Millisecond
}

// DrainTimeout bounds how long shutdown waits for in-flight attempts.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Engine.DrainTimeoutMS) * time.Millisecond
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	// Engine
	if c.Engine.OrderTimeoutMS <= 0 {
		return &domain.ConfigError{Field: "engine.order_timeout_ms", Err: errors.New("must be positive")}
	}
	if c.Engine.Workers <= 0 {
		return &domain.ConfigError{Field: "engine.workers", Err: errors.New("must be positive")}
	}
	if c.Engine.BackoffMS <= 0 {
		return &domain.ConfigError{Field: "engine.backoff_ms", Err: errors.New("must be positive")}
	}
	if c.Engine.EventBuffer < 0 {
		return &domain.ConfigError{Field: "engine.event_buffer", Err: errors.New("must not be negative")}
	}

	// Simulator
	if !c.Simulator.Manual && len(c.Simulator.Tickers) == 0 {
		return &domain.ConfigError{Field: "simulator.tickers", Err: errors.New("at least one ticker is required")}
	}
	if c.Simulator.Brokers <= 0 {
		return &domain.ConfigError{Field: "simulator.brokers", Err: errors.New("must be positive")}
	}
	if c.Simulator.MinQty <= 0 || c.Simulator.MinQty > c.Simulator.MaxQty {
		return &domain.ConfigError{Field: "simulator.min_qty", Err: fmt.Errorf("need 0 < min_qty <= max_qty, got %d..%d", c.Simulator.MinQty, c.Simulator.MaxQty)}
	}
	if c.Simulator.MinPrice.IsNegative() || c.Simulator.MinPrice.GreaterThan(c.Simulator.MaxPrice) {
		return &domain.ConfigError{Field: "simulator.min_price", Err: fmt.Errorf("need 0 <= min_price <= max_price, got %s..%s", c.Simulator.MinPrice, c.Simulator.MaxPrice)}
	}

	// Storage / Feed
	if c.Storage.Enabled && c.Storage.Path == "" {
		return &domain.ConfigError{Field: "storage.path", Err: errors.New("required when storage is enabled")}
	}
	if c.Feed.Enabled && c.Feed.Addr == "" {
		return &domain.ConfigError{Field: "feed.addr", Err: errors.New("required when feed is enabled")}
	}

	return nil
}

// overrideWithEnv replaces settings with environment variables when they are set.
func overrideWithEnv(cfg *Config) {
	if v, ok := envInt("MATCHSIM_ORDER_TIMEOUT_MS"); ok {
		cfg.Engine.OrderTimeoutMS = v
	}
	if v, ok := envInt("MATCHSIM_WORKERS"); ok {
		cfg.Engine.Workers = v
	}
	if level := os.Getenv("MATCHSIM_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if addr := os.Getenv("MATCHSIM_FEED_ADDR"); addr != "" {
		cfg.Feed.Addr = addr
		cfg.Feed.Enabled = true
	}
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

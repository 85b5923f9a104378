package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"MarketSim/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logger struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
		// Digest ships counted warn/error summaries to Kafka.
		Digest struct {
			Enabled  bool          `yaml:"enabled"`
			Topic    string        `yaml:"topic" default:"marketsim.log-digest"`
			Interval time.Duration `yaml:"interval" default:"30s"`
			MaxKeys  int           `yaml:"max_keys" default:"100"`
		} `yaml:"digest"`
	} `yaml:"logger"`
	Simulation Simulation `yaml:"simulation"`
	Export     struct {
		BatchSize    int           `yaml:"batch_size" default:"500" validate:"gt=0"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
	} `yaml:"export"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		FeedTopic    string   `yaml:"feed_topic" default:"marketsim.feed"`
		TicksTopic   string   `yaml:"ticks_topic" default:"marketsim.ticks"`
		OrdersTopic  string   `yaml:"orders_topic" default:"marketsim.orders"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"marketsim"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"100"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"marketsim"`
		Table            string        `yaml:"table" default:"tick_prints"`
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
	Redis struct {
		Enabled     bool          `yaml:"enabled"`
		Addr        string        `yaml:"addr" default:"localhost:6379"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		KeyPrefix   string        `yaml:"key_prefix" default:"marketsim:"`
		SnapshotTTL time.Duration `yaml:"snapshot_ttl" default:"168h"`
	} `yaml:"redis"`
}

// Simulation holds the engine parameters and the tradeable universe.
type Simulation struct {
	Seed           uint64        `yaml:"seed" default:"1"`
	TickInterval   time.Duration `yaml:"tick_interval" default:"1s" validate:"gt=0"`
	TicksPerDay    int           `yaml:"ticks_per_day" default:"390" validate:"gt=0"`
	OvernightSteps int           `yaml:"overnight_steps" default:"4" validate:"gte=0"`
	OvernightBoost float64       `yaml:"overnight_boost" default:"1.8" validate:"gt=0"`
	GapBound       float64       `yaml:"gap_bound" default:"0.08" validate:"gt=0,lt=1"`
	StartingCash   float64       `yaml:"starting_cash" default:"100000" validate:"gte=0"`
	MaxOrderRPS    int           `yaml:"max_order_rps" default:"20" validate:"gte=0"`
	InboxSize      int           `yaml:"inbox_size" default:"1000" validate:"gt=0"`
	Capabilities   []string      `yaml:"capabilities"`
	Assets         []AssetConfig `yaml:"assets" validate:"dive"`
}

type AssetConfig struct {
	ID         string  `yaml:"id" validate:"required"`
	Name       string  `yaml:"name"`
	Price      float64 `yaml:"price" validate:"gt=0"`
	Volatility float64 `yaml:"volatility" default:"0.01" validate:"gt=0"`
	Shares     int64   `yaml:"shares" default:"1000000" validate:"gt=0"`
}

// DefaultAssets is the universe used when the config lists none.
func DefaultAssets() []AssetConfig {
	return []AssetConfig{
		{ID: "ACME", Name: "Acme Industries", Price: 120, Volatility: 0.012, Shares: 2_000_000},
		{ID: "BOLT", Name: "Bolt Motors", Price: 45, Volatility: 0.022, Shares: 800_000},
		{ID: "CRUX", Name: "Crux Biotech", Price: 18, Volatility: 0.035, Shares: 400_000},
		{ID: "DUNE", Name: "Dune Energy", Price: 72, Volatility: 0.015, Shares: 1_200_000},
	}
}

// Default returns a config with every default applied and no file read.
func Default() (*Config, error) {
	var c Config
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) finish() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	if len(c.Simulation.Assets) == 0 {
		c.Simulation.Assets = DefaultAssets()
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("MARKETSIM_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MARKETSIM_SEED: %w", err)
		}
		c.Simulation.Seed = seed
	}
	if v := os.Getenv("MARKETSIM_TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MARKETSIM_TICK_INTERVAL: %w", err)
		}
		c.Simulation.TickInterval = d
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	return nil
}

var validate = validator.New()

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	seen := make(map[string]bool, len(c.Simulation.Assets))
	for _, a := range c.Simulation.Assets {
		if seen[a.ID] {
			return fmt.Errorf("simulation.assets: duplicate id %q", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the slow peer tracker.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Tracker TrackerConfig `yaml:"tracker"`
	Publish PublishConfig `yaml:"publish"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the gRPC and monitoring listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// TrackerConfig controls report aggregation. Reports stay valid for three
// report intervals.
type TrackerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	ReportInterval   time.Duration `yaml:"reportInterval"`
	MaxNodesToReport int           `yaml:"maxNodesToReport"`
	SweepInterval    time.Duration `yaml:"sweepInterval"`
}

// PublishConfig controls pushing the ranked snapshot to a Valkey-compatible cache.
type PublishConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	TLS          bool          `yaml:"tls"`
	Key          string        `yaml:"key"`
	Interval     time.Duration `yaml:"interval"`
	TTL          time.Duration `yaml:"ttl"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_SLOWPEERS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return defaultConfig()
}

// ReportValidity is the age after which a report no longer counts.
func (t TrackerConfig) ReportValidity() time.Duration {
	return 3 * t.ReportInterval
}

// Validate rejects settings the tracker cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Tracker.ReportInterval <= 0 {
		errs = append(errs, fmt.Errorf("tracker.reportInterval must be positive, got %s", c.Tracker.ReportInterval))
	}
	if c.Tracker.MaxNodesToReport < 0 {
		errs = append(errs, fmt.Errorf("tracker.maxNodesToReport must not be negative, got %d", c.Tracker.MaxNodesToReport))
	}
	if c.Tracker.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("tracker.sweepInterval must not be negative, got %s", c.Tracker.SweepInterval))
	}
	if c.Publish.Enabled {
		if c.Publish.Addr == "" {
			errs = append(errs, errors.New("publish.addr is required when publishing is enabled"))
		}
		if c.Publish.Key == "" {
			errs = append(errs, errors.New("publish.key is required when publishing is enabled"))
		}
		if c.Publish.Interval <= 0 {
			errs = append(errs, fmt.Errorf("publish.interval must be positive, got %s", c.Publish.Interval))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			HTTPAddress:     ":2113",
			GracefulTimeout: 10 * time.Second,
		},
		Tracker: TrackerConfig{
			Enabled:          true,
			ReportInterval:   30 * time.Minute,
			MaxNodesToReport: 5,
		},
		Publish: PublishConfig{
			Enabled:      false,
			Key:          "mirador:slowpeers:snapshot",
			Interval:     time.Minute,
			TTL:          5 * time.Minute,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_SLOWPEERS_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_GRACEFUL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.GracefulTimeout = d
		}
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_ENABLED"); v != "" {
		cfg.Tracker.Enabled = parseBool(v)
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_REPORT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Tracker.ReportInterval = d
		}
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_MAX_NODES_TO_REPORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tracker.MaxNodesToReport = n
		}
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Tracker.SweepInterval = d
		}
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_PUBLISH_ENABLED"); v != "" {
		cfg.Publish.Enabled = parseBool(v)
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_PUBLISH_ADDR"); v != "" {
		cfg.Publish.Addr = v
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_PUBLISH_USERNAME"); v != "" {
		cfg.Publish.Username = v
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_PUBLISH_PASSWORD"); v != "" {
		cfg.Publish.Password = v
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_PUBLISH_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Publish.DB = db
		}
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_PUBLISH_TLS"); v != "" {
		cfg.Publish.TLS = parseBool(v)
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_PUBLISH_KEY"); v != "" {
		cfg.Publish.Key = v
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_PUBLISH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Publish.Interval = d
		}
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_PUBLISH_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Publish.TTL = d
		}
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_SLOWPEERS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

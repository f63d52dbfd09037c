// Package config loads the authgate server configuration: built-in defaults,
// then a YAML file, then an optional .env file, then AUTHGATE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/r2s/authgate"
	"github.com/r2s/authgate/credentials"
)

// ServerConfig is everything cmd/authgate needs.
type ServerConfig struct {
	Server    HTTPConfig      `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Token     TokenConfig     `yaml:"token"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TokenConfig struct {
	SigningKey string        `yaml:"signing_key"`
	Issuer     string        `yaml:"issuer"`
	TTL        time.Duration `yaml:"ttl"`
	Leeway     time.Duration `yaml:"leeway"`
}

type PolicyConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
}

type LoginConfig struct {
	MaxFailures   int           `yaml:"max_failures"`
	Window        time.Duration `yaml:"window"`
	BlockDuration time.Duration `yaml:"block_duration"`
}

type RateLimitConfig struct {
	KeyPrefix            string       `yaml:"key_prefix"`
	IdentitySuffixLength int          `yaml:"identity_suffix_length"`
	ClusterHashTag       bool         `yaml:"cluster_hash_tag"`
	Login                LoginConfig  `yaml:"login"`
	Introspect           PolicyConfig `yaml:"introspect"`
	GetProfile           PolicyConfig `yaml:"get_profile"`
	Generic              PolicyConfig `yaml:"generic"`
}

type TimeoutConfig struct {
	Store       time.Duration `yaml:"store"`
	Credentials time.Duration `yaml:"credentials"`
}

type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled           bool `yaml:"enabled"`
	LatencyHistograms bool `yaml:"latency_histograms"`
}

// TracingConfig controls span export. Exporter is "stdout".
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Default returns the server defaults, with gate settings taken from
// authgate.DefaultConfig.
func Default() *ServerConfig {
	g := authgate.DefaultConfig()
	return &ServerConfig{
		Server: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{Addrs: []string{"localhost:6379"}},
		Database: DatabaseConfig{
			Driver: credentials.DriverSQLite,
			DSN:    "authgate.db",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Token: TokenConfig{
			Issuer: g.Token.Issuer,
			TTL:    g.Token.TTL,
			Leeway: g.Token.Leeway,
		},
		RateLimit: RateLimitConfig{
			KeyPrefix:            g.RateLimit.KeyPrefix,
			IdentitySuffixLength: g.RateLimit.IdentitySuffixLength,
			ClusterHashTag:       g.RateLimit.ClusterHashTag,
			Login: LoginConfig{
				MaxFailures:   g.RateLimit.Login.MaxFailures,
				Window:        g.RateLimit.Login.Window,
				BlockDuration: g.RateLimit.Login.BlockDuration,
			},
			Introspect: PolicyConfig(g.RateLimit.Introspect),
			GetProfile: PolicyConfig(g.RateLimit.GetProfile),
			Generic:    PolicyConfig(g.RateLimit.Generic),
		},
		Timeouts: TimeoutConfig(g.Timeouts),
		Audit:    AuditConfig(g.Audit),
		Metrics: MetricsConfig{
			Enabled:           g.Metrics.Enabled,
			LatencyHistograms: g.Metrics.EnableLatencyHistograms,
		},
		Tracing: TracingConfig{ServiceName: "authgate", Exporter: "stdout", SampleRate: 1},
	}
}

// Load builds the configuration. configPath and envFile may be empty; when
// envFile is empty a .env in the working directory is read if present.
// Variables already set in the process environment win over the .env file.
func Load(configPath, envFile string) (*ServerConfig, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	if err := loadFromEnvironment(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *ServerConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// Validate checks the server settings and the gate settings they produce.
func (c *ServerConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be > 0"))
	}
	if len(c.Redis.Addrs) == 0 {
		errs = append(errs, errors.New("redis.addrs needs at least one address"))
	}
	switch c.Database.Driver {
	case credentials.DriverMemory:
	case credentials.DriverSQLite, credentials.DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("database.dsn is required for driver %s", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
	}

	gate := c.GateConfig()
	if err := gate.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// GateConfig converts the settings into an authgate.Config.
func (c *ServerConfig) GateConfig() authgate.Config {
	return authgate.Config{
		Token: authgate.TokenConfig{
			SigningKey: []byte(c.Token.SigningKey),
			Issuer:     c.Token.Issuer,
			TTL:        c.Token.TTL,
			Leeway:     c.Token.Leeway,
		},
		RateLimit: authgate.RateLimitConfig{
			KeyPrefix:            c.RateLimit.KeyPrefix,
			IdentitySuffixLength: c.RateLimit.IdentitySuffixLength,
			ClusterHashTag:       c.RateLimit.ClusterHashTag,
			Login: authgate.LoginPolicy{
				MaxFailures:   c.RateLimit.Login.MaxFailures,
				Window:        c.RateLimit.Login.Window,
				BlockDuration: c.RateLimit.Login.BlockDuration,
			},
			Introspect: authgate.ThrottlePolicy(c.RateLimit.Introspect),
			GetProfile: authgate.ThrottlePolicy(c.RateLimit.GetProfile),
			Generic:    authgate.ThrottlePolicy(c.RateLimit.Generic),
		},
		Timeouts: authgate.TimeoutConfig(c.Timeouts),
		Audit:    authgate.AuditConfig(c.Audit),
		Metrics: authgate.MetricsConfig{
			Enabled:                 c.Metrics.Enabled,
			EnableLatencyHistograms: c.Metrics.LatencyHistograms,
		},
	}
}

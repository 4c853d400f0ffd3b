package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/justapithecus/adit/iox"
	"github.com/justapithecus/adit/runtime"
)

// Config represents an adit.yaml gateway configuration file. Absent
// keys keep the values from Default, so a minimal file only has to
// name what it changes.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Log      LogConfig     `yaml:"log"`
	Auth     AuthConfig    `yaml:"auth"`
	Ledger   LedgerConfig  `yaml:"ledger"`
	Adapters AdapterConfig `yaml:"adapters"`
}

// ServerConfig holds the HTTP listener and runtime knobs.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	DefaultEnv     string   `yaml:"default_env"`
	EnvConcurrency int      `yaml:"env_concurrency"`
	DataDir        string   `yaml:"data_dir"`
	LogsDir        string   `yaml:"logs_dir"`
	PollInterval   Duration `yaml:"poll_interval"`
	GetWait        Duration `yaml:"get_wait"`
	ShutdownGrace  Duration `yaml:"shutdown_grace"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// AuthConfig holds token authorization settings. Disabled means every
// request is allowed, which is the right mode for local development.
type AuthConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AuthorityURL   string   `yaml:"authority_url"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// LedgerConfig holds activity recording settings. With a bucket set
// records go to S3; otherwise they land under Root on local disk.
type LedgerConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Root          string   `yaml:"root"`
	Dataset       string   `yaml:"dataset"`
	Source        string   `yaml:"source"`
	BufferSize    int      `yaml:"buffer_size"`
	FlushInterval Duration `yaml:"flush_interval"`
	S3            S3Config `yaml:"s3"`
}

// S3Config holds the object-store coordinates for ledger records.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// AdapterConfig holds completion event delivery targets. Each adapter
// is active when its URL is set.
type AdapterConfig struct {
	Redis   RedisConfig   `yaml:"redis"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// RedisConfig is the redis pub/sub completion adapter.
type RedisConfig struct {
	URL         string   `yaml:"url"`
	Channel     string   `yaml:"channel"`
	Timeout     Duration `yaml:"timeout"`
	MaxAttempts int      `yaml:"max_attempts"`
}

// WebhookConfig is the HTTP POST completion adapter.
type WebhookConfig struct {
	URL         string            `yaml:"url"`
	Headers     map[string]string `yaml:"headers"`
	Timeout     Duration          `yaml:"timeout"`
	MaxAttempts int               `yaml:"max_attempts"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration a bare gateway runs with.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":32300",
			DefaultEnv:     runtime.DefaultEnvName,
			EnvConcurrency: 32,
			DataDir:        "~/.adit",
			PollInterval:   Duration{time.Second},
			GetWait:        Duration{time.Second},
			ShutdownGrace:  Duration{10 * time.Second},
		},
		Log: LogConfig{Level: "info"},
		Auth: AuthConfig{
			RequestTimeout: Duration{5 * time.Second},
		},
		Ledger: LedgerConfig{
			Enabled:       true,
			Dataset:       "adit",
			Source:        "gateway",
			BufferSize:    64,
			FlushInterval: Duration{5 * time.Second},
		},
		Adapters: AdapterConfig{
			Redis: RedisConfig{
				Channel:     "adit.completions",
				Timeout:     Duration{5 * time.Second},
				MaxAttempts: 3,
			},
			Webhook: WebhookConfig{
				Timeout:     Duration{5 * time.Second},
				MaxAttempts: 3,
			},
		},
	}
}

// Validate checks field consistency. Errors name the offending YAML
// key so a bad file can be fixed without reading source.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Server.DataDir == "" {
		return fmt.Errorf("server.data_dir must not be empty")
	}
	if c.Server.EnvConcurrency < 1 {
		return fmt.Errorf("server.env_concurrency must be at least 1, got %d", c.Server.EnvConcurrency)
	}
	if c.Server.PollInterval.Duration <= 0 {
		return fmt.Errorf("server.poll_interval must be positive")
	}
	if c.Server.GetWait.Duration <= 0 {
		return fmt.Errorf("server.get_wait must be positive")
	}
	if c.Server.ShutdownGrace.Duration <= 0 {
		return fmt.Errorf("server.shutdown_grace must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	if c.Auth.Enabled {
		if c.Auth.AuthorityURL == "" {
			return fmt.Errorf("auth.authority_url must be set when auth.enabled is true")
		}
		if c.Auth.RequestTimeout.Duration <= 0 {
			return fmt.Errorf("auth.request_timeout must be positive")
		}
	}
	if c.Ledger.Enabled {
		if c.Ledger.Dataset == "" {
			return fmt.Errorf("ledger.dataset must not be empty")
		}
		if c.Ledger.Source == "" {
			return fmt.Errorf("ledger.source must not be empty")
		}
		if c.Ledger.BufferSize <= 0 && c.Ledger.FlushInterval.Duration <= 0 {
			return fmt.Errorf("ledger needs buffer_size or flush_interval set")
		}
	}
	if c.Adapters.Redis.URL != "" && c.Adapters.Redis.MaxAttempts < 0 {
		return fmt.Errorf("adapters.redis.max_attempts must not be negative")
	}
	if c.Adapters.Webhook.URL != "" && c.Adapters.Webhook.MaxAttempts < 0 {
		return fmt.Errorf("adapters.webhook.max_attempts must not be negative")
	}
	return nil
}

// DataRoot returns the data directory with ~ expanded.
func (c *Config) DataRoot() string {
	return iox.ExpandHome(c.Server.DataDir)
}

// LogsRoot returns the call log directory, defaulting under the data
// directory.
func (c *Config) LogsRoot() string {
	if c.Server.LogsDir != "" {
		return iox.ExpandHome(c.Server.LogsDir)
	}
	return filepath.Join(c.DataRoot(), "logs")
}

// LedgerRoot returns the local ledger directory, defaulting under the
// data directory.
func (c *Config) LedgerRoot() string {
	if c.Ledger.Root != "" {
		return iox.ExpandHome(c.Ledger.Root)
	}
	return filepath.Join(c.DataRoot(), "ledger")
}

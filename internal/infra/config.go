package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	TransportTCP = "tcp"
	TransportWS  = "ws"
)

// FeedConfig configures the client side: where to read records from.
type FeedConfig struct {
	Addr          string `yaml:"addr"`      // host:port for tcp, ws:// URL for ws
	Transport     string `yaml:"transport"` // tcp | ws
	Records       int    `yaml:"records"`   // 0 = until the stream ends
	ReadTimeoutMS int    `yaml:"read_timeout_ms"`
	Pooled        bool   `yaml:"pooled"` // decode through the record pool
}

// ServerConfig configures the mock market feed server.
type ServerConfig struct {
	Addr       string  `yaml:"addr"`
	WSAddr     string  `yaml:"ws_addr"` // empty disables the WebSocket listener
	WSPath     string  `yaml:"ws_path"`
	Records    int     `yaml:"records"`      // per connection, 0 = unbounded
	RatePerSec float64 `yaml:"rate_per_sec"` // 0 = unpaced
	Burst      int     `yaml:"burst"`
	Batch      int     `yaml:"batch"` // records per WebSocket message
	ReplayRun  string  `yaml:"replay_run"`
}

// StorageConfig configures the SQLite tick recorder.
type StorageConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"` // empty = <workspace>/data/ticks.db
	BatchSize int    `yaml:"batch_size"`
}

// Config holds all settings for the feed client and server.
// Values from LoadConfig are overridden by environment variables afterwards.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Feed    FeedConfig    `yaml:"feed"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text | json
	} `yaml:"logging"`

	Profiling struct {
		PprofAddr string `yaml:"pprof_addr"` // empty disables pprof
	} `yaml:"profiling"`
}

// DefaultConfig returns the settings used when no config file exists.
// The feed defaults to localhost:5555 and one million records.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = AppName
	cfg.App.Version = "dev"

	cfg.Feed = FeedConfig{
		Addr:          "localhost:5555",
		Transport:     TransportTCP,
		Records:       1_000_000,
		ReadTimeoutMS: 0,
	}
	cfg.Server = ServerConfig{
		Addr:   "localhost:5555",
		WSAddr: "",
		WSPath: "/feed",
		Burst:  1,
		Batch:  64,
	}
	cfg.Storage = StorageConfig{BatchSize: 1000}
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

// LoadConfig reads the YAML file at path on top of DefaultConfig.
// A missing file is not an error: defaults plus environment overrides are returned.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	// Feed
	switch c.Feed.Transport {
	case TransportTCP:
		if c.Feed.Addr == "" {
			return fmt.Errorf("feed addr is required")
		}
	case TransportWS:
		if !strings.HasPrefix(c.Feed.Addr, "ws://") && !strings.HasPrefix(c.Feed.Addr, "wss://") {
			return fmt.Errorf("invalid feed WS URL: %s", c.Feed.Addr)
		}
	default:
		return fmt.Errorf("unknown feed transport %q", c.Feed.Transport)
	}
	if c.Feed.Records < 0 {
		return fmt.Errorf("feed records must not be negative")
	}
	if c.Feed.ReadTimeoutMS < 0 {
		return fmt.Errorf("feed read timeout must not be negative")
	}

	// Server
	if c.Server.Records < 0 {
		return fmt.Errorf("server records must not be negative")
	}
	if c.Server.RatePerSec < 0 {
		return fmt.Errorf("server rate must not be negative")
	}
	if c.Server.RatePerSec > 0 && c.Server.Burst < 1 {
		return fmt.Errorf("server burst must be at least 1 when pacing")
	}
	if c.Server.Batch < 1 {
		return fmt.Errorf("server batch must be at least 1")
	}
	if c.Server.WSAddr != "" && !strings.HasPrefix(c.Server.WSPath, "/") {
		return fmt.Errorf("server ws path must start with '/': %s", c.Server.WSPath)
	}

	// Storage
	if c.Storage.Enabled && c.Storage.BatchSize < 1 {
		return fmt.Errorf("storage batch size must be at least 1")
	}

	// Logging
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	return nil
}

// overrideWithEnv replaces config values with environment variables when set.
// Environment variables take precedence over the config file.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("TICKFEED_FEED_ADDR"); v != "" {
		cfg.Feed.Addr = v
	}
	if v := os.Getenv("TICKFEED_FEED_TRANSPORT"); v != "" {
		cfg.Feed.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("TICKFEED_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("TICKFEED_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("TICKFEED_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Paths        PathsConfig              `toml:"paths"`
	Logging      LoggingConfig            `toml:"logging"`
	Backends     map[string]BackendConfig `toml:"backends"`
	Connectivity ConnectivityConfig       `toml:"connectivity"`
	Cache        CacheConfig              `toml:"cache"`
	Queue        QueueConfig              `toml:"queue"`
	Telemetry    TelemetryConfig          `toml:"telemetry"`
}

// PathsConfig locates the durable stores.
type PathsConfig struct {
	DataDir  string `toml:"data_dir"`
	Store    string `toml:"store"`
	Database string `toml:"database"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// BackendConfig describes how to reach one store's external downloader.
type BackendConfig struct {
	Binary   string `toml:"binary"`
	Enabled  bool   `toml:"enabled"`
	LoginURL string `toml:"login_url"`
}

// ConnectivityConfig controls probing and the linear retry backoff.
type ConnectivityConfig struct {
	Endpoints           []string `toml:"endpoints"`
	BaseDelaySeconds    int      `toml:"base_delay_seconds"`
	IncrementSeconds    int      `toml:"increment_seconds"`
	ProbeTimeoutSeconds int      `toml:"probe_timeout_seconds"`
}

// CacheConfig sets metadata cache lifespans. Zero means entries never expire.
type CacheConfig struct {
	GameInfoMinutes int `toml:"game_info_minutes"`
}

type QueueConfig struct {
	SweepRatePerSecond float64 `toml:"sweep_rate_per_second"`
}

// TelemetryConfig configures play-session delivery.
type TelemetryConfig struct {
	Endpoint string `toml:"endpoint"`
	RetryMax int    `toml:"retry_max"`
	User     string `toml:"user"`
}

// BaseDelay returns the configured base retry delay, defaulting to 5s.
func (c ConnectivityConfig) BaseDelay() time.Duration {
	if c.BaseDelaySeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.BaseDelaySeconds) * time.Second
}

// Increment returns the delay added after each failed probe round, defaulting to 5s.
func (c ConnectivityConfig) Increment() time.Duration {
	if c.IncrementSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.IncrementSeconds) * time.Second
}

// ProbeTimeout returns the per-round probe deadline, defaulting to 10s.
func (c ConnectivityConfig) ProbeTimeout() time.Duration {
	if c.ProbeTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// GameInfoLifespan returns the metadata cache lifespan; zero means no expiry.
func (c CacheConfig) GameInfoLifespan() time.Duration {
	if c.GameInfoMinutes <= 0 {
		return 0
	}
	return time.Duration(c.GameInfoMinutes) * time.Minute
}

// Backend returns the config for the named backend and whether it is present.
func (c *Config) Backend(name string) (BackendConfig, bool) {
	bc, ok := c.Backends[name]
	return bc, ok
}

// Validate checks required fields and expands home-relative paths in place.
func (c *Config) Validate() error {
	var err error
	if c.Paths.DataDir, err = ExpandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.Store, err = ExpandPath(c.Paths.Store); err != nil {
		return err
	}
	if c.Paths.Database, err = ExpandPath(c.Paths.Database); err != nil {
		return err
	}

	if c.Paths.Store == "" && c.Paths.DataDir != "" {
		c.Paths.Store = filepath.Join(c.Paths.DataDir, "store.db")
	}
	if c.Paths.Database == "" && c.Paths.DataDir != "" {
		c.Paths.Database = filepath.Join(c.Paths.DataDir, "journal.db")
	}

	for name, bc := range c.Backends {
		if bc.Enabled && bc.Binary == "" {
			return fmt.Errorf("%w: backend %s has no binary", ErrInvalidConfig, name)
		}
	}
	if c.Queue.SweepRatePerSecond < 0 {
		return fmt.Errorf("%w: sweep_rate_per_second must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("%w: cannot expand %q: %v", ErrInvalidConfig, path, err)
	}
	return expanded, nil
}

// DefaultConfigPath returns ~/.config/gamekeep/config.toml.
func DefaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "gamekeep", "config.toml")
}

// LoadConfig reads a TOML configuration file from the specified path, layering it over the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	path, err := ExpandPath(path)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

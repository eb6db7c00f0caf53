package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides (e.g. IDEABOARD_API_BASE_URL).
const envPrefix = "IDEABOARD"

// APIConfig holds settings for the notification REST API.
type APIConfig struct {
	// BaseURL is the root URL of the ideaboard service.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Token is a bearer token. When empty the system keyring is consulted.
	Token string `mapstructure:"token" yaml:"token"`

	// Timeout bounds every single request.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// MaxRetries is the retry budget for throttled or failed requests.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// RequestsPerSecond caps the outgoing request rate. Zero disables it.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// RealtimeConfig holds settings for the push channel.
type RealtimeConfig struct {
	// Transport is "websocket" or "redis".
	Transport string `mapstructure:"transport" yaml:"transport"`

	// URL is the websocket endpoint (ws:// or wss://).
	URL string `mapstructure:"url" yaml:"url"`

	// RedisAddr and RedisChannel select the pub/sub channel for the redis transport.
	RedisAddr    string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisChannel string `mapstructure:"redis_channel" yaml:"redis_channel"`

	// InitialBackoff and MaxBackoff shape the reconnect schedule.
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// SyncConfig holds settings for REST polling.
type SyncConfig struct {
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	PageSize        int `mapstructure:"page_size" yaml:"page_size"`
	FetchRetries    int `mapstructure:"fetch_retries" yaml:"fetch_retries"`
}

// NotificationsConfig holds settings for the notification store and mutations.
type NotificationsConfig struct {
	TombstoneTTL    time.Duration `mapstructure:"tombstone_ttl" yaml:"tombstone_ttl"`
	MutationRetries int           `mapstructure:"mutation_retries" yaml:"mutation_retries"`
}

// LogConfig controls the application logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// CacheConfig locates the local sqlite cache.
type CacheConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig controls the optional prometheus endpoint.
type MetricsConfig struct {
	// Listen is a host:port to serve /metrics on. Empty disables it.
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API           APIConfig           `mapstructure:"api" yaml:"api"`
	Realtime      RealtimeConfig      `mapstructure:"realtime" yaml:"realtime"`
	Sync          SyncConfig          `mapstructure:"sync" yaml:"sync"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
	Cache         CacheConfig         `mapstructure:"cache" yaml:"cache"`
	Metrics       MetricsConfig       `mapstructure:"metrics" yaml:"metrics"`
	Display       DisplayConfig       `mapstructure:"display" yaml:"display"`
}

// PollInterval returns the incremental poll interval as a duration.
func (c SyncConfig) PollInterval() time.Duration {
	if c.PollIntervalSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.PollIntervalSec) * time.Second
}

// configDir returns ~/.config/ideaboard, or "." when the home directory is unknown.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "ideaboard")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/ideaboard/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// defaults is the single table of default values; it seeds both viper and
// the config returned when no file exists.
var defaults = map[string]any{
	"api.base_url":                   "http://localhost:8090",
	"api.timeout":                    10 * time.Second,
	"api.max_retries":                3,
	"api.requests_per_second":        20.0,
	"realtime.transport":             "websocket",
	"realtime.url":                   "ws://localhost:8090/ws",
	"realtime.redis_addr":            "localhost:6379",
	"realtime.redis_channel":         "ideaboard:notifications",
	"realtime.initial_backoff":       500 * time.Millisecond,
	"realtime.max_backoff":           30 * time.Second,
	"sync.poll_interval_sec":         60,
	"sync.page_size":                 100,
	"sync.fetch_retries":             3,
	"notifications.tombstone_ttl":    10 * time.Minute,
	"notifications.mutation_retries": 2,
	"log.level":                      "info",
	"log.format":                     "text",
	"log.file":                       filepath.Join(configDir(), "ideaboard.log"),
	"cache.path":                     filepath.Join(configDir(), "cache.db"),
	"metrics.listen":                 "",
	"display.theme":                  "default",
}

// newViper builds a viper instance with defaults and environment overrides.
func newViper() *viper.Viper {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A .env file in the working directory is loaded first so its IDEABOARD_*
// entries act as overrides. A missing config file yields the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Realtime.Transport {
	case "websocket", "redis":
	default:
		return fmt.Errorf("unknown realtime transport %q", c.Realtime.Transport)
	}
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.Notifications.TombstoneTTL <= 0 {
		return errors.New("notifications.tombstone_ttl must be positive")
	}
	if c.Realtime.MaxBackoff < c.Realtime.InitialBackoff {
		return errors.New("realtime.max_backoff must be >= realtime.initial_backoff")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. The API token is never written.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	api := cfg.API
	api.Token = ""

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", api)
	v.Set("realtime", cfg.Realtime)
	v.Set("sync", cfg.Sync)
	v.Set("notifications", cfg.Notifications)
	v.Set("log", cfg.Log)
	v.Set("cache", cfg.Cache)
	v.Set("metrics", cfg.Metrics)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

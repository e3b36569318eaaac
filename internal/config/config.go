// Package config provides Viper-based configuration management for pocketsync.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete pocketsync configuration
type Config struct {
	DB      DBConfig      `mapstructure:"db"`
	API     APIConfig     `mapstructure:"api"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Log     LogConfig     `mapstructure:"log"`
	Offline OfflineConfig `mapstructure:"offline"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

// APIConfig contains the GraphQL endpoint and credentials
type APIConfig struct {
	URL               string        `mapstructure:"url"`
	ConsumerKey       string        `mapstructure:"consumer_key"`
	AccessToken       string        `mapstructure:"access_token"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// SyncConfig contains pagination, retry and scheduling settings
type SyncConfig struct {
	MaxItems      int           `mapstructure:"max_items"`
	PageSize      int           `mapstructure:"page_size"`
	MaxRetries    int           `mapstructure:"max_retries"`
	Interval      time.Duration `mapstructure:"interval"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// OfflineConfig contains headless Chrome capture settings
type OfflineConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Workers    int           `mapstructure:"workers"`
	ChromePath string        `mapstructure:"chrome_path"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// MetricsConfig holds the optional Prometheus listen address. Empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Loader reads configuration from defaults, an optional file, .env and the
// environment.
type Loader struct {
	v      *viper.Viper
	dotenv []string
}

// NewLoader prepares a loader. When cfgFile is empty, .pocketsync.yaml is
// searched in the working directory and $HOME/.config/pocketsync.
func NewLoader(cfgFile string, dotenvFiles ...string) *Loader {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".pocketsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/pocketsync")
	}

	// Environment variables
	v.SetEnvPrefix("POCKETSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api.url", "POCKETSYNC_API_URL", "POCKET_CLIENT_API_URL")

	setDefaults(v)

	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	return &Loader{v: v, dotenv: dotenvFiles}
}

// Viper exposes the underlying instance so CLI flags can be bound to keys.
func (l *Loader) Viper() *viper.Viper { return l.v }

// Load reads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := loadDotEnv(l.dotenv); err != nil {
		return nil, err
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the file that was read, if any.
func (l *Loader) ConfigFileUsed() string { return l.v.ConfigFileUsed() }

// Watch calls fn with the reloaded configuration each time the config file
// changes. It does nothing when no file was read.
func (l *Loader) Watch(fn func(cfg *Config, err error)) bool {
	if l.v.ConfigFileUsed() == "" {
		return false
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(l.unmarshal())
	})
	l.v.WatchConfig()
	return true
}

// setDefaults configures default values
func setDefaults(v *viper.Viper) {
	v.SetDefault("db.path", "pocketsync.db")

	v.SetDefault("api.url", "https://getpocket.com/graphql")
	v.SetDefault("api.consumer_key", "")
	v.SetDefault("api.access_token", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.requests_per_second", 5.0)

	v.SetDefault("sync.max_items", 0)
	v.SetDefault("sync.page_size", 30)
	v.SetDefault("sync.max_retries", 2)
	v.SetDefault("sync.interval", 15*time.Minute)
	v.SetDefault("sync.probe_interval", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("offline.enabled", false)
	v.SetDefault("offline.workers", 2)
	v.SetDefault("offline.chrome_path", "")
	v.SetDefault("offline.timeout", 45*time.Second)

	v.SetDefault("metrics.addr", "")
}

// loadDotEnv loads each file that exists. Variables already set in the
// environment win.
func loadDotEnv(files []string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.DB.Path == "" {
		return errors.New("db.path is required")
	}
	if cfg.API.URL == "" {
		return errors.New("api.url is required")
	}
	if cfg.Sync.PageSize <= 0 {
		return fmt.Errorf("sync.page_size must be positive, got %d", cfg.Sync.PageSize)
	}
	if cfg.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries must not be negative, got %d", cfg.Sync.MaxRetries)
	}
	if cfg.Offline.Workers <= 0 {
		return fmt.Errorf("offline.workers must be positive, got %d", cfg.Offline.Workers)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	return nil
}

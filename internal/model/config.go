package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// APIConfig locates the REST backend.
type APIConfig struct {
	// BaseURL is the API root, e.g. https://host/api.
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// PushConfig locates the notification hub.
type PushConfig struct {
	HubURL          string `mapstructure:"hub_url" yaml:"hub_url"`
	SkipNegotiation bool   `mapstructure:"skip_negotiation" yaml:"skip_negotiation"`

	// ReconnectDelaysMs is the wait before each reconnection attempt.
	// Once exhausted the channel gives up and reports Disconnected.
	ReconnectDelaysMs []int `mapstructure:"reconnect_delays_ms" yaml:"reconnect_delays_ms"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme    string `mapstructure:"theme" yaml:"theme"`
	PageSize int    `mapstructure:"page_size" yaml:"page_size"`
}

// CacheConfig locates downloaded images and the local database.
type CacheConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir"`
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	File   string `mapstructure:"file" yaml:"file"`
	Format string `mapstructure:"format" yaml:"format"`
}

// CredentialsConfig selects where the session is persisted.
type CredentialsConfig struct {
	// Backend is "keyring" or "memory".
	Backend string `mapstructure:"backend" yaml:"backend"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API         APIConfig         `mapstructure:"api" yaml:"api"`
	Push        PushConfig        `mapstructure:"push" yaml:"push"`
	Display     DisplayConfig     `mapstructure:"display" yaml:"display"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
}

// DefaultReconnectDelaysMs mirrors the SignalR client's default schedule.
var DefaultReconnectDelaysMs = []int{0, 2000, 10000, 30000}

// configDir returns ~/.config/scfet, or the working directory when the
// home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "scfet")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/scfet/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	dir := configDir()
	v.SetDefault("api.base_url", "http://localhost:5050/api")
	v.SetDefault("api.timeout_sec", 30)
	v.SetDefault("push.hub_url", "http://localhost:5050/notificationHub")
	v.SetDefault("push.skip_negotiation", false)
	v.SetDefault("push.reconnect_delays_ms", DefaultReconnectDelaysMs)
	v.SetDefault("display.theme", "default")
	v.SetDefault("display.page_size", DefaultPageSize)
	v.SetDefault("cache.dir", filepath.Join(dir, "cache"))
	v.SetDefault("cache.db_path", filepath.Join(dir, "scfet.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(dir, "scfet.log"))
	v.SetDefault("log.format", "text")
	v.SetDefault("credentials.backend", "keyring")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A .env file in the working directory is loaded first, and SCFET_*
// environment variables (SCFET_API_BASE_URL, ...) override file values.
// If the file does not exist, defaults and the environment apply.
func LoadConfig(path string) (*AppConfig, error) {
	// A missing .env is the common case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SCFET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is empty")
	}
	if !ValidPageSize(c.Display.PageSize) {
		return fmt.Errorf("display.page_size %d not in %v", c.Display.PageSize, PageSizes)
	}
	switch c.Credentials.Backend {
	case "keyring", "memory":
	default:
		return fmt.Errorf("credentials.backend %q: want keyring or memory", c.Credentials.Backend)
	}
	for _, d := range c.Push.ReconnectDelaysMs {
		if d < 0 {
			return fmt.Errorf("push.reconnect_delays_ms: negative delay %d", d)
		}
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("push", cfg.Push)
	v.Set("display", cfg.Display)
	v.Set("cache", cfg.Cache)
	v.Set("log", cfg.Log)
	v.Set("credentials", cfg.Credentials)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

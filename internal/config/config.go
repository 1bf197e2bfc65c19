// Package config loads agentwire configuration from the XDG config directory
// and environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/samsaffron/agentwire/internal/cache"
)

// Config is the top-level configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Cache  cache.Config `mapstructure:"cache"`
	Debug  DebugConfig  `mapstructure:"debug"`
	Theme  ThemeConfig  `mapstructure:"theme"`
}

// ServerConfig locates the agent backend.
type ServerConfig struct {
	// URL is the WebSocket endpoint (ws:// or wss://).
	URL string `mapstructure:"url"`

	// HistoryURL is the REST base for persisted history. Empty derives it
	// from URL by swapping the scheme and dropping the path.
	HistoryURL string `mapstructure:"history_url"`

	// Token authenticates both transports. ${VAR} values read the environment.
	Token string `mapstructure:"token"`
}

// DebugConfig controls the JSONL debug log.
type DebugConfig struct {
	// Log is the file path to append protocol debug entries to. Empty
	// disables logging.
	Log string `mapstructure:"log"`
}

// ThemeConfig overrides display colors. Empty fields keep the defaults.
type ThemeConfig struct {
	Primary   string `mapstructure:"primary"`
	Secondary string `mapstructure:"secondary"`
	Error     string `mapstructure:"error"`
	Muted     string `mapstructure:"muted"`
}

// Load reads config.yaml from the config directory, falling back to defaults
// when no file exists.
func Load() (*Config, error) {
	configDir, err := Dir()
	if err != nil {
		return nil, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	viper.SetDefault("server.url", "ws://127.0.0.1:8790/ws")
	viper.SetDefault("cache.enabled", true)

	viper.SetEnvPrefix("agentwire")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.Server.Token = expandEnv(cfg.Server.Token)
	if cfg.Server.HistoryURL == "" {
		cfg.Server.HistoryURL = deriveHistoryURL(cfg.Server.URL)
	}
	return &cfg, nil
}

// deriveHistoryURL converts a WebSocket endpoint into the matching HTTP base:
// ws://host:port/ws becomes http://host:port.
func deriveHistoryURL(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String()
}

// expandEnv expands ${VAR} or $VAR in a string.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// Dir returns the XDG config directory for agentwire.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config.
func Dir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "agentwire"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "agentwire"), nil
}

// Path returns the expected config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Package config loads stratum configuration from an optional YAML file
// plus STRATUM_-prefixed environment variables. Environment wins over the
// file; the file wins over defaults.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	Engine      string // storage engine: memory | bolt | sqlite
	Path        string // engine data path (bolt and sqlite; memory ignores it)
	Definitions string // directory of CUE resource definitions
	LogLevel    string // debug | info | warn | error
	LogFormat   string // text | json
}

// Default returns the built-in configuration: an in-memory engine with
// definitions read from ./resources.
func Default() *Config {
	return &Config{
		Engine:      "memory",
		Path:        "",
		Definitions: "./resources",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load resolves configuration. path names a YAML config file and may be
// empty, in which case only defaults and environment apply. Environment
// keys are the upper-cased field names under the STRATUM_ prefix:
// STRATUM_ENGINE, STRATUM_PATH, STRATUM_DEFINITIONS, STRATUM_LOG_LEVEL,
// STRATUM_LOG_FORMAT.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("engine", def.Engine)
	v.SetDefault("path", def.Path)
	v.SetDefault("definitions", def.Definitions)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)

	v.SetEnvPrefix("STRATUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	// Read each key explicitly: viper's Unmarshal does not see
	// environment-only values, GetString consults every layer.
	cfg := &Config{
		Engine:      v.GetString("engine"),
		Path:        v.GetString("path"),
		Definitions: v.GetString("definitions"),
		LogLevel:    v.GetString("log_level"),
		LogFormat:   v.GetString("log_format"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated fields. Path requirements are engine
// business and stay with store.Open.
func (c *Config) Validate() error {
	switch c.Engine {
	case "memory", "bolt", "sqlite":
	default:
		return fmt.Errorf("unknown storage engine %q (want memory, bolt, or sqlite)", c.Engine)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q (want debug, info, warn, or error)", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat)
	}
	return nil
}

// SlogLevel maps the configured level to its slog constant. Call after
// Validate; unknown levels fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

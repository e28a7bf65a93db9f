package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stratum.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Engine)
	assert.Equal(t, "", cfg.Path)
	assert.Equal(t, "./resources", cfg.Definitions)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
engine: bolt
path: /tmp/stratum.db
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bolt", cfg.Engine)
	assert.Equal(t, "/tmp/stratum.db", cfg.Path)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched keys keep their defaults.
	assert.Equal(t, "./resources", cfg.Definitions)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "engine: bolt\n")
	t.Setenv("STRATUM_ENGINE", "sqlite")
	t.Setenv("STRATUM_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Engine)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfigFile(t, "engine: [unterminated\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsUnknownEngine(t *testing.T) {
	t.Setenv("STRATUM_ENGINE", "etcd")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown storage engine "etcd"`)
}

func TestLoad_RejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("STRATUM_LOG_LEVEL", "loud")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown log level "loud"`)
}

func TestValidate_RejectsUnknownLogFormat(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown log format "xml"`)
}

func TestSlogLevel_Mapping(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for level, want := range cases {
		cfg := Default()
		cfg.LogLevel = level
		assert.Equal(t, want, cfg.SlogLevel(), level)
	}
}

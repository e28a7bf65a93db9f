package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a config file wiring the given engine to the
// shared testdata definitions and returns its path.
func writeTestConfig(t *testing.T, engine, dbPath string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf("engine: %s\npath: %q\ndefinitions: %s\n",
		engine, dbPath, filepath.Join("testdata", "definitions"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath
}

func TestQueryEmptyStore(t *testing.T) {
	cfgPath := writeTestConfig(t, "memory", "")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", ConfigFile: cfgPath}
	cmd := NewQueryCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"Track"})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "0 record(s)")
}

func TestQueryEmptyStoreJSON(t *testing.T) {
	cfgPath := writeTestConfig(t, "memory", "")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json", ConfigFile: cfgPath}
	cmd := NewQueryCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"Track"})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Track", data["resource"])
	assert.Equal(t, float64(0), data["count"])
	records, ok := data["records"].([]any)
	require.True(t, ok, "records must serialize as an array even when empty")
	assert.Empty(t, records)
}

func TestQueryUnknownResource(t *testing.T) {
	cfgPath := writeTestConfig(t, "memory", "")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", ConfigFile: cfgPath}
	cmd := NewQueryCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"Playlist"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown resource "Playlist"`)
	assert.Contains(t, err.Error(), "Artist, Track")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQueryInvalidFilter(t *testing.T) {
	cfgPath := writeTestConfig(t, "memory", "")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", ConfigFile: cfgPath}
	cmd := NewQueryCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"Track", "--filter", "plays >>= 3"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --filter expression")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQueryInvalidSort(t *testing.T) {
	cfgPath := writeTestConfig(t, "memory", "")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", ConfigFile: cfgPath}
	cmd := NewQueryCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"Track", "--sort", "-"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --sort")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQueryUnreadableConfig(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{
		Format:     "text",
		ConfigFile: filepath.Join(t.TempDir(), "missing.yaml"),
	}
	cmd := NewQueryCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"Track"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQueryMissingDefinitions(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf("engine: memory\ndefinitions: %s\n", filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", ConfigFile: cfgPath}
	cmd := NewQueryCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"Track"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load definitions")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQueryThroughRootCommand(t *testing.T) {
	cfgPath := writeTestConfig(t, "memory", "")

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "--format", "json", "query", "Track"})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioTrackDef = `
resource: Track: {
	attributes: {
		id:    {type: "string"}
		title: {type: "string", allowNil: true}
		plays: {type: "int"}
	}
	primaryKey: ["id"]
}
`

const passingScenario = `
name: cli_roundtrip
description: "Create and read back a track"
definitions:
  - track.cue
steps:
  - op: create
    resource: Track
    attrs: { id: t1, title: First, plays: 3 }
  - op: query
    resource: Track
expect:
  - rows: { resource: Track, count: 1 }
  - result_count: { step: 2, count: 1 }
`

const failingScenario = `
name: cli_failing
description: "Asserts a row count the steps never produce"
definitions:
  - track.cue
steps:
  - op: create
    resource: Track
    attrs: { id: t1, plays: 3 }
expect:
  - rows: { resource: Track, count: 5 }
`

// writeScenarioFixture lays out a definitions dir and a scenarios dir the
// way the test command expects them on disk.
func writeScenarioFixture(t *testing.T, scenarios map[string]string) (defsDir, scenariosDir string) {
	t.Helper()
	tmpDir := t.TempDir()
	defsDir = filepath.Join(tmpDir, "definitions")
	scenariosDir = filepath.Join(tmpDir, "scenarios")
	require.NoError(t, os.MkdirAll(defsDir, 0755))
	require.NoError(t, os.MkdirAll(scenariosDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(defsDir, "track.cue"), []byte(scenarioTrackDef), 0644))
	for name, body := range scenarios {
		require.NoError(t, os.WriteFile(filepath.Join(scenariosDir, name), []byte(body), 0644))
	}
	return defsDir, scenariosDir
}

func TestTestCommandMissingArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{}) // Missing both directories

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 2 arg")
}

func TestTestCommandNonExistentDefinitionsDir(t *testing.T) {
	tmpDir := t.TempDir()
	scenariosDir := filepath.Join(tmpDir, "scenarios")
	require.NoError(t, os.MkdirAll(scenariosDir, 0755))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/definitions", scenariosDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "definitions directory not found")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	tmpDir := t.TempDir()
	defsDir := filepath.Join(tmpDir, "definitions")
	require.NoError(t, os.MkdirAll(defsDir, 0755))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{defsDir, "/nonexistent/scenarios"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	tmpDir := t.TempDir()
	defsDir := filepath.Join(tmpDir, "definitions")
	scenariosDir := filepath.Join(tmpDir, "scenarios")
	require.NoError(t, os.MkdirAll(defsDir, 0755))
	require.NoError(t, os.MkdirAll(scenariosDir, 0755))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{defsDir, scenariosDir})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	tmpDir := t.TempDir()
	defsDir := filepath.Join(tmpDir, "definitions")
	scenariosDir := filepath.Join(tmpDir, "scenarios")
	require.NoError(t, os.MkdirAll(defsDir, 0755))
	require.NoError(t, os.MkdirAll(scenariosDir, 0755))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{defsDir, scenariosDir})

	err := cmd.Execute()
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestHelpText(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "golden")
	assert.Contains(t, output, "--update")
	assert.Contains(t, output, "--filter")
	assert.Contains(t, output, "definitions-dir")
	assert.Contains(t, output, "scenarios-dir")
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	defsDir, scenariosDir := writeScenarioFixture(t, map[string]string{
		"cli_roundtrip.yaml": passingScenario,
	})

	// First run regenerates the golden file.
	updateBuf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	updateCmd := NewTestCommand(rootOpts)
	updateCmd.SetOut(updateBuf)
	updateCmd.SetArgs([]string{defsDir, scenariosDir, "--update"})
	require.NoError(t, updateCmd.Execute())

	output := updateBuf.String()
	assert.Contains(t, output, "✓ cli_roundtrip (golden updated)")
	assert.Contains(t, output, "Test Summary: 1 passed, 0 failed, 1 total")

	goldenPath := filepath.Join(scenariosDir, "golden", "cli_roundtrip.golden")
	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"cli_roundtrip"`)

	// Second run compares against the golden file and passes.
	compareBuf := &bytes.Buffer{}
	compareCmd := NewTestCommand(rootOpts)
	compareCmd.SetOut(compareBuf)
	compareCmd.SetArgs([]string{defsDir, scenariosDir})
	require.NoError(t, compareCmd.Execute())

	assert.Contains(t, compareBuf.String(), "✓ cli_roundtrip")
	assert.Contains(t, compareBuf.String(), "✓ All scenarios passed")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	defsDir, scenariosDir := writeScenarioFixture(t, map[string]string{
		"cli_roundtrip.yaml": passingScenario,
	})

	rootOpts := &RootOptions{Format: "text"}
	updateCmd := NewTestCommand(rootOpts)
	updateCmd.SetOut(&bytes.Buffer{})
	updateCmd.SetArgs([]string{defsDir, scenariosDir, "--update"})
	require.NoError(t, updateCmd.Execute())

	goldenPath := filepath.Join(scenariosDir, "golden", "cli_roundtrip.golden")
	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"stale":true}`), 0644))

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{defsDir, scenariosDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 scenario(s) failed")
	assert.Contains(t, buf.String(), "Golden file mismatch (run with --update to regenerate)")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestTestCommandFailingScenario(t *testing.T) {
	defsDir, scenariosDir := writeScenarioFixture(t, map[string]string{
		"cli_failing.yaml": failingScenario,
	})

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{defsDir, scenariosDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 scenario(s) failed")

	output := buf.String()
	assert.Contains(t, output, "✗ cli_failing")
	assert.Contains(t, output, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandMixedResultsJSON(t *testing.T) {
	defsDir, scenariosDir := writeScenarioFixture(t, map[string]string{
		"cli_roundtrip.yaml": passingScenario,
		"cli_failing.yaml":   failingScenario,
	})

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{defsDir, scenariosDir})

	err := cmd.Execute()
	require.Error(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "error", response.Status)
	require.NotNil(t, response.Error)
	assert.Equal(t, "E_TEST_FAILED", response.Error.Code)

	data, ok := response.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), data["passed"])
	assert.Equal(t, float64(1), data["failed"])
	assert.Equal(t, float64(2), data["total"])
}

func TestTestCommandFilter(t *testing.T) {
	defsDir, scenariosDir := writeScenarioFixture(t, map[string]string{
		"cli_roundtrip.yaml": passingScenario,
		"cli_failing.yaml":   failingScenario,
	})

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{defsDir, scenariosDir, "--filter", "*roundtrip"})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()

	// Create scenario files
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test1.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test2.yml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	tmpDir := t.TempDir()

	// Create scenario files
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "upsert-match.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "upsert-miss.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "query-window.yaml"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "upsert-*")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	// All found files should start with upsert-
	for _, f := range files {
		base := filepath.Base(f)
		assert.True(t, len(base) >= 7 && base[:7] == "upsert-", "Expected file to start with 'upsert-': %s", f)
	}
}

func TestFindScenarioFilesSubdirectories(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	require.NoError(t, os.MkdirAll(subDir, 0755))

	// Create scenario files in root and subdir
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "root.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "sub.yaml"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestGoldenFilePath(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"/path/to/scenario.yaml", "/path/to/golden/scenario.golden"},
		{"/path/to/scenario.yml", "/path/to/golden/scenario.golden"},
		{"scenarios/window.yaml", "scenarios/golden/window.golden"},
	}

	for _, tc := range testCases {
		result := goldenFilePath(tc.input)
		assert.Equal(t, tc.expected, result)
	}
}

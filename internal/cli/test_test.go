package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const failingScenario = `name: wrong_value
description: Reading back a replaced value reports the mismatch
steps:
  - op: set
    table: users
    key: 1
    value: Ann
  - op: get
    table: users
    key: 1
    expect:
      found: true
      value: Bob
`

// scenarioDir copies harness scenarios, and their golden files, into a
// temporary directory.
func scenarioDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	for _, name := range names {
		copyFile(t, filepath.Join("..", "harness", "testdata", "scenarios", name+".yaml"), filepath.Join(dir, name+".yaml"))
		copyFile(t, filepath.Join("..", "harness", "testdata", "golden", name+".golden"), filepath.Join(dir, "golden", name+".golden"))
	}
	return dir
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dst, data, 0o644))
}

func TestTestCommand_Pass(t *testing.T) {
	for _, engine := range engines {
		t.Run(engine, func(t *testing.T) {
			dir := scenarioDir(t, "ann_then_bob", "scan_order", "missing_table")

			stdout, _, err := execute(t, append(globalArgs(t, engine), "test", dir)...)
			require.NoError(t, err, stdout)
			assert.Contains(t, stdout, "✓ ann_then_bob")
			assert.Contains(t, stdout, "✓ scan_order")
			assert.Contains(t, stdout, "✓ missing_table")
			assert.Contains(t, stdout, "Test Summary: 3 passed, 0 failed, 3 total")
			assert.Contains(t, stdout, "✓ All scenarios passed")
		})
	}
}

func TestTestCommand_Filter(t *testing.T) {
	dir := scenarioDir(t, "ann_then_bob", "scan_order")

	stdout, _, err := execute(t, append(globalArgs(t, "sqlite"), "test", dir, "--filter", "scan*")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ scan_order")
	assert.NotContains(t, stdout, "ann_then_bob")
	assert.Contains(t, stdout, "1 total")
}

func TestTestCommand_Failure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_value.yaml"), []byte(failingScenario), 0o644))

	stdout, _, err := execute(t, append(globalArgs(t, "sqlite"), "test", dir)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ wrong_value")
	assert.Contains(t, stdout, `expected value "Bob", got "Ann"`)
	assert.Contains(t, stdout, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommand_FailureJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_value.yaml"), []byte(failingScenario), 0o644))

	stdout, _, err := execute(t, append(globalArgs(t, "bolt"), "--format", "json", "test", dir)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string     `json:"code"`
			Details TestResult `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeTestFailed, resp.Error.Code)
	assert.Equal(t, "bolt", resp.Error.Details.Engine)
	assert.Equal(t, 1, resp.Error.Details.Failed)
	require.Len(t, resp.Error.Details.Scenarios, 1)
	assert.False(t, resp.Error.Details.Scenarios[0].Pass)
}

func TestTestCommand_GoldenMismatchAndUpdate(t *testing.T) {
	dir := scenarioDir(t, "ann_then_bob")
	goldenPath := filepath.Join(dir, "golden", "ann_then_bob.golden")
	want, err := os.ReadFile(goldenPath)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(goldenPath, []byte("stale\n"), 0o644))

	stdout, _, err := execute(t, append(globalArgs(t, "sqlite"), "test", dir)...)
	require.Error(t, err)
	assert.Contains(t, stdout, "trace does not match golden file")

	stdout, _, err = execute(t, append(globalArgs(t, "sqlite"), "test", dir, "--update")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ ann_then_bob (golden updated)")

	got, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	_, _, err = execute(t, append(globalArgs(t, "sqlite"), "test", dir)...)
	require.NoError(t, err)
}

func TestTestCommand_InvalidScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0o644))

	stdout, _, err := execute(t, append(globalArgs(t, "sqlite"), "test", dir)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ broken.yaml")
	assert.Contains(t, stdout, "failed to load scenario")
}

func TestTestCommand_NoScenarios(t *testing.T) {
	stdout, _, err := execute(t, append(globalArgs(t, "sqlite"), "test", t.TempDir())...)
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", stdout)
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, _, err := execute(t, append(globalArgs(t, "sqlite"), "test", filepath.Join(t.TempDir(), "nope"))...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "notes.txt", "golden/a.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yml")}, files)

	files, err = findScenarioFiles(dir, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.yml")}, files)

	_, err = findScenarioFiles(dir, "[")
	assert.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("s", "golden", "orders.golden"), goldenFilePath(filepath.Join("s", "orders.yaml")))
}

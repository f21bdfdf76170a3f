package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), errBuf.String(), err
}

// globalArgs points the CLI at a fresh data directory.
func globalArgs(t *testing.T, engine string) []string {
	t.Helper()
	return []string{"--data-dir", t.TempDir(), "--engine", engine, "--log-level", "error"}
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tablestore", cmd.Use)
	assert.Contains(t, cmd.Long, "versioned database")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"get", "set", "scan", "import", "tables", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	pf := cmd.PersistentFlags()

	verboseFlag := pf.Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	defaults := map[string]string{
		"format":      "text",
		"config":      "",
		"engine":      "sqlite",
		"data-dir":    "./data",
		"db":          "",
		"log-level":   "info",
		"log-format":  "console",
		"compression": "false",
	}
	for name, def := range defaults {
		flag := pf.Lookup(name)
		require.NotNil(t, flag, "flag --%s", name)
		assert.Equal(t, def, flag.DefValue, "flag --%s", name)
	}
}

func TestKeyFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"get", "set"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		flag := sub.Flags().Lookup("string-key")
		require.NotNil(t, flag, name)
		assert.Equal(t, "false", flag.DefValue)
	}

	imp, _, err := cmd.Find([]string{"import"})
	require.NoError(t, err)
	assert.Equal(t, "8", imp.Flags().Lookup("concurrency").DefValue)
	assert.NotNil(t, imp.Flags().Lookup("string-keys"))
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, append(globalArgs(t, "sqlite"), "--format", "xml", "tables")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidEngine(t *testing.T) {
	_, _, err := execute(t, "--data-dir", t.TempDir(), "--engine", "leveldb", "tables")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid engine")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMissingConfigFile(t *testing.T) {
	_, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "tables")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "tablestore.yaml")
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(cfgPath, []byte("engine: bolt\ndatabase: app\nlog_level: error\ndata_dir: "+dataDir+"\n"), 0o644))

	_, _, err := execute(t, "--config", cfgPath, "set", "users", "1", `"x"`)
	require.NoError(t, err)

	// The bolt engine wrote app.bolt under the configured data dir
	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "app.bolt", entries[0].Name())
}

func TestUnavailableEngine(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, _, err := execute(t, "--data-dir", file, "--log-level", "error", "tables")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open store")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

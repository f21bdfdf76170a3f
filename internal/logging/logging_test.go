package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeLines parses JSON log output into one map per line.
func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), "line: %s", line)
		out = append(out, m)
	}
	return out
}

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: FormatJSON, Out: &buf})
	require.NoError(t, err)

	logger.Info("opened",
		"db", "Store_db",
		"version", 2,
		"forced", true,
		"ratio", 0.5,
		"took", 3*time.Millisecond,
		"error", errors.New("boom"),
	)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "opened", line["message"])
	assert.Equal(t, "Store_db", line["db"])
	assert.Equal(t, float64(2), line["version"])
	assert.Equal(t, true, line["forced"])
	assert.Equal(t, 0.5, line["ratio"])
	assert.Equal(t, "boom", line["error"])
	assert.Contains(t, line, "time")
	assert.Contains(t, line, "took")
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: FormatJSON, Out: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("shown too")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "error", lines[1]["level"])
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
}

func TestNew_WithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: FormatJSON, Out: &buf})
	require.NoError(t, err)

	logger.With("op", "op-0001").WithGroup("upgrade").Info("schema upgrade",
		"old", 1,
		slog.Group("table", "name", "orders"),
	)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "op-0001", lines[0]["op"])
	assert.Equal(t, float64(1), lines[0]["upgrade.old"])
	assert.Equal(t, "orders", lines[0]["upgrade.table.name"])
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: FormatConsole, Out: &buf, NoColor: true})
	require.NoError(t, err)

	logger.Info("table missing", "table", "orders")
	out := buf.String()
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "table missing")
	assert.Contains(t, out, "table=orders")
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.ErrorContains(t, err, "unknown log level")

	_, err = New(Options{Format: "xml"})
	assert.ErrorContains(t, err, "unknown log format")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
	logger.Error("nothing happens")
}

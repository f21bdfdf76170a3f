package harness

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tablestore/internal/engine"
	"github.com/roach88/tablestore/internal/engine/bolt"
	"github.com/roach88/tablestore/internal/engine/sqlite"
	"github.com/roach88/tablestore/internal/store"
	"github.com/roach88/tablestore/internal/value"
)

func newEngines(t *testing.T) map[string]func() engine.Engine {
	return map[string]func() engine.Engine{
		"sqlite":    func() engine.Engine { return sqlite.New(t.TempDir()) },
		"bolt":      func() engine.Engine { return bolt.New(t.TempDir()) },
		"bolt-zstd": func() engine.Engine { return bolt.New(t.TempDir(), bolt.WithCompression(true)) },
	}
}

// TestScenarios runs every scenario under testdata/scenarios on every
// engine. All engines must produce the same golden trace.
func TestScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		scenario, err := LoadScenario(file)
		require.NoError(t, err, file)

		for name, newEngine := range newEngines(t) {
			t.Run(scenario.Name+"/"+name, func(t *testing.T) {
				result, err := RunWithGolden(t, scenario, newEngine())
				require.NoError(t, err)
				assert.True(t, result.Pass, "errors: %v", result.Errors)
			})
		}
	}
}

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}

func TestRun_FailedExpectations(t *testing.T) {
	s := mustParse(t, `
name: wrong
description: every expectation is wrong
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
  - op: get
    table: users
    key: 2
    expect:
      found: true
  - op: scan
    table: users
    expect:
      values: []
  - op: set
    table: users
    key: 3
    value: x
    expect:
      error: table_missing
assertions:
  - type: version
    version: 5
  - type: tables
    tables: [orders]
  - type: trace_count
    op: get
    count: 1
  - type: final_state
    table: users
    key: 1
    expect: Carl
`)

	result, err := Run(context.Background(), s, sqlite.New(t.TempDir()))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 8)

	assert.Contains(t, result.Errors[0], `expected value "Bob", got "Ann"`)
	assert.Contains(t, result.Errors[1], "expected found=true")
	assert.Contains(t, result.Errors[2], `expected values [], got ["Ann"]`)
	assert.Contains(t, result.Errors[3], `expected error "table_missing", got success`)
	assert.Contains(t, result.Errors[4], "Expected: version 5")
	assert.Contains(t, result.Errors[5], "Expected: tables [orders]")
	assert.Contains(t, result.Errors[6], "Expected: 1 get event(s)")
	assert.Contains(t, result.Errors[7], `Expected: users/1 = "Carl"`)
}

func TestRun_UnexpectedError(t *testing.T) {
	s := mustParse(t, `
name: unexpected
description: failure without an expect clause fails the scenario
skip_upgrades: true
steps:
  - op: get
    table: ghost
    key: 1
`)

	result, err := Run(context.Background(), s, bolt.New(t.TempDir()))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0] get ghost: unexpected error")

	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, "table_missing", last.Error)
	assert.Nil(t, last.Found)
}

func TestRun_BadKey(t *testing.T) {
	s := mustParse(t, `
name: bad_key
description: booleans cannot be keys
steps:
  - op: get
    table: users
    key: true
`)

	_, err := Run(context.Background(), s, sqlite.New(t.TempDir()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0: key")
}

func TestRun_UnavailableEngine(t *testing.T) {
	s := mustParse(t, `
name: unavailable
description: engine on a regular file
steps:
  - op: scan
    table: users
`)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, writeFile(file))

	_, err := Run(context.Background(), s, sqlite.New(file))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnsupportedEnvironment)
}

func TestMarshalTrace(t *testing.T) {
	found := false
	trace := []TraceEvent{
		{Seq: 1, Op: OpUpgrade, OldVersion: 0, NewVersion: 1},
		{Seq: 2, Op: OpGet, Table: "t", Key: value.String("k"), Found: &found},
		{Seq: 3, Op: OpScan, Table: "t", Values: nil},
		{Seq: 4, Op: OpScan, Table: "t", Error: "cancelled"},
	}

	data, err := MarshalTrace(trace)
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		`{"new_version":1,"old_version":0,"op":"upgrade","seq":1}`,
		`{"found":false,"key":"k","op":"get","seq":2,"table":"t"}`,
		`{"op":"scan","seq":3,"table":"t","values":[]}`,
		`{"error":"cancelled","op":"scan","seq":4,"table":"t"}`,
	}, "\n")+"\n", string(data))
}

func TestErrorClass(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&store.StorageError{Op: "open", Err: store.ErrTableMissing}, "table_missing"},
		{store.ErrTransactionDone, "transaction_done"},
		{&store.StorageError{Op: "get", Err: context.Canceled}, "cancelled"},
		{context.DeadlineExceeded, "cancelled"},
		{fmt.Errorf("wrap: %w", store.ErrUnsupportedEnvironment), "unsupported"},
		{&store.StorageError{Op: "set", Err: errors.New("disk")}, "storage"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorClass(tt.err), "%v", tt.err)
	}
}

func TestAssertionError_Message(t *testing.T) {
	err := &AssertionError{
		Type:     AssertVersion,
		Expected: "version 2",
		Actual:   "version 1",
		Trace:    []TraceEvent{{Seq: 1, Op: OpUpgrade, NewVersion: 1}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: version")
	assert.Contains(t, msg, "Expected: version 2")
	assert.Contains(t, msg, "Actual: version 1")
	assert.Contains(t, msg, `[1] {"new_version":1,"old_version":0,"op":"upgrade","seq":1}`)
}

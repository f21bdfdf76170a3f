package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(path string) error {
	return os.WriteFile(path, []byte("not a directory"), 0o644)
}

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/orders_upgrade.yaml")
	require.NoError(t, err)

	assert.Equal(t, "orders_upgrade", s.Name)
	assert.Equal(t, "shop", s.Database)
	require.Len(t, s.Steps, 4)
	assert.Equal(t, OpSet, s.Steps[0].Op)
	assert.Equal(t, 1, s.Steps[0].Key)
	assert.Equal(t, "u", s.Steps[0].Value)
	require.NotNil(t, s.Steps[2].Expect)
	assert.Equal(t, true, *s.Steps[2].Expect.Found)
	require.Len(t, s.Assertions, 3)
	assert.Equal(t, []string{"users", "orders"}, s.Assertions[1].Tables)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name:   "malformed",
			yaml:   "name: [unclosed",
			errMsg: "failed to parse YAML",
		},
		{
			name:   "unknown field",
			yaml:   "name: x\ndescription: d\nstep: []\n",
			errMsg: "field step not found",
		},
		{
			name:   "missing name",
			yaml:   "description: d\nsteps: [{op: scan, table: t}]\n",
			errMsg: "name is required",
		},
		{
			name:   "missing description",
			yaml:   "name: x\nsteps: [{op: scan, table: t}]\n",
			errMsg: "description is required",
		},
		{
			name:   "no steps",
			yaml:   "name: x\ndescription: d\n",
			errMsg: "steps list is required",
		},
		{
			name:   "missing table",
			yaml:   "name: x\ndescription: d\nsteps: [{op: scan}]\n",
			errMsg: "steps[0]: table is required",
		},
		{
			name:   "missing op",
			yaml:   "name: x\ndescription: d\nsteps: [{table: t}]\n",
			errMsg: "steps[0]: op is required",
		},
		{
			name:   "unknown op",
			yaml:   "name: x\ndescription: d\nsteps: [{op: delete, table: t, key: 1}]\n",
			errMsg: `unknown op "delete"`,
		},
		{
			name:   "get without key",
			yaml:   "name: x\ndescription: d\nsteps: [{op: get, table: t}]\n",
			errMsg: "key is required for get",
		},
		{
			name:   "scan with key",
			yaml:   "name: x\ndescription: d\nsteps: [{op: scan, table: t, key: 1}]\n",
			errMsg: "scan takes no key",
		},
		{
			name:   "value on get",
			yaml:   "name: x\ndescription: d\nsteps: [{op: get, table: t, key: 1, value: v}]\n",
			errMsg: "value is only valid for set",
		},
		{
			name:   "assertion without type",
			yaml:   "name: x\ndescription: d\nsteps: [{op: scan, table: t}]\nassertions: [{version: 1}]\n",
			errMsg: "assertions[0]: type is required",
		},
		{
			name:   "unknown assertion",
			yaml:   "name: x\ndescription: d\nsteps: [{op: scan, table: t}]\nassertions: [{type: magic}]\n",
			errMsg: `unknown assertion type "magic"`,
		},
		{
			name:   "trace_count without op",
			yaml:   "name: x\ndescription: d\nsteps: [{op: scan, table: t}]\nassertions: [{type: trace_count, count: 1}]\n",
			errMsg: "op is required for trace_count",
		},
		{
			name:   "tables without list",
			yaml:   "name: x\ndescription: d\nsteps: [{op: scan, table: t}]\nassertions: [{type: tables}]\n",
			errMsg: "tables list is required",
		},
		{
			name:   "final_state without key",
			yaml:   "name: x\ndescription: d\nsteps: [{op: scan, table: t}]\nassertions: [{type: final_state, table: t}]\n",
			errMsg: "table and key are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

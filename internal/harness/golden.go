package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tablestore/internal/engine"
	"github.com/roach88/tablestore/internal/value"
)

// MarshalTrace serializes a trace as canonical JSON, one event per line.
// Equal traces always produce identical bytes.
func MarshalTrace(trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	for _, ev := range trace {
		line, err := value.Marshal(ev.Object())
		if err != nil {
			return nil, fmt.Errorf("trace event %d: %w", ev.Seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check expectations and assertions.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, eng engine.Engine) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, eng)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalTrace(result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

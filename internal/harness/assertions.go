package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tablestore/internal/store"
	"github.com/roach88/tablestore/internal/value"
)

// AssertionContext provides what assertions need to inspect the database.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, render(event.Object()))
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns one message per
// failure. The result's trace is attached to failures for context.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertVersion:
		return assertVersion(result.Trace, a, actx)
	case AssertTables:
		return assertTables(result.Trace, a, actx)
	case AssertTraceCount:
		return assertTraceCount(result, a)
	case AssertFinalState:
		return assertFinalState(result.Trace, a, actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertVersion checks the stored database version.
func assertVersion(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	info, err := actx.Store.Info(actx.Ctx)
	if err != nil {
		return fmt.Errorf("version: %w", err)
	}
	if info.Version != a.Version {
		return &AssertionError{
			Type:     AssertVersion,
			Expected: fmt.Sprintf("version %d", a.Version),
			Actual:   fmt.Sprintf("version %d", info.Version),
			Trace:    trace,
		}
	}
	return nil
}

// assertTables checks the stored table names.
func assertTables(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	info, err := actx.Store.Info(actx.Ctx)
	if err != nil {
		return fmt.Errorf("tables: %w", err)
	}
	want := slices.Clone(a.Tables)
	slices.Sort(want)
	if !slices.Equal(want, info.Tables) {
		return &AssertionError{
			Type:     AssertTables,
			Expected: fmt.Sprintf("tables %v", want),
			Actual:   fmt.Sprintf("tables %v", info.Tables),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceCount checks how many events of one operation were recorded.
func assertTraceCount(result *Result, a Assertion) error {
	if got := result.Count(a.Op); got != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s event(s)", a.Count, a.Op),
			Actual:   fmt.Sprintf("%d %s event(s)", got, a.Op),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalState reads one record through the store and compares it.
// A nil Expect means the key must be absent.
func assertFinalState(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	key, err := toKey(a.Key)
	if err != nil {
		return err
	}
	want, err := toValue(a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}

	tx, err := actx.Store.OpenReadTransaction(actx.Ctx, a.Table)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	got, _, err := tx.Get(actx.Ctx, key)
	tx.Rollback()
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}

	if !value.Equal(want, got) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s/%s = %s", a.Table, value.FormatKey(key), render(want)),
			Actual:   fmt.Sprintf("%s/%s = %s", a.Table, value.FormatKey(key), render(got)),
			Trace:    trace,
		}
	}
	return nil
}

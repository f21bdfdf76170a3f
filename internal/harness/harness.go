package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/tablestore/internal/engine"
	"github.com/roach88/tablestore/internal/logging"
	"github.com/roach88/tablestore/internal/store"
	"github.com/roach88/tablestore/internal/testutil"
	"github.com/roach88/tablestore/internal/value"
)

// Harness executes one scenario against one Store.
type Harness struct {
	store    *store.Store
	engine   *testutil.Engine
	seq      int64
	upgrades int // upgrades already copied into the trace
	logger   *slog.Logger
}

// Option configures Run.
type Option func(*Harness)

// WithLogger routes store logs to logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// Run executes a scenario and returns the result.
//
// Run takes ownership of eng and closes it. eng should be empty: the trace
// starts from whatever the engine already stores.
//
// The returned error reports a harness failure (bad step data, engine
// closed); failed expectations and assertions are reported in Result.
func Run(ctx context.Context, scenario *Scenario, eng engine.Engine, opts ...Option) (*Result, error) {
	instrumented := testutil.NewEngine(eng)
	instrumented.SkipUpgrade = scenario.SkipUpgrades

	h := &Harness{
		engine: instrumented,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}

	st, err := store.New(instrumented,
		store.WithName(scenario.Database),
		store.WithLogger(h.logger),
		store.WithIDGenerator(testutil.NewSequenceIDGenerator()),
	)
	if err != nil {
		eng.Close()
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()
	h.store = st

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step, appends its trace events and checks its
// expectation. Only malformed step data is returned as an error.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	tbl := h.store.Table(step.Table)
	ev := TraceEvent{Op: step.Op, Table: tbl.Name()}

	var opErr error
	switch step.Op {
	case OpSet:
		key, err := toKey(step.Key)
		if err != nil {
			return err
		}
		v, err := toValue(step.Value)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		ev.Key = key
		if !value.IsAbsent(v) {
			ev.Value = v
		}
		_, opErr = tbl.SetData(ctx, key, v, quiet[value.Key]())

	case OpGet:
		key, err := toKey(step.Key)
		if err != nil {
			return err
		}
		ev.Key = key
		v, found, err := tbl.GetData(ctx, key, quiet[value.Value]())
		opErr = err
		if err == nil {
			ev.Found = &found
			if found {
				ev.Value = v
			}
		}

	case OpScan:
		values := []value.Value{}
		sc := tbl.GetAllInTurn(ctx, func(v value.Value) { values = append(values, v) }, func(error) {})
		opErr = sc.Wait()
		ev.Values = values

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	h.flushUpgrades(result)
	if opErr != nil {
		ev.Error = ErrorClass(opErr)
	}
	h.seq++
	ev.Seq = h.seq
	result.Trace = append(result.Trace, ev)

	for _, msg := range checkExpect(step, ev, opErr) {
		result.AddError(fmt.Sprintf("steps[%d] %s %s: %s", i, step.Op, step.Table, msg))
	}
	return nil
}

// flushUpgrades copies upgrades recorded since the last step into the trace.
func (h *Harness) flushUpgrades(result *Result) {
	all := h.engine.Upgrades()
	for _, u := range all[h.upgrades:] {
		h.seq++
		result.Trace = append(result.Trace, TraceEvent{
			Seq:        h.seq,
			Op:         OpUpgrade,
			OldVersion: u.OldVersion,
			NewVersion: u.NewVersion,
		})
	}
	h.upgrades = len(all)
}

// checkExpect compares a step outcome with its expectation.
func checkExpect(step Step, ev TraceEvent, opErr error) []string {
	exp := step.Expect
	if exp == nil {
		if opErr != nil {
			return []string{fmt.Sprintf("unexpected error: %v", opErr)}
		}
		return nil
	}

	if exp.Error != "" {
		if opErr == nil {
			return []string{fmt.Sprintf("expected error %q, got success", exp.Error)}
		}
		if ev.Error != exp.Error {
			return []string{fmt.Sprintf("expected error %q, got %q (%v)", exp.Error, ev.Error, opErr)}
		}
		return nil
	}
	if opErr != nil {
		return []string{fmt.Sprintf("unexpected error: %v", opErr)}
	}

	var errs []string
	if exp.Found != nil && (ev.Found == nil || *ev.Found != *exp.Found) {
		errs = append(errs, fmt.Sprintf("expected found=%v", *exp.Found))
	}
	if exp.Value != nil {
		want, err := toValue(exp.Value)
		if err != nil {
			errs = append(errs, fmt.Sprintf("expect.value: %v", err))
		} else if !value.Equal(want, ev.Value) {
			errs = append(errs, fmt.Sprintf("expected value %s, got %s", render(want), render(ev.Value)))
		}
	}
	if exp.Values != nil {
		want, err := toValue(exp.Values)
		if err != nil {
			errs = append(errs, fmt.Sprintf("expect.values: %v", err))
		} else if got := value.Array(ev.Values); !value.Equal(want, got) {
			errs = append(errs, fmt.Sprintf("expected values %s, got %s", render(want), render(got)))
		}
	}
	return errs
}

// ErrorClass maps an operation error to a stable, engine-independent name:
// "table_missing", "transaction_done", "cancelled", "unsupported",
// "storage" or "error".
func ErrorClass(err error) string {
	var se *store.StorageError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, store.ErrTableMissing):
		return "table_missing"
	case errors.Is(err, store.ErrTransactionDone):
		return "transaction_done"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, store.ErrUnsupportedEnvironment):
		return "unsupported"
	case errors.As(err, &se):
		return "storage"
	default:
		return "error"
	}
}

// quiet returns handlers that swallow errors; the harness inspects the
// returned error instead.
func quiet[T any]() store.Handlers[T] {
	return store.Handlers[T]{OnError: func(error) {}}
}

func toValue(v any) (value.Value, error) {
	return value.FromAny(v)
}

func toKey(v any) (value.Key, error) {
	val, err := value.FromAny(v)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	key, ok := value.AsKey(val)
	if !ok {
		return nil, fmt.Errorf("key: %T is not a valid key", val)
	}
	return key, nil
}

func render(v value.Value) string {
	data, err := value.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(data)
}

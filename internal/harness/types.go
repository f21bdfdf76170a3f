package harness

import (
	"github.com/roach88/tablestore/internal/value"
)

// Trace event operations.
const (
	OpSet     = "set"
	OpGet     = "get"
	OpScan    = "scan"
	OpUpgrade = "upgrade"
)

// TraceEvent records one store operation or one schema upgrade.
type TraceEvent struct {
	Seq   int64
	Op    string
	Table string
	Key   value.Key

	// Value is the written value for set and the read value for a get hit.
	Value  value.Value
	Values []value.Value // scan results in delivery order
	Found  *bool         // get only

	OldVersion int64 // upgrade only
	NewVersion int64 // upgrade only

	// Error is the error class of a failed operation, see ErrorClass.
	Error string
}

// Object renders the event for canonical serialization. Fields that do not
// apply to the event's operation are left out.
func (e TraceEvent) Object() value.Object {
	obj := value.Object{
		"seq": value.Int(e.Seq),
		"op":  value.String(e.Op),
	}
	if e.Op == OpUpgrade {
		obj["old_version"] = value.Int(e.OldVersion)
		obj["new_version"] = value.Int(e.NewVersion)
		return obj
	}

	obj["table"] = value.String(e.Table)
	if e.Key != nil {
		obj["key"] = e.Key
	}
	if e.Value != nil {
		obj["value"] = e.Value
	}
	if e.Op == OpScan && e.Error == "" {
		values := make(value.Array, len(e.Values))
		copy(values, e.Values)
		obj["values"] = values
	}
	if e.Found != nil {
		obj["found"] = value.Bool(*e.Found)
	}
	if e.Error != "" {
		obj["error"] = value.String(e.Error)
	}
	return obj
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool

	// Trace lists operations and upgrades in execution order.
	Trace []TraceEvent

	// Errors holds one message per failed expectation or assertion.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Count returns the number of trace events with the given operation.
func (r *Result) Count(op string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Op == op {
			n++
		}
	}
	return n
}

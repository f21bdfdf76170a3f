package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tablestore/internal/value"
)

var (
	// ErrUnsupportedEnvironment is returned by New when no usable Engine
	// is available.
	ErrUnsupportedEnvironment = errors.New("storage engine not supported in this environment")

	// ErrTableMissing means a table was still absent after the forced
	// upgrade. It is only ever returned wrapped in a *StorageError.
	ErrTableMissing = errors.New("table missing after upgrade")

	// ErrTransactionDone is returned when using a settled Transaction.
	ErrTransactionDone = errors.New("transaction already settled")
)

// StorageError wraps a failure reported by the Engine.
//
// The underlying error can be inspected with errors.Is / errors.As.
type StorageError struct {
	Op    string    // "open", "begin", "get", "set", "scan", "commit", "rollback"
	Table string    // table the operation was bound to
	Key   value.Key // key for get/set, nil otherwise
	Err   error
}

func (e *StorageError) Error() string {
	var b strings.Builder
	b.WriteString("storage: ")
	b.WriteString(e.Op)
	if e.Table != "" {
		fmt.Fprintf(&b, " %s", e.Table)
		if e.Key != nil {
			fmt.Fprintf(&b, "/%s", value.FormatKey(e.Key))
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageError wraps err unless it already is a *StorageError.
func storageError(op, table string, key value.Key, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Table: table, Key: key, Err: err}
}

package store

import (
	"context"
	"log/slog"

	"github.com/roach88/tablestore/internal/value"
)

// Handlers are optional completion callbacks for a facade operation.
// OnSuccess receives the result; OnError receives the failure. Either may
// be nil.
type Handlers[T any] struct {
	OnSuccess func(T)
	OnError   func(error)
}

// Table is the per-table facade. Every operation runs the open protocol and
// a fresh Transaction, so callers never deal with versions or connections.
type Table struct {
	store *Store
	name  string
}

// Name returns the normalized table name.
func (t *Table) Name() string {
	return t.name
}

// GetData returns the value stored under key. A missing key is not an
// error: it returns (nil, false, nil) and OnSuccess receives nil.
func (t *Table) GetData(ctx context.Context, key value.Key, h ...Handlers[value.Value]) (value.Value, bool, error) {
	v, found, err := t.getData(ctx, key)
	deliver(t.store.logger, "get", t.name, h, v, err)
	return v, found, err
}

func (t *Table) getData(ctx context.Context, key value.Key) (value.Value, bool, error) {
	tx, err := t.store.OpenTransaction(ctx, t.name)
	if err != nil {
		return nil, false, err
	}
	v, found, err := tx.Get(ctx, key)
	if err != nil {
		tx.Rollback()
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return v, found, nil
}

// SetData stores v under key and returns the key. Existing records are
// replaced. An absent v stores nothing.
func (t *Table) SetData(ctx context.Context, key value.Key, v value.Value, h ...Handlers[value.Key]) (value.Key, error) {
	k, err := t.setData(ctx, key, v)
	deliver(t.store.logger, "set", t.name, h, k, err)
	return k, err
}

func (t *Table) setData(ctx context.Context, key value.Key, v value.Value) (value.Key, error) {
	tx, err := t.store.OpenTransaction(ctx, t.name)
	if err != nil {
		return nil, err
	}
	k, err := tx.Set(ctx, key, v)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return k, nil
}

// GetAllInTurn streams every record to onItem in ascending key order and
// returns immediately. The scan runs on its own goroutine inside a
// read-only transaction; callbacks are sequential.
//
// onItem must not start a write on the same table when the Engine holds a
// single writer that waits for readers (bolt): the scan holds its read
// transaction until it ends.
func (t *Table) GetAllInTurn(ctx context.Context, onItem func(value.Value), onError func(error)) *Scan {
	sc := &Scan{done: make(chan struct{})}
	go func() {
		defer close(sc.done)
		sc.err = t.scan(ctx, sc, onItem)
		if sc.err == nil {
			return
		}
		if onError != nil {
			onError(sc.err)
			return
		}
		t.store.logger.Error("unhandled storage error", "op", "scan", "table", t.name, "error", sc.err)
	}()
	return sc
}

func (t *Table) scan(ctx context.Context, sc *Scan, onItem func(value.Value)) error {
	tx, err := t.store.OpenReadTransaction(ctx, t.name)
	if err != nil {
		return err
	}
	return tx.ScanAll(ctx, func(v value.Value) {
		sc.count++
		if onItem != nil {
			onItem(v)
		}
	}, nil)
}

// Scan is the handle of a running GetAllInTurn.
type Scan struct {
	done  chan struct{}
	err   error
	count int
}

// Done is closed when the scan has finished.
func (s *Scan) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the scan finishes and returns its terminal error.
func (s *Scan) Wait() error {
	<-s.done
	return s.err
}

// Count blocks until the scan finishes and returns the number of records
// delivered to onItem.
func (s *Scan) Count() int {
	<-s.done
	return s.count
}

// deliver routes an operation outcome to the handlers. A failure with no
// OnError handler is logged.
func deliver[T any](logger *slog.Logger, op, table string, hs []Handlers[T], result T, err error) {
	handled := false
	for _, h := range hs {
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
				handled = true
			}
			continue
		}
		if h.OnSuccess != nil {
			h.OnSuccess(result)
		}
	}
	if err != nil && !handled {
		logger.Error("unhandled storage error", "op", op, "table", table, "error", err)
	}
}

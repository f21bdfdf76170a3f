package store

import (
	"context"
	"errors"
	"iter"

	"github.com/roach88/tablestore/internal/codec"
	"github.com/roach88/tablestore/internal/engine"
	"github.com/roach88/tablestore/internal/value"
)

// Transaction is one logical operation against one table.
//
// A Transaction owns its engine connection and releases it when it settles
// (Commit, Rollback, or the end of a Scan). It is not safe for concurrent
// use.
type Transaction struct {
	conn    engine.Conn
	tx      engine.Tx
	table   string
	mode    engine.Mode
	settled bool
}

// Table returns the table the transaction is bound to.
func (t *Transaction) Table() string {
	return t.table
}

// Mode returns the transaction's access mode.
func (t *Transaction) Mode() engine.Mode {
	return t.mode
}

// Get returns the caller-facing value stored under key.
// A missing key returns (nil, false, nil).
func (t *Transaction) Get(ctx context.Context, key value.Key) (value.Value, bool, error) {
	if t.settled {
		return nil, false, ErrTransactionDone
	}

	data, found, err := t.tx.Get(ctx, key)
	if err != nil {
		return nil, false, storageError("get", t.table, key, err)
	}
	if !found {
		return nil, false, nil
	}

	rec, err := codec.Decode(data)
	if err != nil {
		return nil, false, storageError("get", t.table, key, err)
	}
	return codec.Unwrap(rec), true, nil
}

// Set stores v under key, inserting when the key is new and replacing the
// existing record otherwise. An absent v (nil or value.Null) stores nothing
// and still returns key.
func (t *Transaction) Set(ctx context.Context, key value.Key, v value.Value) (value.Key, error) {
	if t.settled {
		return nil, ErrTransactionDone
	}
	if key == nil {
		return nil, storageError("set", t.table, nil, errors.New("nil key"))
	}

	rec, ok := codec.Wrap(v)
	if !ok {
		return key, nil
	}
	rec.ID = key

	data, err := codec.Encode(rec)
	if err != nil {
		return nil, storageError("set", t.table, key, err)
	}

	_, found, err := t.tx.Get(ctx, key)
	if err != nil {
		return nil, storageError("set", t.table, key, err)
	}
	if found {
		err = t.tx.Put(ctx, key, data)
	} else {
		err = t.tx.Add(ctx, key, data)
	}
	if err != nil {
		return nil, storageError("set", t.table, key, err)
	}
	return key, nil
}

// Scan iterates every record of the table in ascending key order.
//
// The sequence is lazy and single-use: the transaction commits when the
// cursor is exhausted and rolls back on failure or when the consumer stops
// early. Ranging over it a second time yields ErrTransactionDone.
func (t *Transaction) Scan(ctx context.Context) iter.Seq2[value.Value, error] {
	return func(yield func(value.Value, error) bool) {
		if t.settled {
			yield(nil, ErrTransactionDone)
			return
		}

		cur, err := t.tx.Cursor(ctx)
		if err != nil {
			t.Rollback()
			yield(nil, storageError("scan", t.table, nil, err))
			return
		}

		for cur.Next() {
			rec, err := codec.Decode(cur.Data())
			if err != nil {
				key := cur.Key()
				cur.Close()
				t.Rollback()
				yield(nil, storageError("scan", t.table, key, err))
				return
			}
			if !yield(codec.Unwrap(rec), nil) {
				cur.Close()
				t.Rollback()
				return
			}
		}

		err = cur.Err()
		cur.Close()
		if err != nil {
			t.Rollback()
			yield(nil, storageError("scan", t.table, nil, err))
			return
		}
		if err := t.Commit(); err != nil {
			yield(nil, err)
		}
	}
}

// ScanAll pushes every record to onItem in ascending key order. Each call
// returns before the cursor advances. A failure is passed to onError when
// non-nil and is returned either way.
func (t *Transaction) ScanAll(ctx context.Context, onItem func(value.Value), onError func(error)) error {
	for v, err := range t.Scan(ctx) {
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return err
		}
		if onItem != nil {
			onItem(v)
		}
	}
	return nil
}

// Commit commits the transaction and releases its connection.
func (t *Transaction) Commit() error {
	if t.settled {
		return ErrTransactionDone
	}
	t.settled = true
	defer t.conn.Close()

	if err := t.tx.Commit(); err != nil {
		return storageError("commit", t.table, nil, err)
	}
	return nil
}

// Rollback discards the transaction and releases its connection.
// Rolling back a settled transaction is a no-op.
func (t *Transaction) Rollback() error {
	if t.settled {
		return nil
	}
	t.settled = true
	defer t.conn.Close()

	if err := t.tx.Rollback(); err != nil {
		return storageError("rollback", t.table, nil, err)
	}
	return nil
}

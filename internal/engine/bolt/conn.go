package bolt

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"go.etcd.io/bbolt"

	"github.com/roach88/tablestore/internal/engine"
	"github.com/roach88/tablestore/internal/value"
)

func bucketName(table string) []byte {
	return []byte(tablePrefix + table)
}

// schema is the upgrade-time view backed by the version-change transaction.
type schema struct {
	btx *bbolt.Tx
}

func (s *schema) HasTable(name string) bool {
	return s.btx.Bucket(bucketName(name)) != nil
}

func (s *schema) CreateTable(name string) error {
	if err := engine.ValidateName("table", name); err != nil {
		return err
	}
	_, err := s.btx.CreateBucket(bucketName(name))
	if errors.Is(err, bbolt.ErrBucketExists) {
		return fmt.Errorf("create table %q: %w", name, engine.ErrTableExists)
	}
	if err != nil {
		return fmt.Errorf("create table %q: %w", name, err)
	}
	return nil
}

// conn is a snapshot of one database at one version.
type conn struct {
	db      *database
	version int64
	tables  []string
	closed  atomic.Bool
}

func newConn(db *database, version int64, tables []string) *conn {
	return &conn{db: db, version: version, tables: tables}
}

func (c *conn) Name() string   { return c.db.name }
func (c *conn) Version() int64 { return c.version }

func (c *conn) HasTable(name string) bool {
	_, found := slices.BinarySearch(c.tables, name)
	return found
}

func (c *conn) Tables() []string {
	return slices.Clone(c.tables)
}

func (c *conn) Begin(ctx context.Context, table string, mode engine.Mode) (engine.Tx, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("begin %q: %w", table, engine.ErrClosed)
	}
	if !c.HasTable(table) {
		return nil, fmt.Errorf("begin %q: %w", table, engine.ErrTableNotFound)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	btx, err := c.db.db.Begin(mode == engine.ReadWrite)
	if err != nil {
		return nil, fmt.Errorf("begin %q: %w", table, err)
	}
	if btx.Bucket(bucketName(table)) == nil {
		_ = btx.Rollback()
		return nil, fmt.Errorf("begin %q: %w", table, engine.ErrTableNotFound)
	}
	return &tx{btx: btx, db: c.db, table: table, bucket: bucketName(table), mode: mode}, nil
}

func (c *conn) Close() error {
	c.closed.Store(true)
	return nil
}

// tx adapts *bbolt.Tx to engine.Tx. It is not safe for concurrent use.
type tx struct {
	btx    *bbolt.Tx
	db     *database
	table  string
	bucket []byte
	mode   engine.Mode
	done   bool
}

func (t *tx) Table() string     { return t.table }
func (t *tx) Mode() engine.Mode { return t.mode }

func (t *tx) check(ctx context.Context) error {
	if t.done {
		return engine.ErrTxDone
	}
	return ctx.Err()
}

func (t *tx) Get(ctx context.Context, key value.Key) ([]byte, bool, error) {
	if err := t.check(ctx); err != nil {
		return nil, false, err
	}
	k, err := encodeKey(key)
	if err != nil {
		return nil, false, err
	}

	stored := t.btx.Bucket(t.bucket).Get(k)
	if stored == nil {
		return nil, false, nil
	}
	data, err := t.db.unpack(stored)
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", t.table, value.FormatKey(key), err)
	}
	return data, true, nil
}

func (t *tx) Add(ctx context.Context, key value.Key, data []byte) error {
	if err := t.writable(ctx); err != nil {
		return err
	}
	k, err := encodeKey(key)
	if err != nil {
		return err
	}

	b := t.btx.Bucket(t.bucket)
	if b.Get(k) != nil {
		return fmt.Errorf("add %s/%s: %w", t.table, value.FormatKey(key), engine.ErrKeyExists)
	}
	return t.put(b, key, k, data)
}

func (t *tx) Put(ctx context.Context, key value.Key, data []byte) error {
	if err := t.writable(ctx); err != nil {
		return err
	}
	k, err := encodeKey(key)
	if err != nil {
		return err
	}
	return t.put(t.btx.Bucket(t.bucket), key, k, data)
}

func (t *tx) put(b *bbolt.Bucket, key value.Key, k, data []byte) error {
	packed, err := t.db.pack(data)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", t.table, value.FormatKey(key), err)
	}
	if err := b.Put(k, packed); err != nil {
		return fmt.Errorf("put %s/%s: %w", t.table, value.FormatKey(key), err)
	}
	return nil
}

// Cursor iterates the bucket in byte order, which is key order.
func (t *tx) Cursor(ctx context.Context) (engine.Cursor, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	return &cursor{ctx: ctx, c: t.btx.Bucket(t.bucket).Cursor(), tx: t}, nil
}

// Commit commits a read-write transaction. bbolt read-only transactions
// cannot commit; they are released instead.
func (t *tx) Commit() error {
	if t.done {
		return engine.ErrTxDone
	}
	t.done = true
	if t.mode != engine.ReadWrite {
		return t.btx.Rollback()
	}
	if err := t.btx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", t.table, err)
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return engine.ErrTxDone
	}
	t.done = true
	if err := t.btx.Rollback(); err != nil {
		return fmt.Errorf("rollback %s: %w", t.table, err)
	}
	return nil
}

func (t *tx) writable(ctx context.Context) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if t.mode != engine.ReadWrite {
		return fmt.Errorf("write %s: %w", t.table, engine.ErrReadOnly)
	}
	return nil
}

// cursor adapts *bbolt.Cursor to engine.Cursor. Keys and values are copied
// out since bbolt memory is only valid while the transaction is open.
type cursor struct {
	ctx     context.Context
	c       *bbolt.Cursor
	tx      *tx
	started bool
	closed  bool
	key     value.Key
	data    []byte
	err     error
}

func (c *cursor) Next() bool {
	if c.err != nil || c.closed {
		return false
	}
	if c.tx.done {
		c.err = engine.ErrTxDone
		return false
	}
	if err := c.ctx.Err(); err != nil {
		c.err = err
		return false
	}

	var k, v []byte
	if !c.started {
		k, v = c.c.First()
		c.started = true
	} else {
		k, v = c.c.Next()
	}
	if k == nil {
		return false
	}

	key, err := decodeKey(k)
	if err != nil {
		c.err = fmt.Errorf("scan %s: %w", c.tx.table, err)
		return false
	}
	data, err := c.tx.db.unpack(v)
	if err != nil {
		c.err = fmt.Errorf("scan %s: %w", c.tx.table, err)
		return false
	}
	c.key, c.data = key, data
	return true
}

func (c *cursor) Key() value.Key { return c.key }
func (c *cursor) Data() []byte   { return c.data }
func (c *cursor) Err() error     { return c.err }

func (c *cursor) Close() error {
	c.closed = true
	return nil
}

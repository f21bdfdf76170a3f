package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/tablestore/internal/engine"
	"github.com/roach88/tablestore/internal/value"
)

// tablePrefix keeps object stores apart from SQLite's reserved sqlite_ names.
const tablePrefix = "t_"

// quoteTable returns the quoted SQL identifier for an object store.
func quoteTable(name string) string {
	return `"` + strings.ReplaceAll(tablePrefix+name, `"`, `""`) + `"`
}

// schema is the upgrade-time view backed by the version-change transaction.
type schema struct {
	ctx context.Context
	tx  *sql.Tx
}

func (s *schema) HasTable(name string) bool {
	var n int
	err := s.tx.QueryRowContext(s.ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		tablePrefix+name,
	).Scan(&n)
	return err == nil && n > 0
}

func (s *schema) CreateTable(name string) error {
	if err := engine.ValidateName("table", name); err != nil {
		return err
	}
	if s.HasTable(name) {
		return fmt.Errorf("create table %q: %w", name, engine.ErrTableExists)
	}
	_, err := s.tx.ExecContext(s.ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			id NOT NULL PRIMARY KEY,
			record BLOB NOT NULL
		) WITHOUT ROWID
	`, quoteTable(name)))
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

// Begin starts a transaction on the writer pool for ReadWrite and on the
// reader pool for ReadOnly.
func (c *conn) Begin(ctx context.Context, table string, mode engine.Mode) (engine.Tx, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("begin %q: %w", table, engine.ErrClosed)
	}
	if !c.HasTable(table) {
		return nil, fmt.Errorf("begin %q: %w", table, engine.ErrTableNotFound)
	}

	pool := c.db.reader
	if mode == engine.ReadWrite {
		pool = c.db.writer
	}
	sqlTx, err := pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin %q: %w", table, err)
	}
	return &tx{sqlTx: sqlTx, table: table, ident: quoteTable(table), mode: mode}, nil
}

func (c *conn) Close() error {
	c.closed.Store(true)
	return nil
}

// tx adapts *sql.Tx to engine.Tx. It is not safe for concurrent use.
type tx struct {
	sqlTx *sql.Tx
	table string
	ident string
	mode  engine.Mode
	done  bool
}

func (t *tx) Table() string     { return t.table }
func (t *tx) Mode() engine.Mode { return t.mode }

func (t *tx) Get(ctx context.Context, key value.Key) ([]byte, bool, error) {
	if t.done {
		return nil, false, engine.ErrTxDone
	}
	arg, err := keyArg(key)
	if err != nil {
		return nil, false, err
	}

	var data []byte
	err = t.sqlTx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT record FROM %s WHERE id = ?", t.ident), arg,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", t.table, value.FormatKey(key), err)
	}
	return data, true, nil
}

func (t *tx) Add(ctx context.Context, key value.Key, data []byte) error {
	if err := t.writable(); err != nil {
		return err
	}
	arg, err := keyArg(key)
	if err != nil {
		return err
	}

	_, err = t.sqlTx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, record) VALUES (?, ?)", t.ident), arg, data,
	)
	if isConstraint(err) {
		return fmt.Errorf("add %s/%s: %w", t.table, value.FormatKey(key), engine.ErrKeyExists)
	}
	if err != nil {
		return fmt.Errorf("add %s/%s: %w", t.table, value.FormatKey(key), err)
	}
	return nil
}

func (t *tx) Put(ctx context.Context, key value.Key, data []byte) error {
	if err := t.writable(); err != nil {
		return err
	}
	arg, err := keyArg(key)
	if err != nil {
		return err
	}

	_, err = t.sqlTx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, record) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET record = excluded.record
	`, t.ident), arg, data)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", t.table, value.FormatKey(key), err)
	}
	return nil
}

// Cursor returns all entries ordered by id.
func (t *tx) Cursor(ctx context.Context) (engine.Cursor, error) {
	if t.done {
		return nil, engine.ErrTxDone
	}
	rows, err := t.sqlTx.QueryContext(ctx,
		fmt.Sprintf("SELECT id, record FROM %s ORDER BY id ASC", t.ident),
	)
	if err != nil {
		return nil, fmt.Errorf("cursor %s: %w", t.table, err)
	}
	return &cursor{rows: rows, table: t.table}, nil
}

func (t *tx) Commit() error {
	if t.done {
		return engine.ErrTxDone
	}
	t.done = true
	if err := t.sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", t.table, err)
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return engine.ErrTxDone
	}
	t.done = true
	if err := t.sqlTx.Rollback(); err != nil {
		return fmt.Errorf("rollback %s: %w", t.table, err)
	}
	return nil
}

func (t *tx) writable() error {
	if t.done {
		return engine.ErrTxDone
	}
	if t.mode != engine.ReadWrite {
		return fmt.Errorf("write %s: %w", t.table, engine.ErrReadOnly)
	}
	return nil
}

// cursor adapts *sql.Rows to engine.Cursor.
type cursor struct {
	rows  *sql.Rows
	table string
	key   value.Key
	data  []byte
	err   error
}

func (c *cursor) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			c.err = fmt.Errorf("iterate %s: %w", c.table, err)
		}
		return false
	}

	var raw any
	var data []byte
	if err := c.rows.Scan(&raw, &data); err != nil {
		c.err = fmt.Errorf("scan %s: %w", c.table, err)
		return false
	}
	key, err := keyFromColumn(raw)
	if err != nil {
		c.err = fmt.Errorf("scan %s: %w", c.table, err)
		return false
	}
	c.key, c.data = key, data
	return true
}

func (c *cursor) Key() value.Key { return c.key }
func (c *cursor) Data() []byte   { return c.data }
func (c *cursor) Err() error     { return c.err }
func (c *cursor) Close() error   { return c.rows.Close() }

// keyArg binds a key with its natural SQLite storage class.
func keyArg(k value.Key) (any, error) {
	switch kv := k.(type) {
	case value.String:
		return string(kv), nil
	case value.Int:
		return int64(kv), nil
	case value.Float:
		return float64(kv), nil
	default:
		return nil, fmt.Errorf("unsupported key type %T", k)
	}
}

// keyFromColumn converts a scanned id column back to a key.
// The driver reports TEXT as string or []byte depending on the declared type.
func keyFromColumn(raw any) (value.Key, error) {
	switch v := raw.(type) {
	case int64:
		return value.Int(v), nil
	case float64:
		return value.Float(v), nil
	case string:
		return value.String(v), nil
	case []byte:
		return value.String(string(v)), nil
	default:
		return nil, fmt.Errorf("unsupported id column type %T", raw)
	}
}

// isConstraint reports whether err is a SQLite constraint violation.
func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

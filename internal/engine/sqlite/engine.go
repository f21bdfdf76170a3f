package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tablestore/internal/engine"
)

const (
	driverName = "sqlite3"
	fileExt    = ".db"

	// busyTimeoutMS bounds how long a connection waits on a locked database.
	busyTimeoutMS = 5000
)

// Engine stores each database in its own SQLite file under a directory.
// Connection pools are opened lazily and kept until Close.
type Engine struct {
	dir string

	mu     sync.Mutex
	dbs    map[string]*database
	closed bool
}

var _ engine.Engine = (*Engine)(nil)

// database holds the two connection pools of one SQLite file.
type database struct {
	name   string
	path   string
	writer *sql.DB
	reader *sql.DB
}

// New creates an Engine rooted at dir. The directory is created by
// Available or on first use.
func New(dir string) *Engine {
	return &Engine{
		dir: dir,
		dbs: make(map[string]*database),
	}
}

// Dir returns the directory holding the database files.
func (e *Engine) Dir() string {
	return e.dir
}

// Available reports whether the sqlite3 driver is registered and the data
// directory can be used.
func (e *Engine) Available() error {
	if !slices.Contains(sql.Drivers(), driverName) {
		return fmt.Errorf("sql driver %q not registered", driverName)
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	info, err := os.Stat(e.dir)
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", e.dir)
	}
	return nil
}

// Databases lists database files with a stored version >= 1, ordered by name.
func (e *Engine) Databases(ctx context.Context) ([]engine.DatabaseInfo, error) {
	entries, err := os.ReadDir(e.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []engine.DatabaseInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}

	infos := []engine.DatabaseInfo{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := engine.NameFromFile(entry.Name(), fileExt)
		if !ok {
			continue
		}

		db, err := e.database(name)
		if err != nil {
			return nil, fmt.Errorf("list databases: %w", err)
		}
		version, err := readVersion(ctx, db.reader)
		if err != nil {
			return nil, fmt.Errorf("list databases: %s: %w", name, err)
		}
		// A file left at version 0 never completed its first upgrade.
		if version == 0 {
			continue
		}
		infos = append(infos, engine.DatabaseInfo{Name: name, Version: version})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Open opens database name at version, running upgrade inside a single
// IMMEDIATE transaction when version exceeds the stored user_version.
func (e *Engine) Open(ctx context.Context, name string, version int64, upgrade engine.UpgradeFunc) (engine.Conn, error) {
	if err := engine.ValidateName("database", name); err != nil {
		return nil, err
	}
	if version < 1 {
		return nil, fmt.Errorf("open %q at version %d: %w", name, version, engine.ErrInvalidVersion)
	}

	db, err := e.database(name)
	if err != nil {
		return nil, err
	}

	// Fast path: no version change needed, so no write lock is taken.
	stored, err := readVersion(ctx, db.reader)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	if version < stored {
		return nil, fmt.Errorf("open %q at version %d (stored %d): %w", name, version, stored, engine.ErrVersion)
	}
	if version == stored {
		tables, err := listTables(ctx, db.reader)
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", name, err)
		}
		return newConn(db, version, tables), nil
	}

	tables, err := upgradeDatabase(ctx, db, version, upgrade)
	if err != nil {
		return nil, err
	}
	return newConn(db, version, tables), nil
}

// upgradeDatabase performs the version change. The stored version is read
// again under the write lock since another writer may have moved it.
func upgradeDatabase(ctx context.Context, db *database, version int64, upgrade engine.UpgradeFunc) ([]string, error) {
	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("open %q: begin version change: %w", db.name, err)
	}
	defer tx.Rollback() // No-op if committed

	stored, err := readVersion(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", db.name, err)
	}
	if version < stored {
		return nil, fmt.Errorf("open %q at version %d (stored %d): %w", db.name, version, stored, engine.ErrVersion)
	}

	if version > stored {
		if upgrade != nil {
			s := &schema{ctx: ctx, tx: tx}
			if err := upgrade(ctx, s, stored, version); err != nil {
				return nil, fmt.Errorf("open %q: upgrade %d -> %d: %w", db.name, stored, version, err)
			}
		}
		// user_version lives in the file header and is written as part of tx.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
			return nil, fmt.Errorf("open %q: set user_version: %w", db.name, err)
		}
	}

	tables, err := listTables(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", db.name, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("open %q: commit version change: %w", db.name, err)
	}
	return tables, nil
}

// Close closes every connection pool. The Engine cannot be reused.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for _, db := range e.dbs {
		errs = append(errs, db.reader.Close(), db.writer.Close())
	}
	e.dbs = nil
	return errors.Join(errs...)
}

// database returns the cached pools for name, opening them on first use.
func (e *Engine) database(name string) (*database, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("sqlite engine: %w", engine.ErrClosed)
	}
	if db, ok := e.dbs[name]; ok {
		return db, nil
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	path := filepath.Join(e.dir, engine.FileName(name, fileExt))

	writer, err := openPool(path, "immediate")
	if err != nil {
		return nil, err
	}
	// SQLite only supports one writer at a time, so limit connections
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	if err := applyPragmas(writer); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	reader, err := openPool(path, "deferred")
	if err != nil {
		writer.Close()
		return nil, err
	}

	db := &database{name: name, path: path, writer: writer, reader: reader}
	e.dbs[name] = db
	return db, nil
}

// openPool opens a connection pool on path. Per-connection settings go in
// the DSN so every pooled connection gets them.
func openPool(path, txlock string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_txlock=%s&_busy_timeout=%d&_synchronous=NORMAL&_foreign_keys=on",
		path, txlock, busyTimeoutMS)

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// applyPragmas sets database-wide configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readVersion(ctx context.Context, q queryer) (int64, error) {
	var version int64
	if err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// listTables returns object store names, sorted.
func listTables(ctx context.Context, q queryer) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND substr(name, 1, 2) = 't_'
	`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var sqlName string
		if err := rows.Scan(&sqlName); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		tables = append(tables, strings.TrimPrefix(sqlName, tablePrefix))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	sort.Strings(tables)
	return tables, nil
}

// Package engine defines the contract of a versioned, transactional object
// store. Implementations live in sub-packages (sqlite, bolt).
//
// The model:
//   - An Engine hosts named databases, each with a schema version >= 1
//   - A database holds tables (object stores) keyed by value.Key
//   - Tables can only be created inside the upgrade callback of Open,
//     which runs when the requested version exceeds the stored one
//   - A Conn is a snapshot of a database at one version
//   - A Tx is bound to exactly one table and one Mode
package engine

import (
	"context"
	"errors"

	"github.com/roach88/tablestore/internal/value"
)

// Sentinel errors shared by all Engine implementations.
var (
	// ErrTableNotFound is returned by Begin for a table absent from the Conn.
	ErrTableNotFound = errors.New("table not found")
	// ErrTableExists is returned by Schema.CreateTable for an existing table.
	ErrTableExists = errors.New("table already exists")
	// ErrKeyExists is returned by Tx.Add when the key is already stored.
	ErrKeyExists = errors.New("key already exists")
	// ErrVersion is returned by Open when the requested version is lower
	// than the stored version.
	ErrVersion = errors.New("requested version is lower than stored version")
	// ErrInvalidVersion is returned by Open for versions below 1.
	ErrInvalidVersion = errors.New("version must be >= 1")
	// ErrReadOnly is returned by writes on a read-only transaction.
	ErrReadOnly = errors.New("transaction is read-only")
	// ErrClosed is returned when using a closed Conn or Engine.
	ErrClosed = errors.New("closed")
	// ErrTxDone is returned when using a committed or rolled back Tx.
	ErrTxDone = errors.New("transaction already settled")
)

// Mode selects the access mode of a transaction.
type Mode int

const (
	// ReadOnly transactions may run concurrently with each other.
	ReadOnly Mode = iota
	// ReadWrite transactions on the same database are serialized.
	ReadWrite
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	default:
		return "unknown"
	}
}

// DatabaseInfo describes an existing database.
type DatabaseInfo struct {
	Name    string `json:"name"`
	Version int64  `json:"version"`
}

// UpgradeFunc runs inside the version-change transaction. Returning an error
// aborts the version change; the stored version is left untouched.
type UpgradeFunc func(ctx context.Context, schema Schema, oldVersion, newVersion int64) error

// Engine is a versioned, transactional object store service.
type Engine interface {
	// Available reports whether the engine can serve requests in this
	// environment. A nil error means the capability is present.
	Available() error

	// Databases lists existing databases and their stored versions,
	// ordered by name.
	Databases(ctx context.Context) ([]DatabaseInfo, error)

	// Open opens database name at version, creating it when missing.
	// upgrade runs only when version is strictly greater than the stored
	// version (0 for a new database).
	Open(ctx context.Context, name string, version int64, upgrade UpgradeFunc) (Conn, error)

	// Close releases every resource held by the engine.
	Close() error
}

// Schema is the view of a database available during an upgrade.
type Schema interface {
	HasTable(name string) bool
	CreateTable(name string) error
}

// Conn is an open database at one version.
type Conn interface {
	Name() string
	Version() int64

	// HasTable reports whether name existed when the Conn was opened.
	HasTable(name string) bool
	// Tables returns the sorted table names seen when the Conn was opened.
	Tables() []string

	// Begin starts a transaction bound to table.
	Begin(ctx context.Context, table string, mode Mode) (Tx, error)

	// Close releases the Conn. Transactions already begun stay usable
	// until they settle.
	Close() error
}

// Tx is a transaction bound to one table.
type Tx interface {
	Table() string
	Mode() Mode

	// Get returns the stored bytes for key, or found=false.
	Get(ctx context.Context, key value.Key) (data []byte, found bool, err error)
	// Add stores data under key and fails with ErrKeyExists when present.
	Add(ctx context.Context, key value.Key, data []byte) error
	// Put stores data under key, replacing any existing entry.
	Put(ctx context.Context, key value.Key, data []byte) error
	// Cursor iterates every entry of the table in ascending key order.
	Cursor(ctx context.Context) (Cursor, error)

	Commit() error
	Rollback() error
}

// Cursor is a forward-only iterator over table entries.
//
// Usage:
//
//	for cur.Next() {
//		use(cur.Key(), cur.Data())
//	}
//	if err := cur.Err(); err != nil { ... }
type Cursor interface {
	Next() bool
	Key() value.Key
	Data() []byte
	Err() error
	Close() error
}

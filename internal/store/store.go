package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/tablestore/internal/engine"
)

// maxForcedUpgrades bounds the open protocol's recovery loop.
const maxForcedUpgrades = 1

// Store is a handle on one named database of an Engine.
//
// Thread-safety: Store is safe for concurrent use. It holds no long-lived
// connection; every operation opens its own Conn and Transaction.
type Store struct {
	eng    engine.Engine
	name   string
	logger *slog.Logger
	ids    IDGenerator

	mu      sync.Mutex
	version int64 // working version, adopted from the Engine on every probe
}

// Info describes the database behind a Store.
type Info struct {
	Name    string   `json:"name"`
	Version int64    `json:"version"`
	Tables  []string `json:"tables"`
}

// New creates a Store over eng.
//
// Returns ErrUnsupportedEnvironment if eng is nil or reports itself
// unavailable. The check runs once; the Store never re-probes capability.
func New(eng engine.Engine, opts ...Option) (*Store, error) {
	if eng == nil {
		return nil, ErrUnsupportedEnvironment
	}
	if err := eng.Available(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedEnvironment, err)
	}

	s := &Store{
		eng:     eng,
		logger:  slog.Default(),
		ids:     UUIDv7Generator{},
		version: 1,
	}
	s.name = reflect.TypeOf(*s).Name() + "_db"
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the database name.
func (s *Store) Name() string {
	return s.name
}

// Version returns the last working version the Store used or observed.
func (s *Store) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Table returns the facade for the named table. The name is normalized to
// Unicode NFC so visually identical names address the same table.
func (s *Store) Table(name string) *Table {
	return &Table{store: s, name: norm.NFC.String(name)}
}

// OpenTransaction runs the open protocol for table and begins a read-write
// transaction on it.
func (s *Store) OpenTransaction(ctx context.Context, table string) (*Transaction, error) {
	return s.begin(ctx, norm.NFC.String(table), engine.ReadWrite)
}

// OpenReadTransaction runs the open protocol for table and begins a
// read-only transaction on it.
func (s *Store) OpenReadTransaction(ctx context.Context, table string) (*Transaction, error) {
	return s.begin(ctx, norm.NFC.String(table), engine.ReadOnly)
}

func (s *Store) begin(ctx context.Context, table string, mode engine.Mode) (*Transaction, error) {
	conn, err := s.open(ctx, table)
	if err != nil {
		return nil, err
	}
	tx, err := conn.Begin(ctx, table, mode)
	if err != nil {
		conn.Close()
		return nil, storageError("begin", table, nil, err)
	}
	return &Transaction{conn: conn, tx: tx, table: table, mode: mode}, nil
}

// open returns a Conn on which table exists, upgrading the database when
// needed. At most maxForcedUpgrades forced version bumps are attempted.
func (s *Store) open(ctx context.Context, table string) (engine.Conn, error) {
	if err := engine.ValidateName("table", table); err != nil {
		return nil, storageError("open", table, nil, err)
	}

	log := s.logger.With("op", s.ids.Generate(), "db", s.name, "table", table)

	var version int64
	for attempt := 0; attempt <= maxForcedUpgrades; attempt++ {
		forced := attempt > 0

		var err error
		version, err = s.probe(ctx, forced)
		if err != nil {
			return nil, storageError("open", table, nil, err)
		}

		conn, err := s.eng.Open(ctx, s.name, version, createTable(table, log))
		if err != nil {
			log.Warn("open failed", "version", version, "forced", forced, "error", err)
			return nil, storageError("open", table, nil, err)
		}

		if conn.HasTable(table) {
			log.Debug("opened", "version", conn.Version(), "forced", forced)
			return conn, nil
		}

		conn.Close()
		log.Info("table missing at current version, forcing upgrade", "version", version)
	}

	log.Error("table still missing after forced upgrade", "version", version)
	return nil, &StorageError{
		Op:    "open",
		Table: table,
		Err:   fmt.Errorf("%w (version %d)", ErrTableMissing, version),
	}
}

// probe adopts the stored version of the database, if any, and bumps the
// working version by exactly one when forced.
func (s *Store) probe(ctx context.Context, forced bool) (int64, error) {
	infos, err := s.eng.Databases(ctx)
	if err != nil {
		return 0, fmt.Errorf("probe version: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, info := range infos {
		if info.Name == s.name {
			s.version = info.Version
			break
		}
	}
	if forced {
		s.version++
	}
	return s.version, nil
}

// createTable returns the upgrade callback creating table when missing.
func createTable(table string, log *slog.Logger) engine.UpgradeFunc {
	return func(ctx context.Context, schema engine.Schema, oldVersion, newVersion int64) error {
		log.Info("schema upgrade", "old_version", oldVersion, "new_version", newVersion)
		if schema.HasTable(table) {
			return nil
		}
		if err := schema.CreateTable(table); err != nil && !errors.Is(err, engine.ErrTableExists) {
			return fmt.Errorf("create table %q: %w", table, err)
		}
		return nil
	}
}

// Info reports the database version and tables without creating anything.
// A database that does not exist yet reports version 0 and no tables.
func (s *Store) Info(ctx context.Context) (Info, error) {
	infos, err := s.eng.Databases(ctx)
	if err != nil {
		return Info{}, storageError("info", "", nil, err)
	}

	info := Info{Name: s.name, Tables: []string{}}
	for _, di := range infos {
		if di.Name == s.name {
			info.Version = di.Version
		}
	}
	if info.Version == 0 {
		return info, nil
	}

	conn, err := s.eng.Open(ctx, s.name, info.Version, nil)
	if err != nil {
		return Info{}, storageError("info", "", nil, err)
	}
	defer conn.Close()
	info.Tables = conn.Tables()
	return info, nil
}

// Close closes the underlying Engine.
func (s *Store) Close() error {
	return s.eng.Close()
}

package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.etcd.io/bbolt"

	"github.com/roach88/tablestore/internal/engine"
)

const (
	fileExt     = ".bolt"
	tablePrefix = "t:"

	// openTimeout bounds the wait for bbolt's file lock.
	openTimeout = 5 * time.Second
)

var (
	metaBucket     = []byte("__meta")
	versionKey     = []byte("version")
	compressionKey = []byte("compression")
)

const compressionZstd = "zstd"

// Option configures an Engine.
type Option func(*Engine)

// WithCompression enables zstd compression of records in databases created
// by this Engine. Existing databases keep the setting they were created with.
func WithCompression(enabled bool) Option {
	return func(e *Engine) {
		e.compress = enabled
	}
}

// Engine stores each database in its own bbolt file under a directory.
// Files are opened lazily and kept open until Close, since bbolt holds an
// exclusive lock per file.
type Engine struct {
	dir      string
	compress bool

	mu     sync.Mutex
	dbs    map[string]*database
	closed bool

	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
}

var _ engine.Engine = (*Engine)(nil)

// database is one open bbolt file.
type database struct {
	name       string
	db         *bbolt.DB
	compressed bool
	e          *Engine
}

// New creates an Engine rooted at dir.
func New(dir string, opts ...Option) *Engine {
	e := &Engine{
		dir: dir,
		dbs: make(map[string]*database),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Available reports whether the data directory can be used.
func (e *Engine) Available() error {
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
		if err := ctx.Err(); err != nil {
			return nil, err
		}
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
		var version int64
		err = db.db.View(func(btx *bbolt.Tx) error {
			version = readVersion(btx)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("list databases: %s: %w", name, err)
		}
		if version == 0 {
			continue
		}
		infos = append(infos, engine.DatabaseInfo{Name: name, Version: version})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Open opens database name at version, running upgrade inside one bbolt
// read-write transaction when version exceeds the stored version.
func (e *Engine) Open(ctx context.Context, name string, version int64, upgrade engine.UpgradeFunc) (engine.Conn, error) {
	if err := engine.ValidateName("database", name); err != nil {
		return nil, err
	}
	if version < 1 {
		return nil, fmt.Errorf("open %q at version %d: %w", name, version, engine.ErrInvalidVersion)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db, err := e.database(name)
	if err != nil {
		return nil, err
	}

	var stored int64
	var tables []string
	err = db.db.View(func(btx *bbolt.Tx) error {
		stored = readVersion(btx)
		tables = listTables(btx)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	if version < stored {
		return nil, fmt.Errorf("open %q at version %d (stored %d): %w", name, version, stored, engine.ErrVersion)
	}
	if version == stored {
		return newConn(db, version, tables), nil
	}

	err = db.db.Update(func(btx *bbolt.Tx) error {
		// Another writer may have moved the version since the View above.
		stored = readVersion(btx)
		if version < stored {
			return fmt.Errorf("open %q at version %d (stored %d): %w", name, version, stored, engine.ErrVersion)
		}
		if version > stored {
			if upgrade != nil {
				s := &schema{btx: btx}
				if err := upgrade(ctx, s, stored, version); err != nil {
					return fmt.Errorf("open %q: upgrade %d -> %d: %w", name, stored, version, err)
				}
			}
			if err := writeVersion(btx, version); err != nil {
				return fmt.Errorf("open %q: %w", name, err)
			}
		}
		tables = listTables(btx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newConn(db, version, tables), nil
}

// Close closes every open file and the compression codec.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for _, db := range e.dbs {
		errs = append(errs, db.db.Close())
	}
	e.dbs = nil
	if e.encoder != nil {
		errs = append(errs, e.encoder.Close())
	}
	if e.decoder != nil {
		e.decoder.Close()
	}
	return errors.Join(errs...)
}

// database returns the open file for name, opening it on first use.
func (e *Engine) database(name string) (*database, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("bolt engine: %w", engine.ErrClosed)
	}
	if db, ok := e.dbs[name]; ok {
		return db, nil
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	path := filepath.Join(e.dir, engine.FileName(name, fileExt))

	bdb, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	db := &database{name: name, db: bdb, e: e}
	err = bdb.Update(func(btx *bbolt.Tx) error {
		meta := btx.Bucket(metaBucket)
		if meta == nil {
			// New file: record the compression choice once.
			var cerr error
			meta, cerr = btx.CreateBucket(metaBucket)
			if cerr != nil {
				return cerr
			}
			if e.compress {
				if err := meta.Put(compressionKey, []byte(compressionZstd)); err != nil {
					return err
				}
			}
		}
		db.compressed = string(meta.Get(compressionKey)) == compressionZstd
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("failed to initialize BoltDB meta: %w", err)
	}

	e.dbs[name] = db
	return db, nil
}

// codecs lazily builds the shared zstd encoder/decoder.
func (e *Engine) codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	e.codecOnce.Do(func() {
		e.encoder, e.codecErr = zstd.NewWriter(nil)
		if e.codecErr != nil {
			return
		}
		e.decoder, e.codecErr = zstd.NewReader(nil)
	})
	return e.encoder, e.decoder, e.codecErr
}

// pack prepares record bytes for storage.
func (d *database) pack(data []byte) ([]byte, error) {
	if !d.compressed {
		return data, nil
	}
	enc, _, err := d.e.codecs()
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return enc.EncodeAll(data, nil), nil
}

// unpack returns a caller-owned copy of stored bytes.
func (d *database) unpack(stored []byte) ([]byte, error) {
	if !d.compressed {
		out := make([]byte, len(stored))
		copy(out, stored)
		return out, nil
	}
	_, dec, err := d.e.codecs()
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	out, err := dec.DecodeAll(stored, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

func readVersion(btx *bbolt.Tx) int64 {
	meta := btx.Bucket(metaBucket)
	if meta == nil {
		return 0
	}
	v := meta.Get(versionKey)
	if len(v) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(v))
}

func writeVersion(btx *bbolt.Tx, version int64) error {
	meta, err := btx.CreateBucketIfNotExists(metaBucket)
	if err != nil {
		return fmt.Errorf("meta bucket: %w", err)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(version))
	if err := meta.Put(versionKey, buf); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	return nil
}

// listTables returns object store names, sorted.
func listTables(btx *bbolt.Tx) []string {
	tables := []string{}
	_ = btx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
		if n, ok := strings.CutPrefix(string(name), tablePrefix); ok {
			tables = append(tables, n)
		}
		return nil
	})
	sort.Strings(tables)
	return tables
}

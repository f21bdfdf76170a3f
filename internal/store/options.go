package store

import (
	"log/slog"

	"github.com/google/uuid"
)

// Option configures a Store.
type Option func(*Store)

// WithName sets the database name. An empty name keeps the default.
func WithName(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator sets the generator for operation ids attached to log
// records. Defaults to UUIDv7Generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Store) {
		if gen != nil {
			s.ids = gen
		}
	}
}

// IDGenerator produces operation ids for log correlation.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 operation ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

package testutil

import (
	"context"
	"sync"

	"github.com/roach88/tablestore/internal/engine"
)

// Upgrade records one invocation of an upgrade callback.
type Upgrade struct {
	Database   string
	OldVersion int64
	NewVersion int64
}

// Engine decorates an engine.Engine with call accounting and fault
// injection. The fault fields must be set before the Engine is shared.
type Engine struct {
	engine.Engine

	// Unavailable, when non-nil, is returned by Available.
	Unavailable error
	// OpenErr, when non-nil, is returned by every Open.
	OpenErr error
	// BeginErr, when non-nil, is returned by Begin on every opened Conn.
	BeginErr error
	// SkipUpgrade replaces upgrade callbacks with no-ops that create
	// nothing. The version still advances.
	SkipUpgrade bool

	mu       sync.Mutex
	opens    []int64
	upgrades []Upgrade
}

// NewEngine wraps inner.
func NewEngine(inner engine.Engine) *Engine {
	return &Engine{Engine: inner}
}

func (e *Engine) Available() error {
	if e.Unavailable != nil {
		return e.Unavailable
	}
	return e.Engine.Available()
}

func (e *Engine) Open(ctx context.Context, name string, version int64, upgrade engine.UpgradeFunc) (engine.Conn, error) {
	e.mu.Lock()
	e.opens = append(e.opens, version)
	e.mu.Unlock()

	if e.OpenErr != nil {
		return nil, e.OpenErr
	}

	var wrapped engine.UpgradeFunc
	if upgrade != nil {
		wrapped = func(ctx context.Context, schema engine.Schema, oldVersion, newVersion int64) error {
			e.mu.Lock()
			e.upgrades = append(e.upgrades, Upgrade{Database: name, OldVersion: oldVersion, NewVersion: newVersion})
			e.mu.Unlock()
			if e.SkipUpgrade {
				return nil
			}
			return upgrade(ctx, schema, oldVersion, newVersion)
		}
	}

	conn, err := e.Engine.Open(ctx, name, version, wrapped)
	if err != nil {
		return nil, err
	}
	if e.BeginErr != nil {
		return &faultConn{Conn: conn, err: e.BeginErr}, nil
	}
	return conn, nil
}

// Opens returns the versions requested by each Open call, in order.
func (e *Engine) Opens() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.opens...)
}

// Upgrades returns every upgrade callback invocation, in order.
func (e *Engine) Upgrades() []Upgrade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Upgrade(nil), e.upgrades...)
}

// Reset clears the recorded calls. Fault fields are left as they are.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opens = nil
	e.upgrades = nil
}

type faultConn struct {
	engine.Conn
	err error
}

func (c *faultConn) Begin(context.Context, string, engine.Mode) (engine.Tx, error) {
	return nil, c.err
}

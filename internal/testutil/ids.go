// Package testutil provides deterministic and instrumented helpers for
// store tests.
package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDGenerator generates operation ids "op-0001", "op-0002", ...
//
// Log output of a scenario run with a fresh SequenceIDGenerator is
// byte-identical across runs, which keeps golden files stable.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequenceIDGenerator struct {
	mu  sync.Mutex
	seq int64
}

// NewSequenceIDGenerator creates a generator whose first id is "op-0001".
func NewSequenceIDGenerator() *SequenceIDGenerator {
	return &SequenceIDGenerator{}
}

// Generate returns the next id in sequence.
func (g *SequenceIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("op-%04d", g.seq)
}

// Count returns how many ids were generated.
func (g *SequenceIDGenerator) Count() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence. The next id is "op-0001" again.
func (g *SequenceIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}

// FixedIDGenerator returns the same id every time.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator returning id.
// If id is empty, Generate returns "op-fixed".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "op-fixed"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}

package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceIDGenerator_Sequence(t *testing.T) {
	gen := NewSequenceIDGenerator()
	assert.Equal(t, int64(0), gen.Count())

	assert.Equal(t, "op-0001", gen.Generate())
	assert.Equal(t, "op-0002", gen.Generate())
	assert.Equal(t, "op-0003", gen.Generate())
	assert.Equal(t, int64(3), gen.Count())
}

func TestSequenceIDGenerator_Reset(t *testing.T) {
	gen := NewSequenceIDGenerator()
	gen.Generate()
	gen.Generate()

	gen.Reset()
	assert.Equal(t, int64(0), gen.Count())
	assert.Equal(t, "op-0001", gen.Generate())
}

func TestSequenceIDGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequenceIDGenerator()
	const numGoroutines = 50
	const callsPerGoroutine = 40

	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Every id is unique
	require.Len(t, seen, numGoroutines*callsPerGoroutine)
	assert.Equal(t, int64(numGoroutines*callsPerGoroutine), gen.Count())
}

func TestFixedIDGenerator(t *testing.T) {
	gen := NewFixedIDGenerator("op-123")
	assert.Equal(t, "op-123", gen.Generate())
	assert.Equal(t, "op-123", gen.Generate())

	assert.Equal(t, "op-fixed", NewFixedIDGenerator("").Generate())
}

package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tablestore/internal/engine"
	"github.com/roach88/tablestore/internal/engine/sqlite"
)

func createTable(name string) engine.UpgradeFunc {
	return func(_ context.Context, s engine.Schema, _, _ int64) error {
		return s.CreateTable(name)
	}
}

func TestEngine_RecordsOpensAndUpgrades(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(sqlite.New(t.TempDir()))
	t.Cleanup(func() { e.Close() })

	conn, err := e.Open(ctx, "db", 1, createTable("users"))
	require.NoError(t, err)
	require.True(t, conn.HasTable("users"))
	require.NoError(t, conn.Close())

	conn, err = e.Open(ctx, "db", 1, createTable("users"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.Equal(t, []int64{1, 1}, e.Opens())
	assert.Equal(t, []Upgrade{{Database: "db", OldVersion: 0, NewVersion: 1}}, e.Upgrades())

	e.Reset()
	assert.Empty(t, e.Opens())
	assert.Empty(t, e.Upgrades())
}

func TestEngine_SkipUpgrade(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(sqlite.New(t.TempDir()))
	e.SkipUpgrade = true
	t.Cleanup(func() { e.Close() })

	conn, err := e.Open(ctx, "db", 1, createTable("users"))
	require.NoError(t, err)
	defer conn.Close()

	// Version advanced, table never created
	assert.Equal(t, int64(1), conn.Version())
	assert.False(t, conn.HasTable("users"))
	assert.Len(t, e.Upgrades(), 1)
}

func TestEngine_Faults(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	e := NewEngine(sqlite.New(t.TempDir()))
	t.Cleanup(func() { e.Close() })

	e.Unavailable = boom
	assert.ErrorIs(t, e.Available(), boom)

	e.Unavailable = nil
	e.BeginErr = boom
	conn, err := e.Open(ctx, "db", 1, createTable("users"))
	require.NoError(t, err)
	_, err = conn.Begin(ctx, "users", engine.ReadOnly)
	assert.ErrorIs(t, err, boom)
	require.NoError(t, conn.Close())

	e.OpenErr = boom
	_, err = e.Open(ctx, "db", 1, nil)
	assert.ErrorIs(t, err, boom)
}

// Package enginetest holds the behavioral contract every engine.Engine
// implementation must satisfy. Implementations call Run from their tests.
package enginetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tablestore/internal/engine"
	"github.com/roach88/tablestore/internal/value"
)

// Factory returns a fresh, empty engine. The test closes it.
type Factory func(t *testing.T) engine.Engine

// Run executes the contract suite against engines produced by newEngine.
func Run(t *testing.T, newEngine Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, e engine.Engine)
	}{
		{"Available", testAvailable},
		{"FreshOpenRunsUpgrade", testFreshOpenRunsUpgrade},
		{"SameVersionSkipsUpgrade", testSameVersionSkipsUpgrade},
		{"LowerVersionFails", testLowerVersionFails},
		{"InvalidVersion", testInvalidVersion},
		{"UpgradeErrorAborts", testUpgradeErrorAborts},
		{"CreateTableTwice", testCreateTableTwice},
		{"Databases", testDatabases},
		{"BeginUnknownTable", testBeginUnknownTable},
		{"BeginClosedConn", testBeginClosedConn},
		{"AddGetPut", testAddGetPut},
		{"AddDuplicate", testAddDuplicate},
		{"ReadOnlyRejectsWrites", testReadOnlyRejectsWrites},
		{"RollbackDiscards", testRollbackDiscards},
		{"SettledTx", testSettledTx},
		{"CursorOrder", testCursorOrder},
		{"CursorEmpty", testCursorEmpty},
		{"TablesIsolated", testTablesIsolated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t)
			t.Cleanup(func() { e.Close() })
			tt.fn(t, e)
		})
	}
}

// createTables returns an UpgradeFunc that creates the named tables when missing.
func createTables(names ...string) engine.UpgradeFunc {
	return func(ctx context.Context, s engine.Schema, oldVersion, newVersion int64) error {
		for _, name := range names {
			if !s.HasTable(name) {
				if err := s.CreateTable(name); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

func openWith(t *testing.T, e engine.Engine, name string, version int64, tables ...string) engine.Conn {
	t.Helper()
	conn, err := e.Open(context.Background(), name, version, createTables(tables...))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testAvailable(t *testing.T, e engine.Engine) {
	assert.NoError(t, e.Available())
}

func testFreshOpenRunsUpgrade(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	var calls int
	var gotOld, gotNew int64

	conn, err := e.Open(ctx, "fresh", 1, func(ctx context.Context, s engine.Schema, oldV, newV int64) error {
		calls++
		gotOld, gotNew = oldV, newV
		assert.False(t, s.HasTable("users"))
		require.NoError(t, s.CreateTable("users"))
		assert.True(t, s.HasTable("users"))
		return nil
	})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(0), gotOld)
	assert.Equal(t, int64(1), gotNew)
	assert.Equal(t, "fresh", conn.Name())
	assert.Equal(t, int64(1), conn.Version())
	assert.True(t, conn.HasTable("users"))
	assert.Equal(t, []string{"users"}, conn.Tables())
}

func testSameVersionSkipsUpgrade(t *testing.T, e engine.Engine) {
	first := openWith(t, e, "db", 1, "users")
	first.Close()

	conn, err := e.Open(context.Background(), "db", 1, func(context.Context, engine.Schema, int64, int64) error {
		t.Error("upgrade must not run at the stored version")
		return nil
	})
	require.NoError(t, err)
	defer conn.Close()
	assert.True(t, conn.HasTable("users"))
}

func testLowerVersionFails(t *testing.T, e engine.Engine) {
	openWith(t, e, "db", 3, "users")

	_, err := e.Open(context.Background(), "db", 2, nil)
	assert.ErrorIs(t, err, engine.ErrVersion)
}

func testInvalidVersion(t *testing.T, e engine.Engine) {
	_, err := e.Open(context.Background(), "db", 0, nil)
	assert.ErrorIs(t, err, engine.ErrInvalidVersion)
}

func testUpgradeErrorAborts(t *testing.T, e engine.Engine) {
	openWith(t, e, "db", 1, "users")

	boom := errors.New("boom")
	_, err := e.Open(context.Background(), "db", 2, func(ctx context.Context, s engine.Schema, _, _ int64) error {
		require.NoError(t, s.CreateTable("orders"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Version and tables are unchanged.
	conn := openWith(t, e, "db", 1)
	assert.Equal(t, []string{"users"}, conn.Tables())

	infos, err := e.Databases(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, int64(1), infos[0].Version)
}

func testCreateTableTwice(t *testing.T, e engine.Engine) {
	_, err := e.Open(context.Background(), "db", 1, func(ctx context.Context, s engine.Schema, _, _ int64) error {
		require.NoError(t, s.CreateTable("users"))
		return s.CreateTable("users")
	})
	assert.ErrorIs(t, err, engine.ErrTableExists)
}

func testDatabases(t *testing.T, e engine.Engine) {
	ctx := context.Background()

	infos, err := e.Databases(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)

	openWith(t, e, "beta", 2, "x")
	openWith(t, e, "alpha", 1, "y")

	infos, err = e.Databases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []engine.DatabaseInfo{
		{Name: "alpha", Version: 1},
		{Name: "beta", Version: 2},
	}, infos)
}

func testBeginUnknownTable(t *testing.T, e engine.Engine) {
	conn := openWith(t, e, "db", 1, "users")

	_, err := conn.Begin(context.Background(), "orders", engine.ReadWrite)
	assert.ErrorIs(t, err, engine.ErrTableNotFound)
}

func testBeginClosedConn(t *testing.T, e engine.Engine) {
	conn := openWith(t, e, "db", 1, "users")
	require.NoError(t, conn.Close())

	_, err := conn.Begin(context.Background(), "users", engine.ReadOnly)
	assert.ErrorIs(t, err, engine.ErrClosed)
}

func testAddGetPut(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	conn := openWith(t, e, "db", 1, "users")

	tx, err := conn.Begin(ctx, "users", engine.ReadWrite)
	require.NoError(t, err)
	assert.Equal(t, "users", tx.Table())
	assert.Equal(t, engine.ReadWrite, tx.Mode())

	_, found, err := tx.Get(ctx, value.String("u1"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, tx.Add(ctx, value.String("u1"), []byte("one")))
	require.NoError(t, tx.Put(ctx, value.String("u1"), []byte("two")))
	require.NoError(t, tx.Put(ctx, value.Int(7), []byte("seven")))
	require.NoError(t, tx.Commit())

	rtx, err := conn.Begin(ctx, "users", engine.ReadOnly)
	require.NoError(t, err)
	defer rtx.Rollback()

	data, found, err := rtx.Get(ctx, value.String("u1"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "two", string(data))

	data, found, err = rtx.Get(ctx, value.Int(7))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "seven", string(data))

	// String "7" and Int 7 are different keys.
	_, found, err = rtx.Get(ctx, value.String("7"))
	require.NoError(t, err)
	assert.False(t, found)
}

func testAddDuplicate(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	conn := openWith(t, e, "db", 1, "users")

	tx, err := conn.Begin(ctx, "users", engine.ReadWrite)
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, tx.Add(ctx, value.Int(1), []byte("a")))
	err = tx.Add(ctx, value.Int(1), []byte("b"))
	assert.ErrorIs(t, err, engine.ErrKeyExists)
}

func testReadOnlyRejectsWrites(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	conn := openWith(t, e, "db", 1, "users")

	tx, err := conn.Begin(ctx, "users", engine.ReadOnly)
	require.NoError(t, err)
	defer tx.Rollback()

	assert.ErrorIs(t, tx.Add(ctx, value.Int(1), []byte("a")), engine.ErrReadOnly)
	assert.ErrorIs(t, tx.Put(ctx, value.Int(1), []byte("a")), engine.ErrReadOnly)
}

func testRollbackDiscards(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	conn := openWith(t, e, "db", 1, "users")

	tx, err := conn.Begin(ctx, "users", engine.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, value.String("k"), []byte("v")))
	require.NoError(t, tx.Rollback())

	rtx, err := conn.Begin(ctx, "users", engine.ReadOnly)
	require.NoError(t, err)
	defer rtx.Rollback()

	_, found, err := rtx.Get(ctx, value.String("k"))
	require.NoError(t, err)
	assert.False(t, found)
}

func testSettledTx(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	conn := openWith(t, e, "db", 1, "users")

	tx, err := conn.Begin(ctx, "users", engine.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.ErrorIs(t, tx.Commit(), engine.ErrTxDone)
	assert.ErrorIs(t, tx.Rollback(), engine.ErrTxDone)
	_, _, err = tx.Get(ctx, value.Int(1))
	assert.ErrorIs(t, err, engine.ErrTxDone)
	assert.ErrorIs(t, tx.Put(ctx, value.Int(1), []byte("x")), engine.ErrTxDone)
}

func testCursorOrder(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	conn := openWith(t, e, "db", 1, "items")

	tx, err := conn.Begin(ctx, "items", engine.ReadWrite)
	require.NoError(t, err)
	keys := []value.Key{
		value.String("b"), value.Int(3), value.String("a"),
		value.Int(1), value.Float(2.5), value.Int(-4), value.Int(2),
	}
	for _, k := range keys {
		require.NoError(t, tx.Put(ctx, k, []byte(value.FormatKey(k))))
	}
	require.NoError(t, tx.Commit())

	rtx, err := conn.Begin(ctx, "items", engine.ReadOnly)
	require.NoError(t, err)
	defer rtx.Rollback()

	cur, err := rtx.Cursor(ctx)
	require.NoError(t, err)
	defer cur.Close()

	var got []value.Key
	var data []string
	for cur.Next() {
		got = append(got, cur.Key())
		data = append(data, string(cur.Data()))
	}
	require.NoError(t, cur.Err())

	assert.Equal(t, []value.Key{
		value.Int(-4), value.Int(1), value.Int(2), value.Float(2.5), value.Int(3),
		value.String("a"), value.String("b"),
	}, got)
	assert.Equal(t, []string{"-4", "1", "2", "2.5", "3", "a", "b"}, data)
}

func testCursorEmpty(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	conn := openWith(t, e, "db", 1, "items")

	tx, err := conn.Begin(ctx, "items", engine.ReadOnly)
	require.NoError(t, err)
	defer tx.Rollback()

	cur, err := tx.Cursor(ctx)
	require.NoError(t, err)
	defer cur.Close()

	assert.False(t, cur.Next())
	assert.NoError(t, cur.Err())
}

func testTablesIsolated(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	conn := openWith(t, e, "db", 1, "a", "b")

	tx, err := conn.Begin(ctx, "a", engine.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, value.Int(1), []byte("in a")))
	require.NoError(t, tx.Commit())

	rtx, err := conn.Begin(ctx, "b", engine.ReadOnly)
	require.NoError(t, err)
	defer rtx.Rollback()

	_, found, err := rtx.Get(ctx, value.Int(1))
	require.NoError(t, err)
	assert.False(t, found)
}

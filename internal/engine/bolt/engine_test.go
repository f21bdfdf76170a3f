package bolt

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/roach88/tablestore/internal/engine"
	"github.com/roach88/tablestore/internal/engine/enginetest"
	"github.com/roach88/tablestore/internal/value"
)

func TestEngineContract(t *testing.T) {
	enginetest.Run(t, func(t *testing.T) engine.Engine {
		return New(t.TempDir())
	})
}

func TestEngineContract_Compressed(t *testing.T) {
	enginetest.Run(t, func(t *testing.T) engine.Engine {
		return New(t.TempDir(), WithCompression(true))
	})
}

func createItems(ctx context.Context, s engine.Schema, _, _ int64) error {
	return s.CreateTable("items")
}

func TestCompression_StoresZstdFrames(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	e := New(dir, WithCompression(true))

	conn, err := e.Open(ctx, "db", 1, createItems)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("abcdefgh"), 512)
	tx, err := conn.Begin(ctx, "items", engine.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, value.Int(1), payload))
	require.NoError(t, tx.Commit())
	require.NoError(t, e.Close())

	// Inspect the raw file: the stored value is smaller than the payload.
	bdb, err := bbolt.Open(filepath.Join(dir, "db.bolt"), 0o600, nil)
	require.NoError(t, err)
	err = bdb.View(func(btx *bbolt.Tx) error {
		k, _ := encodeKey(value.Int(1))
		stored := btx.Bucket(bucketName("items")).Get(k)
		require.NotNil(t, stored)
		assert.Less(t, len(stored), len(payload))
		assert.Equal(t, compressionZstd, string(btx.Bucket(metaBucket).Get(compressionKey)))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bdb.Close())
}

func TestCompression_SettingFollowsDatabase(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e1 := New(dir, WithCompression(true))
	conn, err := e1.Open(ctx, "db", 1, createItems)
	require.NoError(t, err)
	tx, err := conn.Begin(ctx, "items", engine.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, value.String("k"), []byte("hello")))
	require.NoError(t, tx.Commit())
	require.NoError(t, e1.Close())

	// An engine without compression still reads the compressed database.
	e2 := New(dir)
	defer e2.Close()
	conn2, err := e2.Open(ctx, "db", 1, nil)
	require.NoError(t, err)
	rtx, err := conn2.Begin(ctx, "items", engine.ReadOnly)
	require.NoError(t, err)
	defer rtx.Rollback()

	data, found, err := rtx.Get(ctx, value.String("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "hello", string(data))
}

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)
	defer e.Close()

	_, err := e.Open(context.Background(), "Store_db", 1, createItems)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "Store_db.bolt"))
	assert.NoError(t, err)
}

func TestOpen_CancelledContext(t *testing.T) {
	e := New(t.TempDir())
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Open(ctx, "db", 1, createItems)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCursor_StopsOnCancel(t *testing.T) {
	e := New(t.TempDir())
	defer e.Close()
	ctx := context.Background()

	conn, err := e.Open(ctx, "db", 1, createItems)
	require.NoError(t, err)
	tx, err := conn.Begin(ctx, "items", engine.ReadWrite)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, tx.Put(ctx, value.Int(i), []byte("x")))
	}
	require.NoError(t, tx.Commit())

	rtx, err := conn.Begin(ctx, "items", engine.ReadOnly)
	require.NoError(t, err)
	defer rtx.Rollback()

	cctx, cancel := context.WithCancel(ctx)
	cur, err := rtx.Cursor(cctx)
	require.NoError(t, err)

	require.True(t, cur.Next())
	cancel()
	assert.False(t, cur.Next())
	assert.ErrorIs(t, cur.Err(), context.Canceled)
}

func TestReadOnlyCommitReleases(t *testing.T) {
	e := New(t.TempDir())
	defer e.Close()
	ctx := context.Background()

	conn, err := e.Open(ctx, "db", 1, createItems)
	require.NoError(t, err)

	rtx, err := conn.Begin(ctx, "items", engine.ReadOnly)
	require.NoError(t, err)
	assert.NoError(t, rtx.Commit())
}

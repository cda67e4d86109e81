package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/skill-translator/internal/cache"
)

func openStore(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func key(subject, text string) cache.Key {
	return cache.NewKey(subject, "Description", "zh-CN", "onnx-marian", "v1", text)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	k := key("s1", "Unity plugin for VR")

	require.NoError(t, store.Upsert(ctx, cache.ReadyRecord(k, "VR 的 Unity 插件", now, now)))

	got, ok, err := store.TryGet(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, k, got.Key())
	assert.Equal(t, cache.StatusReady, got.Status)
	assert.Equal(t, "VR 的 Unity 插件", got.TranslatedText)
	assert.True(t, now.Equal(got.UpdatedAt))

	_, ok, err = store.TryGet(ctx, key("s1", "other text"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_OverwriteAndBatch(t *testing.T) {
	t.Parallel()

	store := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	ctx := context.Background()
	now := time.Now().UTC()

	failed := key("s1", "first text")
	require.NoError(t, store.Upsert(ctx, cache.FailedRecord(failed, "timeout", now, now)))
	require.NoError(t, store.UpsertMany(ctx, []cache.Record{
		cache.ReadyRecord(failed, "第一", now, now),
		cache.ReadyRecord(key("s2", "second text"), "第二", now, now),
	}))

	got, err := store.GetBatch(ctx, []cache.Key{failed, key("s2", "second text"), key("s3", "absent text")})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, cache.StatusReady, got[failed].Status)
	assert.Empty(t, got[failed].Error)
	assert.Equal(t, "第二", got[key("s2", "second text")].TranslatedText)
}

func TestSQLiteStore_GetBatchChunks(t *testing.T) {
	t.Parallel()

	store := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	ctx := context.Background()
	now := time.Now().UTC()

	records := make([]cache.Record, 0, batchChunkSize+10)
	keys := make([]cache.Key, 0, batchChunkSize+10)
	for i := range batchChunkSize + 10 {
		k := key(fmt.Sprintf("s%d", i), "shared text")
		keys = append(keys, k)
		records = append(records, cache.ReadyRecord(k, "x", now, now))
	}
	require.NoError(t, store.UpsertMany(ctx, records))

	got, err := store.GetBatch(ctx, keys)
	require.NoError(t, err)
	assert.Len(t, got, batchChunkSize+10)
}

func TestSQLiteStore_DeleteAllAndReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	ctx := context.Background()
	now := time.Now().UTC()
	k := key("s1", "persisted text")

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Upsert(ctx, cache.ReadyRecord(k, "持久", now, now)))
	require.NoError(t, first.Close())

	second := openStore(t, path)
	_, ok, err := second.TryGet(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, second.DeleteAll(ctx))
	_, ok, err = second.TryGet(ctx, k)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_DeleteAllRecreatesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.db")
	store := openStore(t, path)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Upsert(ctx, cache.ReadyRecord(key("s0", "before clear"), "清空之前", now, now)))
	_, err := store.db.ExecContext(ctx, `CREATE TABLE marker (id INTEGER)`)
	require.NoError(t, err)

	require.NoError(t, store.DeleteAll(ctx))

	_, err = os.Stat(path)
	require.NoError(t, err)
	var tables int
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'marker'`).Scan(&tables))
	assert.Zero(t, tables)
	var applied int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Positive(t, applied)

	k := key("s1", "after clear")
	require.NoError(t, store.Upsert(ctx, cache.ReadyRecord(k, "清空之后", now, now)))
	got, ok, err := store.TryGet(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "清空之后", got.TranslatedText)
}

func TestSQLiteStore_ClosedStoreErrors(t *testing.T) {
	t.Parallel()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, _, err = store.TryGet(context.Background(), key("s1", "text"))
	require.Error(t, err)
	require.Error(t, store.DeleteAll(context.Background()))
}

func TestSQLiteStore_KeysWithSeparatorsDoNotCollide(t *testing.T) {
	t.Parallel()

	store := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	ctx := context.Background()
	now := time.Now().UTC()

	a := cache.NewKey("a|b", "c", "zh-CN", "e", "v", "same text")
	b := cache.NewKey("a", "b|c", "zh-CN", "e", "v", "same text")
	require.NoError(t, store.UpsertMany(ctx, []cache.Record{
		cache.ReadyRecord(a, "甲", now, now),
		cache.ReadyRecord(b, "乙", now, now),
	}))

	got, err := store.GetBatch(ctx, []cache.Key{a, b})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "甲", got[a].TranslatedText)
	assert.Equal(t, "乙", got[b].TranslatedText)
}

func TestSQLiteStore_RejectsInvalidRecord(t *testing.T) {
	t.Parallel()

	store := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	now := time.Now()
	err := store.Upsert(context.Background(), cache.FailedRecord(key("s1", "abc text"), "", now, now))
	require.ErrorIs(t, err, cache.ErrInvalidRecord)
}

func TestMigrationVersion(t *testing.T) {
	assert.Equal(t, 1, migrationVersion("001_init.sql"))
	assert.Equal(t, 12, migrationVersion("12"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("  ")
	require.Error(t, err)
}

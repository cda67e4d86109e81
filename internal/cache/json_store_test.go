package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (l *recordingLogger) Warn(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func testKey(subject, text string) Key {
	return NewKey(subject, "Description", "zh-CN", "onnx-marian", "v1", text)
}

func TestJSONStore_UpsertPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "translations.json")
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	store := NewJSONStore(path)
	key := testKey("s1", "Unity plugin for VR")
	require.NoError(t, store.Upsert(ctx, ReadyRecord(key, "VR 的 Unity 插件", now, now)))

	_, err := os.Stat(path)
	require.NoError(t, err)

	reopened := NewJSONStore(path)
	got, ok, err := reopened.TryGet(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusReady, got.Status)
	assert.Equal(t, "VR 的 Unity 插件", got.TranslatedText)
	assert.True(t, now.Equal(got.CreatedAt))
}

func TestJSONStore_OverwriteByKey(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "c.json"))
	ctx := context.Background()
	key := testKey("s1", "hello world")
	now := time.Now()

	require.NoError(t, store.Upsert(ctx, FailedRecord(key, "timeout", now, now)))
	require.NoError(t, store.Upsert(ctx, ReadyRecord(key, "你好世界", now, now)))

	got, ok, err := store.TryGet(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusReady, got.Status)
	assert.Empty(t, got.Error)
	assert.Equal(t, 1, store.Len())
}

func TestJSONStore_GetBatchOmitsAbsent(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "c.json"))
	ctx := context.Background()
	now := time.Now()

	present := testKey("s1", "first text")
	absent := testKey("s2", "second text")
	require.NoError(t, store.UpsertMany(ctx, []Record{ReadyRecord(present, "一", now, now)}))

	got, err := store.GetBatch(ctx, []Key{present, absent})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "一", got[present].TranslatedText)
	_, ok := got[absent]
	assert.False(t, ok)
}

func TestJSONStore_LoadsFileOnlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	ctx := context.Background()
	store := NewJSONStore(path)

	_, ok, err := store.TryGet(ctx, testKey("s1", "abc text"))
	require.NoError(t, err)
	require.False(t, ok)

	// written behind the store's back after the first load
	other := NewJSONStore(path)
	now := time.Now()
	require.NoError(t, other.Upsert(ctx, ReadyRecord(testKey("s1", "abc text"), "x", now, now)))

	_, ok, err = store.TryGet(ctx, testKey("s1", "abc text"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJSONStore_CorruptFileIsArchived(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	clock := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	logger := &recordingLogger{}
	store := NewJSONStore(path, WithLogger(logger), WithClock(func() time.Time { return clock }))

	_, ok, err := store.TryGet(context.Background(), testKey("s1", "abc text"))
	require.NoError(t, err)
	assert.False(t, ok)

	backup := path + ".broken_20260304050607"
	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Len(t, logger.warns, 1)
}

func TestJSONStore_DeleteAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	ctx := context.Background()
	store := NewJSONStore(path)
	now := time.Now()
	key := testKey("s1", "abc text")

	require.NoError(t, store.Upsert(ctx, ReadyRecord(key, "x", now, now)))
	require.NoError(t, store.DeleteAll(ctx))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, ok, err := store.TryGet(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting an already empty cache is fine
	require.NoError(t, store.DeleteAll(ctx))
}

func TestJSONStore_WriteFailureKeepsMemoryAuthoritative(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	logger := &recordingLogger{}
	store := NewJSONStore(filepath.Join(blocker, "c.json"), WithLogger(logger))
	ctx := context.Background()
	now := time.Now()
	key := testKey("s1", "abc text")

	require.NoError(t, store.Upsert(ctx, ReadyRecord(key, "x", now, now)))
	got, ok, err := store.TryGet(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", got.TranslatedText)
	assert.NotEmpty(t, logger.errors)
}

func TestJSONStore_RejectsInvalidRecord(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "c.json"))
	now := time.Now()
	bad := FailedRecord(testKey("s1", "abc text"), "", now, now)

	require.ErrorIs(t, store.Upsert(context.Background(), bad), ErrInvalidRecord)
	assert.Equal(t, 0, store.Len())
}

func TestJSONStore_CanceledContext(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "c.json"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.TryGet(ctx, testKey("s1", "abc text"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestJSONStore_ConcurrentUpserts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	store := NewJSONStore(path)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			now := time.Now()
			key := testKey(fmt.Sprintf("s%d", i), "abc text")
			assert.NoError(t, store.Upsert(ctx, ReadyRecord(key, "x", now, now)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, store.Len())
	assert.Equal(t, 20, NewJSONStore(path).Len())
}

func TestJSONStore_KeysWithSeparatorsDoNotCollide(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "c.json"))
	ctx := context.Background()
	now := time.Now()

	first := NewKey("a|b", "c", "zh-CN", "onnx-marian", "v1", "hello world!")
	second := NewKey("a", "b|c", "zh-CN", "onnx-marian", "v1", "hello world!")
	require.NoError(t, store.Upsert(ctx, ReadyRecord(first, "first", now, now)))

	_, ok, err := store.TryGet(ctx, second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Upsert(ctx, ReadyRecord(second, "second", now, now)))
	got, err := store.GetBatch(ctx, []Key{first, second})
	require.NoError(t, err)
	assert.Equal(t, "first", got[first].TranslatedText)
	assert.Equal(t, "second", got[second].TranslatedText)
}

func TestJSONStore_RekeysOlderFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	key := NewKey("a|b", "Description", "zh-CN", "onnx-marian", "v1", "hello world!")
	now := time.Now().UTC().Truncate(time.Second)
	legacy := struct {
		SchemaVersion int               `json:"schema_version"`
		Records       map[string]Record `json:"records"`
	}{
		SchemaVersion: 1,
		Records: map[string]Record{
			"a|b|Description|zh-CN|onnx-marian|v1|" + key.SourceHash: ReadyRecord(key, "你好", now, now),
		},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	record, ok, err := NewJSONStore(path).TryGet(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "你好", record.TranslatedText)
}

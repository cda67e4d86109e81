package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readManualFile(t *testing.T, path string) ManualFile {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var data ManualFile
	require.NoError(t, json.Unmarshal(raw, &data))
	return data
}

func writeManualFile(t *testing.T, path string, data ManualFile) {
	t.Helper()
	raw, err := json.MarshalIndent(data, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
}

func newManualStore(t *testing.T) *ManualStore {
	t.Helper()
	dir := t.TempDir()
	m := NewManualStore(filepath.Join(dir, "nested", ".manual_translations.json"), dir, nil)
	m.now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }
	return m
}

func TestManualStore_SyncCreatesSortedSkeleton(t *testing.T) {
	m := newManualStore(t)
	subjects := []Subject{
		{ID: `D:\Lib\Zeta`, Name: "zeta", Fields: map[string]string{FieldDescription: "Z skill"}},
		{ID: `D:\Lib\Alpha`, Name: "Alpha", Fields: map[string]string{FieldDescription: "A skill", FieldWhenToUse: "Always"}},
		{ID: "nameless", Name: " "},
	}

	got, err := m.SyncAndLoad(context.Background(), subjects)
	require.NoError(t, err)
	assert.Empty(t, got)

	data := readManualFile(t, m.Path())
	assert.Equal(t, 1, data.Version)
	assert.Equal(t, filepath.Dir(filepath.Dir(m.Path())), data.LibraryPath)
	assert.True(t, data.GeneratedAtUtc.Equal(m.now()))
	require.Len(t, data.Skills, 2)
	assert.Equal(t, "Alpha", data.Skills[0].Name)
	assert.Equal(t, "d:/lib/alpha", data.Skills[0].ID)
	assert.Equal(t, `D:\Lib\Alpha`, data.Skills[0].Path)
	assert.Equal(t, ManualField{Source: "Always"}, data.Skills[0].Fields[FieldWhenToUse])
	assert.Equal(t, "zeta", data.Skills[1].Name)
}

func TestManualStore_ReturnsFilledTranslationsAndKeepsThem(t *testing.T) {
	m := newManualStore(t)
	subjects := []Subject{{ID: "lib/fmt", Name: "fmt", Fields: map[string]string{FieldDescription: "Format code"}}}

	_, err := m.SyncAndLoad(context.Background(), subjects)
	require.NoError(t, err)

	data := readManualFile(t, m.Path())
	data.Skills[0].Fields[FieldDescription] = ManualField{Source: "Format code", Translation: "格式化代码"}
	writeManualFile(t, m.Path(), data)
	before, err := os.Stat(m.Path())
	require.NoError(t, err)

	got, err := m.SyncAndLoad(context.Background(), subjects)
	require.NoError(t, err)
	assert.Equal(t, Translations{"lib/fmt": {FieldDescription: "格式化代码"}}, got)

	after, err := os.Stat(m.Path())
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime(), "unchanged library must not rewrite the file")

	// a changed source text is refreshed but the user's translation stays
	subjects[0].Fields[FieldDescription] = "Format all code"
	got, err = m.SyncAndLoad(context.Background(), subjects)
	require.NoError(t, err)
	assert.Equal(t, "格式化代码", got["lib/fmt"][FieldDescription])
	assert.Equal(t, "Format all code", readManualFile(t, m.Path()).Skills[0].Fields[FieldDescription].Source)
}

func TestManualStore_RemovesVanishedSubjects(t *testing.T) {
	m := newManualStore(t)
	_, err := m.SyncAndLoad(context.Background(), []Subject{
		{ID: "a", Name: "a", Fields: map[string]string{}},
		{ID: "b", Name: "b", Fields: map[string]string{}},
	})
	require.NoError(t, err)

	_, err = m.SyncAndLoad(context.Background(), []Subject{{ID: "b", Name: "b"}})
	require.NoError(t, err)

	data := readManualFile(t, m.Path())
	require.Len(t, data.Skills, 1)
	assert.Equal(t, "b", data.Skills[0].Name)
}

func TestManualStore_MatchesRenamedSubjectByID(t *testing.T) {
	m := newManualStore(t)
	_, err := m.SyncAndLoad(context.Background(), []Subject{{ID: "lib/x", Name: "old", Fields: map[string]string{}}})
	require.NoError(t, err)

	_, err = m.SyncAndLoad(context.Background(), []Subject{{ID: "lib/x", Name: "new", Fields: map[string]string{}}})
	require.NoError(t, err)

	data := readManualFile(t, m.Path())
	require.Len(t, data.Skills, 1)
	assert.Equal(t, "new", data.Skills[0].Name)
}

func TestManualStore_ArchivesCorruptFile(t *testing.T) {
	m := newManualStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(m.Path()), 0o755))
	require.NoError(t, os.WriteFile(m.Path(), []byte("{not json"), 0o644))

	_, err := m.SyncAndLoad(context.Background(), []Subject{{ID: "a", Name: "a"}})
	require.NoError(t, err)

	backup := m.Path() + ".broken_20240501080000"
	raw, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(raw))
	assert.Len(t, readManualFile(t, m.Path()).Skills, 1)
}

package termmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilename(t *testing.T) {
	tests := []struct {
		name       string
		sourceLang string
		targetLang string
		expected   string
	}{
		{"simple codes", "en", "zh", "term_map.en-zh.yaml"},
		{"BCP47 tags", "zh-CN", "en-US", "term_map.zh-en.yaml"},
		{"mixed", "en", "zh-CN", "term_map.en-zh.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Filename(tt.sourceLang, tt.targetLang))
		})
	}
}

func TestFindInAncestors(t *testing.T) {
	root := t.TempDir()
	child := filepath.Join(root, "skills", "unity-helper")
	require.NoError(t, os.MkdirAll(child, 0o755))

	legacy := filepath.Join(root, "term_map.en-zh.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{"hello":"world"}`), 0o644))
	assert.Equal(t, legacy, FindInAncestors(child, "en", "zh-CN"))

	closer := filepath.Join(root, "skills", "term_map.en-zh.yaml")
	require.NoError(t, os.WriteFile(closer, []byte("protected: [Unity]\n"), 0o644))
	assert.Equal(t, closer, FindInAncestors(child, "en", "zh-CN"))

	assert.Empty(t, FindInAncestors(child, "en", "ja"))
}

func TestLoad_StructuredYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glossary.yaml")
	content := "protected:\n  - Unity\n  - VR\nmapped:\n  skill folder: 技能文件夹\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	g, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Unity", "VR"}, g.Protected)
	assert.Equal(t, TermMap{"skill folder": "技能文件夹"}, g.Mapped)
}

func TestLoad_FlatJSONIsMappedPhrases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "term_map.en-zh.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Momo Ayase": "绫濑桃"}`), 0o644))

	g, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, g.Protected)
	assert.Equal(t, TermMap{"Momo Ayase": "绫濑桃"}, g.Mapped)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "glossary.yaml")
	in := Glossary{Protected: []string{"Unity"}, Mapped: TermMap{"pull request": "拉取请求"}}
	require.NoError(t, Save(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

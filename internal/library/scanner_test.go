package library

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/skill-translator/internal/service"
)

func writeSkill(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, SkillFile), []byte(content), 0o644))
}

func TestScanner_DiscoversSkills(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, filepath.Join(root, "formatter"), "---\nname: formatter\ndescription: Format source files\nwhen_to_use: Before committing\n---\n# Formatter\n")
	writeSkill(t, filepath.Join(root, "group", "Linter"), "# Linter\n\nRuns the linters.\n")
	writeSkill(t, filepath.Join(root, "formatter", "nested"), "ignored: parent is already a skill\n")
	writeSkill(t, filepath.Join(root, ".hidden", "secret"), "hidden\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	lib, err := NewScanner([]string{root, filepath.Join(root, "missing")}).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, lib.Skills, 2)

	assert.Equal(t, "formatter", lib.Skills[0].Name)
	assert.Equal(t, "Format source files", lib.Skills[0].Description)
	assert.Equal(t, "Before committing", lib.Skills[0].WhenToUse)
	assert.Equal(t, filepath.Join(root, "formatter"), lib.Skills[0].Path)

	assert.Equal(t, "Linter", lib.Skills[1].Name)
	assert.Equal(t, "# Linter", lib.Skills[1].Description)
	assert.Empty(t, lib.Skills[1].WhenToUse)
}

func TestScanner_DuplicateNamesKeepFirst(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	writeSkill(t, filepath.Join(a, "tool"), "---\ndescription: from a\n---\n")
	writeSkill(t, filepath.Join(b, "Tool"), "---\ndescription: from b\n---\n")

	lib, err := NewScanner([]string{a, b}).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, lib.Skills, 1)
	assert.Equal(t, "from a", lib.Skills[0].Description)
}

func TestScanner_CachesWithinTTL(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, filepath.Join(root, "one"), "first skill\n")
	s := NewScanner([]string{root}, WithCacheTTL(time.Hour))

	lib, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, lib.Skills, 1)

	writeSkill(t, filepath.Join(root, "two"), "second skill\n")
	lib, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, lib.Skills, 1)

	s.Invalidate()
	lib, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, lib.Skills, 2)
}

func TestScanner_Subjects(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, filepath.Join(root, "fmt"), "---\ndescription: Format code\nwhen_to_use: On save\n---\n")

	subjects, err := NewScanner([]string{root}).Subjects(context.Background())
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, service.Subject{
		ID:   filepath.Join(root, "fmt"),
		Name: "fmt",
		Fields: map[string]string{
			service.FieldDescription: "Format code",
			service.FieldWhenToUse:   "On save",
		},
	}, subjects[0])
}

func TestScanner_CanceledContext(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, filepath.Join(root, "one"), "x\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScanner([]string{root}).Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseFrontmatter(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantOK   bool
		wantDesc string
		wantRest string
	}{
		{name: "plain", content: "---\ndescription: hi\n---\nbody\n", wantOK: true, wantDesc: "hi", wantRest: "body\n"},
		{name: "crlf and bom", content: "\ufeff---\r\ndescription: hi\r\n---\r\nbody", wantOK: true, wantDesc: "hi", wantRest: "body"},
		{name: "no frontmatter", content: "# Title\n", wantOK: false},
		{name: "unterminated", content: "---\ndescription: hi\n", wantOK: false},
		{name: "invalid yaml", content: "---\ndescription: [unclosed\n---\n", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, rest, ok := parseFrontmatter([]byte(tt.content))
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantDesc, fm.Description)
				assert.Equal(t, tt.wantRest, rest)
			}
		})
	}
}

func TestFirstLineTruncates(t *testing.T) {
	long := strings.Repeat("é", 150)
	assert.Equal(t, strings.Repeat("é", 100), firstLine("\n\n"+long+"\nnext"))
	assert.Equal(t, "text", firstLine("---\n  text  \n"))
	assert.Empty(t, firstLine(" \n"))
}

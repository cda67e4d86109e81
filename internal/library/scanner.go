package library

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/skill-translator/internal/service"
)

const (
	SkillFile = "SKILL.md"

	maxFallbackDescription = 100
)

type scannerOptions struct {
	cacheTTL time.Duration
}

type Option func(*scannerOptions)

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *scannerOptions) {
		o.cacheTTL = ttl
	}
}

type scanCache struct {
	scanned time.Time
	library *Library
}

// Scanner discovers skill folders under a set of roots. Results are cached
// for a short TTL so repeated API calls do not rewalk the tree.
type Scanner struct {
	roots []string

	mu       sync.RWMutex
	cacheTTL time.Duration
	cache    *scanCache
}

func NewScanner(roots []string, opts ...Option) *Scanner {
	options := scannerOptions{cacheTTL: 5 * time.Second}
	for _, opt := range opts {
		opt(&options)
	}
	return &Scanner{
		roots:    append([]string(nil), roots...),
		cacheTTL: options.cacheTTL,
	}
}

func (s *Scanner) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// Subjects scans and returns pipeline subjects; it satisfies
// service.SubjectSource.
func (s *Scanner) Subjects(ctx context.Context) ([]service.Subject, error) {
	lib, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return lib.Subjects(), nil
}

// Scan walks every root. A directory holding SKILL.md is a skill and is not
// descended into. When two skills share a folder name the first one found
// wins. Hidden directories are skipped and missing roots are ignored.
func (s *Scanner) Scan(ctx context.Context) (*Library, error) {
	s.mu.RLock()
	if s.cache != nil && (s.cacheTTL <= 0 || time.Since(s.cache.scanned) < s.cacheTTL) {
		cached := cloneLibrary(s.cache.library)
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	ret := &Library{Roots: append([]string(nil), s.roots...), Skills: make([]Skill, 0)}
	seen := make(map[string]bool)

	for _, root := range s.roots {
		if root == "" {
			continue
		}
		if _, err := os.Stat(root); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrPermission) {
					return fs.SkipDir
				}
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}

			skillPath := filepath.Join(path, SkillFile)
			info, err := os.Stat(skillPath)
			if err != nil || info.IsDir() {
				return nil
			}

			name := d.Name()
			if !seen[strings.ToLower(name)] {
				seen[strings.ToLower(name)] = true
				skill, err := readSkill(path, skillPath)
				if err != nil {
					return err
				}
				skill.ModifiedAt = info.ModTime()
				ret.Skills = append(ret.Skills, skill)
			}
			return fs.SkipDir
		})
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(ret.Skills, func(i, j int) bool {
		return strings.ToLower(ret.Skills[i].Name) < strings.ToLower(ret.Skills[j].Name)
	})

	s.mu.Lock()
	s.cache = &scanCache{scanned: time.Now(), library: cloneLibrary(ret)}
	s.mu.Unlock()

	return ret, nil
}

type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	WhenToUse   string `yaml:"when_to_use"`
}

func readSkill(dir, skillPath string) (Skill, error) {
	content, err := os.ReadFile(skillPath)
	if err != nil {
		return Skill{}, err
	}
	skill := Skill{Name: filepath.Base(dir), Path: dir}

	body := string(content)
	if fm, rest, ok := parseFrontmatter(content); ok {
		skill.Description = strings.TrimSpace(fm.Description)
		skill.WhenToUse = strings.TrimSpace(fm.WhenToUse)
		body = rest
	}
	if skill.Description == "" {
		skill.Description = firstLine(body)
	}
	return skill, nil
}

// parseFrontmatter decodes a leading "---" delimited YAML block and returns
// the markdown that follows it.
func parseFrontmatter(content []byte) (frontmatter, string, bool) {
	var fm frontmatter
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	text = strings.TrimPrefix(text, "\ufeff")
	if !strings.HasPrefix(text, "---\n") {
		return fm, "", false
	}
	body := text[len("---\n"):]
	end := strings.Index(body, "\n---")
	if end < 0 {
		return fm, "", false
	}
	if err := yaml.Unmarshal([]byte(body[:end]), &fm); err != nil {
		return fm, "", false
	}
	rest := body[end+len("\n---"):]
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[i+1:]
	} else {
		rest = ""
	}
	return fm, rest, true
}

// firstLine returns the first non-blank line outside the frontmatter
// markers, cut to a short summary.
func firstLine(content string) string {
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "---") {
			continue
		}
		runes := []rune(line)
		if len(runes) > maxFallbackDescription {
			runes = runes[:maxFallbackDescription]
		}
		return string(runes)
	}
	return ""
}

func cloneLibrary(src *Library) *Library {
	if src == nil {
		return nil
	}
	return &Library{
		Roots:  append([]string(nil), src.Roots...),
		Skills: append([]Skill(nil), src.Skills...),
	}
}

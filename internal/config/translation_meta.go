package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TranslationMetaFilename is the per-library override file.
const TranslationMetaFilename = ".translation_meta.json"

// TranslationMeta overrides translation settings for one library. Nil fields
// keep the environment value.
type TranslationMeta struct {
	DisableTranslation bool   `json:"DisableTranslation"`
	MaxConcurrency     *int   `json:"MaxConcurrency,omitempty"`
	MaxLength          *int   `json:"MaxLength,omitempty"`
	EngineVersion      string `json:"EngineVersion,omitempty"`
}

func TranslationMetaPath(libraryDir string) string {
	return filepath.Join(libraryDir, TranslationMetaFilename)
}

// LoadTranslationMeta reads the override file. A missing file yields
// (zero value, false, nil).
func LoadTranslationMeta(path string) (TranslationMeta, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TranslationMeta{}, false, nil
		}
		return TranslationMeta{}, false, err
	}
	var meta TranslationMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return TranslationMeta{}, false, fmt.Errorf("invalid translation meta file: %w", err)
	}
	return meta, true, nil
}

func (m TranslationMeta) Validate() error {
	if m.MaxConcurrency != nil && *m.MaxConcurrency <= 0 {
		return fmt.Errorf("MaxConcurrency must be positive")
	}
	if m.MaxLength != nil && *m.MaxLength <= 0 {
		return fmt.Errorf("MaxLength must be positive")
	}
	return nil
}

// Apply copies the overrides into t.
func (m TranslationMeta) Apply(t *TranslationConfig) {
	t.Enabled = !m.DisableTranslation
	if m.MaxConcurrency != nil {
		t.MaxConcurrency = *m.MaxConcurrency
	}
	if m.MaxLength != nil {
		t.MaxLength = *m.MaxLength
	}
	if v := strings.TrimSpace(m.EngineVersion); v != "" {
		t.EngineVersion = v
	}
}

func WithTranslationMeta(meta TranslationMeta) Option {
	return func(c *Config) {
		meta.Apply(&c.Translation)
	}
}

// WriteTranslationMeta writes the file through a temp file and a rename.
func WriteTranslationMeta(path string, meta TranslationMeta) error {
	if err := meta.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

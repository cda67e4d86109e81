package termmap

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Filename returns the glossary filename for the given source and target languages.
// Uses 2-letter language base codes (e.g., "en", "zh").
func Filename(sourceLang, targetLang string) string {
	return "term_map." + normalizeLanguageCode(sourceLang) + "-" + normalizeLanguageCode(targetLang) + ".yaml"
}

// FilePath returns the full path to the glossary file in the given directory.
func FilePath(dir, sourceLang, targetLang string) string {
	return filepath.Join(dir, Filename(sourceLang, targetLang))
}

// FindInAncestors walks up from startDir looking for a glossary file, YAML
// first and then the legacy JSON name. Returns the first found path or "".
func FindInAncestors(startDir, sourceLang, targetLang string) string {
	yamlName := Filename(sourceLang, targetLang)
	jsonName := yamlName[:len(yamlName)-len(".yaml")] + ".json"
	currentDir := startDir

	for {
		for _, name := range []string{yamlName, jsonName} {
			candidate := filepath.Join(currentDir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}

	return ""
}

// Load reads a glossary file. YAML and JSON are both accepted; a flat
// {"source": "target"} document is read as mapped phrases only.
func Load(path string) (Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Glossary{}, err
	}

	var g Glossary
	structuredErr := yaml.Unmarshal(data, &g)
	if structuredErr == nil && !g.IsEmpty() {
		return g, nil
	}

	var flat TermMap
	if err := yaml.Unmarshal(data, &flat); err == nil {
		return Glossary{Mapped: flat}, nil
	}
	if structuredErr == nil {
		return g, nil
	}
	return Glossary{}, fmt.Errorf("parse glossary %s: %w", path, structuredErr)
}

// Save writes a glossary as YAML.
func Save(path string, g Glossary) error {
	data, err := yaml.Marshal(g)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// normalizeLanguageCode parses a language string and returns its 2-letter base code.
func normalizeLanguageCode(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	base, _ := tag.Base()
	return base.String()
}

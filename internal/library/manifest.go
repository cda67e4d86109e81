package library

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/skill-translator/internal/service"
)

// Manifest lists subjects explicitly, for text that does not live in skill
// folders.
type Manifest struct {
	Subjects []service.Subject `yaml:"subjects"`
}

// LoadManifest reads a YAML subject manifest. Subjects without an id are
// rejected; a missing name defaults to the id.
func LoadManifest(path string) ([]service.Subject, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	for i := range m.Subjects {
		s := &m.Subjects[i]
		if strings.TrimSpace(s.ID) == "" {
			return nil, fmt.Errorf("manifest %s: subject %d has no id", path, i+1)
		}
		if s.Name == "" {
			s.Name = s.ID
		}
	}
	return m.Subjects, nil
}

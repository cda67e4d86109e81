package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/skill-translator/pkg/log"
)

const manualFileVersion = 1

// ManualFile is the hand-editable overrides document. Users fill in
// Translation; Source is refreshed from the library on every sync.
type ManualFile struct {
	Version        int           `json:"Version"`
	GeneratedAtUtc time.Time     `json:"GeneratedAtUtc"`
	LibraryPath    string        `json:"LibraryPath"`
	Skills         []ManualEntry `json:"Skills"`
}

type ManualEntry struct {
	ID     string                 `json:"Id"`
	Name   string                 `json:"Name"`
	Path   string                 `json:"Path"`
	Fields map[string]ManualField `json:"Fields"`
}

type ManualField struct {
	Source      string `json:"Source"`
	Translation string `json:"Translation"`
}

// ManualStore keeps the overrides file in step with the library and serves
// the translations users wrote by hand.
type ManualStore struct {
	path        string
	libraryPath string
	logger      Logger
	now         func() time.Time

	mu sync.Mutex
}

func NewManualStore(path, libraryPath string, logger Logger) *ManualStore {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &ManualStore{path: path, libraryPath: libraryPath, logger: logger, now: time.Now}
}

func (m *ManualStore) Path() string {
	return m.path
}

// SyncAndLoad merges subjects into the file, saving it when anything
// changed, and returns the non-empty manual translations for subjects.
func (m *ManualStore) SyncAndLoad(ctx context.Context, subjects []Subject) (Translations, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	active := make([]Subject, 0, len(subjects))
	for _, s := range subjects {
		if strings.TrimSpace(s.Name) != "" {
			active = append(active, s)
		}
	}

	data := m.load()
	if m.merge(&data, active) {
		if err := m.save(data); err != nil {
			return nil, err
		}
	}
	return buildManualMap(data, active), nil
}

func (m *ManualStore) load() ManualFile {
	empty := ManualFile{Version: manualFileVersion, LibraryPath: m.libraryPath}

	raw, err := os.ReadFile(m.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("Failed to read manual translations %s: %v", m.path, err)
		}
		return empty
	}

	var data ManualFile
	if err := json.Unmarshal(raw, &data); err != nil {
		backup := fmt.Sprintf("%s.broken_%s", m.path, m.now().UTC().Format("20060102150405"))
		if renameErr := os.Rename(m.path, backup); renameErr != nil {
			m.logger.Error("Failed to archive corrupt manual translations %s: %v", m.path, renameErr)
		} else {
			m.logger.Warn("Manual translations %s were corrupt, archived to %s", m.path, backup)
		}
		return empty
	}
	if data.Version == 0 {
		data.Version = manualFileVersion
	}
	return data
}

func (m *ManualStore) save(data ManualFile) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", m.path, err)
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manual translations: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write manual translations: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace manual translations: %w", err)
	}
	return nil
}

func findEntry(data *ManualFile, s Subject) *ManualEntry {
	id := s.NormalizedID()
	if id != "" {
		for i := range data.Skills {
			if strings.EqualFold(data.Skills[i].ID, id) {
				return &data.Skills[i]
			}
		}
	}
	for i := range data.Skills {
		if strings.EqualFold(data.Skills[i].Name, s.Name) {
			return &data.Skills[i]
		}
	}
	return nil
}

func (m *ManualStore) merge(data *ManualFile, subjects []Subject) bool {
	updated := false
	if data.LibraryPath != m.libraryPath {
		data.LibraryPath = m.libraryPath
		updated = true
	}

	activeNames := make(map[string]struct{}, len(subjects))
	for _, s := range subjects {
		activeNames[strings.ToLower(s.Name)] = struct{}{}

		entry := findEntry(data, s)
		if entry == nil {
			fields := make(map[string]ManualField, len(s.Fields))
			for field, text := range s.Fields {
				fields[field] = ManualField{Source: text}
			}
			data.Skills = append(data.Skills, ManualEntry{
				ID:     s.NormalizedID(),
				Name:   s.Name,
				Path:   s.ID,
				Fields: fields,
			})
			updated = true
			continue
		}

		if entry.ID != s.NormalizedID() {
			entry.ID = s.NormalizedID()
			updated = true
		}
		if entry.Name != s.Name {
			entry.Name = s.Name
			updated = true
		}
		if entry.Path != s.ID {
			entry.Path = s.ID
			updated = true
		}
		if entry.Fields == nil {
			entry.Fields = make(map[string]ManualField)
		}
		for field, text := range s.Fields {
			f := entry.Fields[field]
			if _, ok := entry.Fields[field]; !ok || f.Source != text {
				f.Source = text
				entry.Fields[field] = f
				updated = true
			}
		}
	}

	kept := data.Skills[:0]
	for _, entry := range data.Skills {
		if _, ok := activeNames[strings.ToLower(entry.Name)]; ok {
			kept = append(kept, entry)
		}
	}
	if len(kept) != len(data.Skills) {
		updated = true
	}
	data.Skills = kept

	if !sort.SliceIsSorted(data.Skills, func(i, j int) bool {
		return strings.ToLower(data.Skills[i].Name) < strings.ToLower(data.Skills[j].Name)
	}) {
		sort.SliceStable(data.Skills, func(i, j int) bool {
			return strings.ToLower(data.Skills[i].Name) < strings.ToLower(data.Skills[j].Name)
		})
		updated = true
	}

	if updated {
		data.GeneratedAtUtc = m.now().UTC()
	}
	return updated
}

func buildManualMap(data ManualFile, subjects []Subject) Translations {
	result := make(Translations)
	for _, s := range subjects {
		id := s.NormalizedID()
		if id == "" {
			continue
		}
		entry := findEntry(&data, s)
		if entry == nil {
			continue
		}
		for field, f := range entry.Fields {
			if strings.TrimSpace(f.Translation) != "" {
				result.set(id, field, f.Translation)
			}
		}
	}
	return result
}

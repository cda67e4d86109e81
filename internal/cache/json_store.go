package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MimeLyc/skill-translator/pkg/log"
)

// JSONStore keeps every record in memory and mirrors them to a single JSON
// file. The file is read once, lazily; afterwards memory is the source of truth.
type JSONStore struct {
	path   string
	logger Logger
	now    func() time.Time

	mu     sync.Mutex
	loaded bool
	file   File
}

type Option func(*JSONStore)

func WithLogger(logger Logger) Option {
	return func(s *JSONStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *JSONStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewJSONStore(path string, opts ...Option) *JSONStore {
	s := &JSONStore{
		path:   path,
		logger: log.NewNopLogger(),
		now:    time.Now,
		file:   newFile(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *JSONStore) Path() string {
	return s.path
}

func (s *JSONStore) TryGet(ctx context.Context, key Key) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	record, ok := s.file.Records[key.String()]
	return record, ok, nil
}

func (s *JSONStore) GetBatch(ctx context.Context, keys []Key) (map[Key]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	ret := make(map[Key]Record, len(keys))
	for _, key := range keys {
		if record, ok := s.file.Records[key.String()]; ok {
			ret[key] = record
		}
	}
	return ret, nil
}

func (s *JSONStore) Upsert(ctx context.Context, record Record) error {
	return s.UpsertMany(ctx, []Record{record})
}

// UpsertMany overwrites by key and rewrites the file before returning. A
// failed write is logged; the in-memory state still reflects the upsert.
func (s *JSONStore) UpsertMany(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, record := range records {
		if err := record.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	for _, record := range records {
		s.file.Records[record.Key().String()] = record
	}
	if err := s.saveLocked(); err != nil {
		s.logger.Error("Failed to write translation cache %s: %v", s.path, err)
	}
	return nil
}

// DeleteAll drops every record and removes the backing file.
func (s *JSONStore) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.file = newFile()
	s.loaded = true
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

// Len reports the number of records held in memory.
func (s *JSONStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()
	return len(s.file.Records)
}

func (s *JSONStore) ensureLoadedLocked() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.file = newFile()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to read translation cache %s, starting empty: %v", s.path, err)
		}
		return
	}

	var loaded File
	if err := json.Unmarshal(data, &loaded); err != nil {
		backup := fmt.Sprintf("%s.broken_%s", s.path, s.now().UTC().Format("20060102150405"))
		if renameErr := os.Rename(s.path, backup); renameErr != nil {
			s.logger.Error("Failed to archive corrupt translation cache %s: %v", s.path, renameErr)
		} else {
			s.logger.Warn("Translation cache %s is corrupt (%v), archived to %s", s.path, err, backup)
		}
		return
	}
	if loaded.SchemaVersion > SchemaVersion {
		s.logger.Warn("Translation cache %s has schema version %d, newer than %d", s.path, loaded.SchemaVersion, SchemaVersion)
	}
	// Re-derive map keys from the records so files written with an older key
	// encoding are read under the current one.
	for _, record := range loaded.Records {
		s.file.Records[record.Key().String()] = record
	}
}

func (s *JSONStore) saveLocked() error {
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.Marshal(s.file)
	if err != nil {
		return err
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

func newFile() File {
	return File{
		SchemaVersion: SchemaVersion,
		Records:       make(map[string]Record),
	}
}

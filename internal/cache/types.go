package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the terminal outcome stored for a key.
type Status string

const (
	StatusReady  Status = "ready"
	StatusFailed Status = "failed"
)

// Key is the sole cache identity. Any change to the source text, target
// language or engine produces a different key.
type Key struct {
	SubjectID     string
	Field         string
	TargetLang    string
	EngineID      string
	EngineVersion string
	SourceHash    string
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`)

// String is the canonical form used as the map key in the cache file. The
// components are joined by "|"; backslashes and pipes inside a component are
// backslash-escaped so distinct keys never share a string.
func (k Key) String() string {
	parts := []string{k.SubjectID, k.Field, k.TargetLang, k.EngineID, k.EngineVersion, k.SourceHash}
	for i, part := range parts {
		parts[i] = keyEscaper.Replace(part)
	}
	return strings.Join(parts, "|")
}

// NewKey builds a key for sourceText, hashing it and normalizing subjectID.
func NewKey(subjectID, field, targetLang, engineID, engineVersion, sourceText string) Key {
	return Key{
		SubjectID:     NormalizeSubjectID(subjectID),
		Field:         field,
		TargetLang:    targetLang,
		EngineID:      engineID,
		EngineVersion: engineVersion,
		SourceHash:    HashSource(sourceText),
	}
}

// HashSource is the uppercase hex SHA-256 of the trimmed, LF-normalized text.
func HashSource(text string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	sum := sha256.Sum256([]byte(normalized))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// NormalizeSubjectID makes path-derived ids stable across platforms.
func NormalizeSubjectID(id string) string {
	if strings.TrimSpace(id) == "" {
		return ""
	}
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(id), `\`, "/"))
}

type Record struct {
	SubjectID      string    `json:"subject_id"`
	Field          string    `json:"field"`
	TargetLang     string    `json:"target_lang"`
	EngineID       string    `json:"engine_id"`
	EngineVersion  string    `json:"engine_version"`
	SourceHash     string    `json:"source_hash"`
	TranslatedText string    `json:"translated_text"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Status         Status    `json:"status"`
	Error          string    `json:"error,omitempty"`
}

func (r Record) Key() Key {
	return Key{
		SubjectID:     r.SubjectID,
		Field:         r.Field,
		TargetLang:    r.TargetLang,
		EngineID:      r.EngineID,
		EngineVersion: r.EngineVersion,
		SourceHash:    r.SourceHash,
	}
}

func ReadyRecord(key Key, text string, createdAt, updatedAt time.Time) Record {
	r := recordFor(key, createdAt, updatedAt)
	r.Status = StatusReady
	r.TranslatedText = text
	return r
}

func FailedRecord(key Key, errMsg string, createdAt, updatedAt time.Time) Record {
	r := recordFor(key, createdAt, updatedAt)
	r.Status = StatusFailed
	r.Error = errMsg
	return r
}

func recordFor(key Key, createdAt, updatedAt time.Time) Record {
	return Record{
		SubjectID:     key.SubjectID,
		Field:         key.Field,
		TargetLang:    key.TargetLang,
		EngineID:      key.EngineID,
		EngineVersion: key.EngineVersion,
		SourceHash:    key.SourceHash,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
}

var ErrInvalidRecord = errors.New("invalid cache record")

// Validate enforces the record invariants: a ready record has text unless
// its source was empty, and a failed record has no text and a non-empty error.
func (r Record) Validate() error {
	switch r.Status {
	case StatusReady:
		if strings.TrimSpace(r.TranslatedText) == "" && r.SourceHash != HashSource("") {
			return fmt.Errorf("%w: ready record without text", ErrInvalidRecord)
		}
	case StatusFailed:
		if r.TranslatedText != "" {
			return fmt.Errorf("%w: failed record carries text", ErrInvalidRecord)
		}
		if strings.TrimSpace(r.Error) == "" {
			return fmt.Errorf("%w: failed record without error", ErrInvalidRecord)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, r.Status)
	}
	if r.SourceHash == "" {
		return fmt.Errorf("%w: missing source hash", ErrInvalidRecord)
	}
	return nil
}

// SchemaVersion of the cache file written by this package. Version 2
// escapes pipes and backslashes inside key components.
const SchemaVersion = 2

// File is the on-disk cache document.
type File struct {
	SchemaVersion int               `json:"schema_version"`
	Records       map[string]Record `json:"records"`
}

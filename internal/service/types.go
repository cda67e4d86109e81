package service

import (
	"time"

	"github.com/MimeLyc/skill-translator/internal/cache"
)

// Field names carried by skill subjects.
const (
	FieldWhenToUse   = "WhenToUse"
	FieldDescription = "Description"
)

// Subject is one entity whose text fields are candidates for translation.
// ID is usually the subject's folder path and is normalized before use.
type Subject struct {
	ID     string            `json:"id" yaml:"id"`
	Name   string            `json:"name" yaml:"name"`
	Fields map[string]string `json:"fields" yaml:"fields"`
}

// NormalizedID is the id used in cache keys and result maps.
func (s Subject) NormalizedID() string {
	return cache.NormalizeSubjectID(s.ID)
}

// Translations maps a normalized subject id to its translated fields.
type Translations map[string]map[string]string

func (t Translations) set(subjectID, field, text string) {
	fields, ok := t[subjectID]
	if !ok {
		fields = make(map[string]string)
		t[subjectID] = fields
	}
	fields[field] = text
}

type EventType string

const (
	EventQueued    EventType = "queued"
	EventCompleted EventType = "completed"
)

// Event is a best-effort lifecycle notification. Queued fires when a job is
// enqueued; Completed fires after the job's terminal cache write.
type Event struct {
	Type      EventType `json:"type"`
	SubjectID string    `json:"subject_id"`
	Field     string    `json:"field"`
	Success   bool      `json:"success,omitempty"`
	Text      string    `json:"text,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Progress is reported by batch pre-translation after each terminal job.
type Progress struct {
	Total          int    `json:"total"`
	Completed      int    `json:"completed"`
	Failed         int    `json:"failed"`
	CurrentSubject string `json:"current_subject,omitempty"`
	CurrentField   string `json:"current_field,omitempty"`
}

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

package jobs

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusReady    Status = "ready"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed || s == StatusCanceled
}

var (
	// ErrCanceled marks an executor result as a cancellation rather than a failure.
	ErrCanceled     = errors.New("job canceled")
	ErrQueueStopped = errors.New("queue stopped")
)

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
	// Context is the caller's cancellation scope for this job. Nil means none.
	Context context.Context
}

type JobPayload struct {
	SubjectID   string `json:"subject_id"`
	DisplayName string `json:"display_name"`
	Field       string `json:"field"`
	SourceText  string `json:"source_text"`
	SourceHash  string `json:"source_hash"`
}

type TranslationJob struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	DedupeKey string     `json:"dedupe_key"`
	Payload   JobPayload `json:"payload"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

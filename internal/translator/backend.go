package translator

import (
	"context"
	"fmt"
	"strings"

	"github.com/MimeLyc/skill-translator/internal/config"
)

// Options tunes a single translation call.
type Options struct {
	MaxLength int
}

// Backend turns source text into target-language text. Implementations must
// be safe for concurrent use and must honor ctx cancellation.
type Backend interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string, opts Options) (string, error)
}

// BackendFunc adapts a plain function to Backend.
type BackendFunc func(ctx context.Context, text, sourceLang, targetLang string, opts Options) (string, error)

func (f BackendFunc) Translate(ctx context.Context, text, sourceLang, targetLang string, opts Options) (string, error) {
	return f(ctx, text, sourceLang, targetLang, opts)
}

// Status describes backend health as reported to operators.
type Status struct {
	Kind      string         `json:"kind"`
	Available bool           `json:"available"`
	Breaker   string         `json:"breaker,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// StatusReporter is implemented by backends that can probe their service.
type StatusReporter interface {
	Status(ctx context.Context) Status
}

// Error is returned when the backend service answers but refuses or fails
// the translation.
type Error struct {
	Backend    string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s backend: status %d: %s", e.Backend, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s backend: %s", e.Backend, e.Message)
}

// New builds the backend selected by cfg, wrapped in a circuit breaker when
// cfg.Breaker is set.
func New(cfg config.BackendConfig) (Backend, error) {
	var backend Backend
	switch strings.ToLower(cfg.Kind) {
	case config.BackendRemote:
		backend = NewRemoteBackend(cfg.URL, cfg.Timeout)
	case config.BackendAgent:
		backend = NewAgentBackend(cfg.URL, cfg.Timeout)
	case config.BackendOpenAI:
		b, err := NewOpenAIBackend(cfg.APIKey, cfg.URL, cfg.Model, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("unsupported backend kind %q", cfg.Kind)
	}

	if cfg.Breaker {
		backend = NewBreakerBackend(cfg.Kind, backend)
	}
	return backend, nil
}

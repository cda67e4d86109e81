package translator

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerBackend stops calling a failing backend for a cool-down period so
// a batch run against a dead service fails fast.
type BreakerBackend struct {
	kind    string
	next    Backend
	breaker *gobreaker.CircuitBreaker
}

type BreakerOption func(*gobreaker.Settings)

func WithBreakerTimeout(d time.Duration) BreakerOption {
	return func(s *gobreaker.Settings) { s.Timeout = d }
}

func WithConsecutiveFailures(n uint32) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= n
		}
	}
}

func NewBreakerBackend(kind string, next Backend, opts ...BreakerOption) *BreakerBackend {
	settings := gobreaker.Settings{
		Name:        kind,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Cancellation says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	for _, opt := range opts {
		opt(&settings)
	}
	return &BreakerBackend{kind: kind, next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerBackend) Translate(ctx context.Context, text, sourceLang, targetLang string, opts Options) (string, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Translate(ctx, text, sourceLang, targetLang, opts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", &Error{Backend: b.kind, Message: "circuit breaker " + err.Error()}
		}
		return "", err
	}
	return out.(string), nil
}

// State reports the breaker state: closed, half-open or open.
func (b *BreakerBackend) State() string {
	return b.breaker.State().String()
}

func (b *BreakerBackend) Status(ctx context.Context) Status {
	st := Status{Kind: b.kind, Available: true}
	if reporter, ok := b.next.(StatusReporter); ok {
		st = reporter.Status(ctx)
	}
	st.Breaker = b.State()
	if b.breaker.State() == gobreaker.StateOpen {
		st.Available = false
	}
	return st
}

package jobs

import (
	"context"
	"sync"
)

// Handle resolves exactly once with the job's terminal status. The worker
// running the job writes it; any number of callers may wait on it.
type Handle struct {
	id   string
	done chan struct{}
	once sync.Once

	status Status
	err    error
}

func newHandle(id string) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the job is terminal or ctx is done. In the latter case
// it returns ctx.Err() and an empty status.
func (h *Handle) Wait(ctx context.Context) (Status, error) {
	select {
	case <-h.done:
		return h.status, h.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (h *Handle) resolve(status Status, err error) {
	h.once.Do(func() {
		h.status = status
		h.err = err
		close(h.done)
	})
}

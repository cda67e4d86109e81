package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/skill-translator/pkg/log"
)

// Executor runs one job. A nil error marks the job ready; an error wrapping
// ErrCanceled or context.Canceled marks it canceled; anything else failed.
type Executor func(ctx context.Context, job *TranslationJob) error

type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

const defaultMaxJobs = 1000

type entry struct {
	job    *TranslationJob
	ctx    context.Context
	handle *Handle
}

// Queue is an unbounded multi-producer, multi-consumer job queue drained by a
// fixed pool of workers.
type Queue struct {
	workerCount int
	maxJobs     int
	logger      Logger
	onQueued    func(TranslationJob)
	now         func() time.Time

	mu      sync.RWMutex
	jobs    map[string]*entry
	dedupe  map[string]string
	pending []string
	started bool
	stopped bool

	signal   chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type Option func(*Queue)

func WithLogger(logger Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithMaxJobs caps how many terminal jobs are kept for List and Get.
func WithMaxJobs(n int) Option {
	return func(q *Queue) {
		q.maxJobs = n
	}
}

// WithQueuedHook registers fn to run on the enqueuing goroutine after a new
// job is registered and before any worker can pick it up.
func WithQueuedHook(fn func(TranslationJob)) Option {
	return func(q *Queue) {
		q.onQueued = fn
	}
}

func NewQueue(workerCount int, opts ...Option) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		workerCount: workerCount,
		maxJobs:     defaultMaxJobs,
		logger:      log.NewNopLogger(),
		now:         time.Now,
		jobs:        make(map[string]*entry),
		dedupe:      make(map[string]string),
		signal:      make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue registers a job and returns its completion handle. When a job with
// the same dedupe key is still pending or running, its handle is returned
// and created is false. After Stop the returned handle is already canceled.
func (q *Queue) Enqueue(req EnqueueRequest) (handle *Handle, created bool) {
	now := q.now()

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		h := newHandle(uuid.NewString())
		h.resolve(StatusCanceled, ErrQueueStopped)
		return h, false
	}
	if id, ok := q.dedupe[req.DedupeKey]; ok {
		if existing, exists := q.jobs[id]; exists {
			q.mu.Unlock()
			return existing.handle, false
		}
		delete(q.dedupe, req.DedupeKey)
	}

	jobCtx := req.Context
	if jobCtx == nil {
		jobCtx = context.Background()
	}
	id := uuid.NewString()
	e := &entry{
		job: &TranslationJob{
			ID:        id,
			Source:    req.Source,
			DedupeKey: req.DedupeKey,
			Payload:   req.Payload,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		ctx:    jobCtx,
		handle: newHandle(id),
	}
	q.jobs[id] = e
	if req.DedupeKey != "" {
		q.dedupe[req.DedupeKey] = id
	}
	snapshot := *e.job
	q.mu.Unlock()

	if q.onQueued != nil {
		q.onQueued(snapshot)
	}
	q.push(e)
	return e.handle, true
}

func (q *Queue) push(e *entry) {
	q.mu.Lock()
	if q.stopped {
		q.finishLocked(e, StatusCanceled, ErrQueueStopped)
		q.mu.Unlock()
		e.handle.resolve(StatusCanceled, ErrQueueStopped)
		return
	}
	q.pending = append(q.pending, e.job.ID)
	q.mu.Unlock()
	q.notify()
}

func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *Queue) Get(id string) (*TranslationJob, bool) {
	q.mu.RLock()
	e, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}
	snapshot := *e.job
	return &snapshot, true
}

// List returns job snapshots ordered by creation time.
func (q *Queue) List() []*TranslationJob {
	q.mu.RLock()
	ret := make([]*TranslationJob, 0, len(q.jobs))
	for _, e := range q.jobs {
		snapshot := *e.job
		ret = append(ret, &snapshot)
	}
	q.mu.RUnlock()

	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].CreatedAt.Before(ret[j].CreatedAt)
	})
	return ret
}

// Pending reports how many jobs are waiting for a worker.
func (q *Queue) Pending() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending)
}

func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	for range q.workerCount {
		q.wg.Add(1)
		go q.worker(exec)
	}
	q.notify()
}

// Stop cancels running jobs, waits for workers to exit and resolves every
// job that never reached a terminal state as canceled.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()

		q.cancel()
		q.wg.Wait()

		q.mu.Lock()
		leftover := make([]*entry, 0, len(q.pending))
		for _, e := range q.jobs {
			if !e.job.Status.Terminal() {
				q.finishLocked(e, StatusCanceled, ErrQueueStopped)
				leftover = append(leftover, e)
			}
		}
		q.pending = nil
		q.mu.Unlock()

		for _, e := range leftover {
			e.handle.resolve(StatusCanceled, ErrQueueStopped)
		}
	})
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()

	for {
		if q.ctx.Err() != nil {
			return
		}
		e, ok := q.next()
		if !ok {
			select {
			case <-q.ctx.Done():
				return
			case <-q.signal:
			}
			continue
		}
		q.run(exec, e)
	}
}

func (q *Queue) next() (*entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) > 0 {
		id := q.pending[0]
		q.pending = q.pending[1:]
		if len(q.pending) > 0 {
			q.notify()
		}
		if e, ok := q.jobs[id]; ok && e.job.Status == StatusPending {
			return e, true
		}
	}
	return nil, false
}

func (q *Queue) run(exec Executor, e *entry) {
	if err := e.ctx.Err(); err != nil {
		q.finish(e, StatusCanceled, err)
		return
	}

	q.mu.Lock()
	e.job.Status = StatusRunning
	e.job.UpdatedAt = q.now()
	snapshot := *e.job
	q.mu.Unlock()

	ctx, cancel := context.WithCancel(q.ctx)
	stop := context.AfterFunc(e.ctx, cancel)
	err := q.safeExecute(ctx, exec, &snapshot)
	stop()
	cancel()

	q.finish(e, outcome(err), err)
}

func (q *Queue) safeExecute(ctx context.Context, exec Executor, job *TranslationJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Job %s panicked: %v", job.ID, r)
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return exec(ctx, job)
}

func outcome(err error) Status {
	switch {
	case err == nil:
		return StatusReady
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return StatusCanceled
	default:
		return StatusFailed
	}
}

func (q *Queue) finish(e *entry, status Status, err error) {
	q.mu.Lock()
	q.finishLocked(e, status, err)
	q.pruneTerminalJobsLocked()
	q.mu.Unlock()

	q.logger.Debug("Job %s finished as %s", e.job.ID, status)
	e.handle.resolve(status, err)
}

func (q *Queue) finishLocked(e *entry, status Status, err error) {
	e.job.Status = status
	e.job.Error = ""
	if err != nil {
		e.job.Error = err.Error()
	}
	e.job.UpdatedAt = q.now()
	q.releaseDedupeLocked(e.job)
}

func (q *Queue) releaseDedupeLocked(job *TranslationJob) {
	if job == nil || job.DedupeKey == "" {
		return
	}
	if id, ok := q.dedupe[job.DedupeKey]; ok && id == job.ID {
		delete(q.dedupe, job.DedupeKey)
	}
}

func (q *Queue) pruneTerminalJobsLocked() {
	if q.maxJobs <= 0 {
		return
	}

	terminal := make([]*TranslationJob, 0, len(q.jobs))
	for _, e := range q.jobs {
		if e.job.Status.Terminal() {
			terminal = append(terminal, e.job)
		}
	}
	toRemove := len(terminal) - q.maxJobs
	if toRemove <= 0 {
		return
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].UpdatedAt.Before(terminal[j].UpdatedAt)
	})
	for _, job := range terminal[:toRemove] {
		delete(q.jobs, job.ID)
	}
}

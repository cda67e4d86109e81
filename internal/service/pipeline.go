package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/abadojack/whatlanggo"

	"github.com/MimeLyc/skill-translator/internal/cache"
	"github.com/MimeLyc/skill-translator/internal/config"
	"github.com/MimeLyc/skill-translator/internal/jobs"
	"github.com/MimeLyc/skill-translator/internal/termmap"
	"github.com/MimeLyc/skill-translator/internal/translator"
	"github.com/MimeLyc/skill-translator/pkg/log"
)

const (
	maxWorkers = 2

	sourceIncremental = "incremental"
	sourceBatch       = "batch"
)

// Service is the translation pipeline. It builds jobs from subject fields,
// skips whatever is already cached, and runs the rest through a small pool of
// workers that protect terms, call the backend and write the outcome back.
type Service struct {
	store     cache.Store
	backend   translator.Backend
	protector *termmap.Protector
	cfg       config.TranslationConfig
	logger    Logger
	manual    *ManualStore
	now       func() time.Time

	queue  *jobs.Queue
	events *broadcaster

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

type Option func(*Service)

func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithManualStore overlays hand-written translations in GetTranslations.
func WithManualStore(m *ManualStore) Option {
	return func(s *Service) {
		s.manual = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService starts the worker pool immediately. Close stops it.
func NewService(
	store cache.Store,
	backend translator.Backend,
	protector *termmap.Protector,
	cfg config.TranslationConfig,
	opts ...Option,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		store:     store,
		backend:   backend,
		protector: protector,
		cfg:       cfg,
		logger:    log.NewNopLogger(),
		now:       time.Now,
		events:    newBroadcaster(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.queue = jobs.NewQueue(
		WorkerCount(cfg.MaxConcurrency),
		jobs.WithLogger(s.logger),
		jobs.WithQueuedHook(s.onQueued),
	)
	s.queue.Start(s.execute)
	return s
}

// WorkerCount clamps the configured concurrency to what a single local or
// rate-limited backend tolerates.
func WorkerCount(configured int) int {
	return min(max(configured, 1), maxWorkers)
}

// ShouldTranslate rejects blank text, text shorter than three characters and
// text without a single ASCII letter.
func ShouldTranslate(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if len([]rune(text)) < 3 {
		return false
	}
	return strings.IndexFunc(text, func(r rune) bool {
		return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
	}) >= 0
}

func (s *Service) Config() config.TranslationConfig {
	return s.cfg
}

func (s *Service) Subscribe(buffer int) (<-chan Event, func()) {
	return s.events.subscribe(buffer)
}

func (s *Service) Jobs() []*jobs.TranslationJob {
	return s.queue.List()
}

// Close cancels in-flight work, stops the workers and resolves queued jobs
// as canceled. Subscribers' channels are closed.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.queue.Stop()
		s.events.close()
	})
}

type candidate struct {
	subjectID   string
	displayName string
	field       string
	text        string
	key         cache.Key
}

func (s *Service) keyFor(subjectID, field, text string) cache.Key {
	return cache.NewKey(subjectID, field, s.cfg.TargetLang, s.cfg.EngineID, s.cfg.EngineVersion, text)
}

func (s *Service) candidates(subjects []Subject) []candidate {
	var out []candidate
	for _, subject := range subjects {
		id := subject.NormalizedID()
		if id == "" {
			continue
		}
		fields := make([]string, 0, len(subject.Fields))
		for field := range subject.Fields {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			text := subject.Fields[field]
			if !ShouldTranslate(text) {
				continue
			}
			out = append(out, candidate{
				subjectID:   id,
				displayName: subject.Name,
				field:       field,
				text:        text,
				key:         s.keyFor(id, field, text),
			})
		}
	}
	return out
}

func keysOf(cands []candidate) []cache.Key {
	keys := make([]cache.Key, len(cands))
	for i, c := range cands {
		keys[i] = c.key
	}
	return keys
}

// GetCachedTranslations returns the Ready cache entries for the subjects'
// current field texts. It never enqueues anything.
func (s *Service) GetCachedTranslations(ctx context.Context, subjects []Subject) (Translations, error) {
	cands := s.candidates(subjects)
	records, err := s.store.GetBatch(ctx, keysOf(cands))
	if err != nil {
		return nil, WrapError(err, ErrCache, "failed to read cache")
	}

	result := make(Translations)
	for _, c := range cands {
		if record, ok := records[c.key]; ok && record.Status == cache.StatusReady {
			result.set(c.subjectID, c.field, record.TranslatedText)
		}
	}
	return result, nil
}

// GetTranslations is GetCachedTranslations with manual translations laid on
// top. Manual entries win field by field.
func (s *Service) GetTranslations(ctx context.Context, subjects []Subject) (Translations, error) {
	result, err := s.GetCachedTranslations(ctx, subjects)
	if err != nil {
		return nil, err
	}
	if s.manual == nil {
		return result, nil
	}

	manual, err := s.manual.SyncAndLoad(ctx, subjects)
	if err != nil {
		s.logger.Warn("Failed to load manual translations from %s: %v", s.manual.Path(), err)
		return result, nil
	}
	for id, fields := range manual {
		for field, text := range fields {
			result.set(id, field, text)
		}
	}
	return result, nil
}

// buildJobs drops every candidate cached as Ready, and Failed ones too
// unless retryFailed is set.
func (s *Service) buildJobs(ctx context.Context, subjects []Subject, retryFailed bool) ([]candidate, error) {
	cands := s.candidates(subjects)
	records, err := s.store.GetBatch(ctx, keysOf(cands))
	if err != nil {
		return nil, WrapError(err, ErrCache, "failed to read cache")
	}

	pending := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if record, ok := records[c.key]; ok {
			if record.Status == cache.StatusReady {
				continue
			}
			if record.Status == cache.StatusFailed && !retryFailed {
				continue
			}
		}
		pending = append(pending, c)
	}
	return pending, nil
}

func (s *Service) enqueue(c candidate, source string, jobCtx context.Context) (*jobs.Handle, bool) {
	return s.queue.Enqueue(jobs.EnqueueRequest{
		Source:    source,
		DedupeKey: c.key.String(),
		Context:   jobCtx,
		Payload: jobs.JobPayload{
			SubjectID:   c.subjectID,
			DisplayName: c.displayName,
			Field:       c.field,
			SourceText:  c.text,
			SourceHash:  c.key.SourceHash,
		},
	})
}

// QueueIncremental enqueues every field not yet cached, skipping earlier
// failures, and returns without waiting. It reports how many new jobs were
// queued.
func (s *Service) QueueIncremental(ctx context.Context, subjects []Subject) (int, error) {
	if !s.cfg.Enabled {
		return 0, nil
	}
	pending, err := s.buildJobs(ctx, subjects, false)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, c := range pending {
		// Fire-and-forget jobs outlive the caller's context.
		if _, created := s.enqueue(c, sourceIncremental, nil); created {
			queued++
		}
	}
	return queued, nil
}

// RunBatchPretranslate enqueues every field not cached as Ready, retrying
// earlier failures, then waits for each job in submission order. progress is
// called after every terminal outcome. Cancellation aborts the wait with an
// ErrCanceled error; failed jobs only count as failed.
func (s *Service) RunBatchPretranslate(ctx context.Context, subjects []Subject, progress func(Progress)) (Progress, error) {
	var p Progress
	if !s.cfg.Enabled {
		return p, nil
	}
	pending, err := s.buildJobs(ctx, subjects, true)
	if err != nil {
		return p, err
	}

	p.Total = len(pending)
	handles := make([]*jobs.Handle, len(pending))
	for i, c := range pending {
		handles[i], _ = s.enqueue(c, sourceBatch, ctx)
	}

	for i, h := range handles {
		if err := ctx.Err(); err != nil {
			return p, NewErrorWithCause(ErrCanceled, "batch pretranslation canceled", err)
		}
		status, err := h.Wait(ctx)
		if status == "" || status == jobs.StatusCanceled {
			if err == nil {
				err = context.Canceled
			}
			return p, NewErrorWithCause(ErrCanceled, "batch pretranslation canceled", err)
		}
		if status == jobs.StatusFailed {
			p.Failed++
		}
		p.Completed++
		p.CurrentSubject = pending[i].displayName
		p.CurrentField = pending[i].field
		if progress != nil {
			progress(p)
		}
	}
	return p, nil
}

// DeleteCache forgets every record, ready and failed alike.
func (s *Service) DeleteCache(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx); err != nil {
		return WrapError(err, ErrCache, "failed to delete cache")
	}
	return nil
}

func (s *Service) onQueued(job jobs.TranslationJob) {
	s.events.publish(Event{
		Type:      EventQueued,
		SubjectID: job.Payload.SubjectID,
		Field:     job.Payload.Field,
		At:        s.now(),
	})
}

// execute is the worker body for one job.
func (s *Service) execute(ctx context.Context, job *jobs.TranslationJob) error {
	ctx, stop := s.linkScope(ctx)
	defer stop()

	p := job.Payload
	key := cache.Key{
		SubjectID:     p.SubjectID,
		Field:         p.Field,
		TargetLang:    s.cfg.TargetLang,
		EngineID:      s.cfg.EngineID,
		EngineVersion: s.cfg.EngineVersion,
		SourceHash:    p.SourceHash,
	}
	started := s.now()

	text, err := s.translate(ctx, p.SourceText)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", jobs.ErrCanceled, ctx.Err())
	}

	// The result is final at this point; persisting it must not race with
	// a late cancellation.
	writeCtx := context.WithoutCancel(ctx)

	if err != nil {
		s.logger.Warn("Translation of %s/%s failed: %v", p.SubjectID, p.Field, err)
		record := cache.FailedRecord(key, err.Error(), started, s.now())
		if upsertErr := s.store.Upsert(writeCtx, record); upsertErr != nil {
			s.logger.Error("Failed to record failure for %s/%s: %v", p.SubjectID, p.Field, upsertErr)
		}
		s.events.publish(Event{
			Type:      EventCompleted,
			SubjectID: p.SubjectID,
			Field:     p.Field,
			Success:   false,
			Error:     err.Error(),
			At:        s.now(),
		})
		return err
	}

	record := cache.ReadyRecord(key, text, started, s.now())
	if err := s.store.Upsert(writeCtx, record); err != nil {
		return WrapError(err, ErrCache, "failed to store translation")
	}
	s.events.publish(Event{
		Type:      EventCompleted,
		SubjectID: p.SubjectID,
		Field:     p.Field,
		Success:   true,
		Text:      text,
		At:        s.now(),
	})
	return nil
}

// linkScope makes ctx also end when the service is closed.
func (s *Service) linkScope(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Service) translate(ctx context.Context, source string) (string, error) {
	protected := s.protector.Protect(source)

	callCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	var out string
	err := SafeExecute(func() error {
		var callErr error
		out, callErr = s.backend.Translate(callCtx, protected.Text, s.sourceLang(source), s.cfg.TargetLang, translator.Options{
			MaxLength: s.cfg.MaxLength,
		})
		return callErr
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", NewErrorWithCause(ErrTimeout, fmt.Sprintf("translation timed out after %s", s.cfg.Timeout), err)
		}
		if IsErrorType(err, ErrUnknown) {
			return "", err
		}
		return "", WrapError(err, ErrBackend, "backend translation failed")
	}

	restored := s.protector.Restore(out, protected)
	if strings.TrimSpace(restored) == "" {
		return "", NewError(ErrBackend, "backend returned an empty translation")
	}
	if len(protected.Replacements) == 0 {
		return restored, nil
	}
	if residual := termmap.ResidualPlaceholders(restored); len(residual) > 0 {
		return "", NewError(ErrUnresolvedPlaceholder, "translation left placeholders unresolved").
			WithContext("placeholders", strings.Join(residual, ","))
	}
	if missing := protected.Missing(out); len(missing) > 0 {
		s.logger.Warn("Backend dropped placeholders %s; keeping translation", strings.Join(missing, ","))
	}
	return restored, nil
}

// sourceLang returns the configured source language, detecting it per text
// when configured as auto.
func (s *Service) sourceLang(text string) string {
	if !strings.EqualFold(s.cfg.SourceLang, config.AutoSourceLang) {
		return s.cfg.SourceLang
	}
	info := whatlanggo.Detect(text)
	if code := info.Lang.Iso6391(); code != "" && info.IsReliable() {
		return code
	}
	return config.DefaultSourceLang
}

package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/MimeLyc/skill-translator/internal/service"
	"github.com/MimeLyc/skill-translator/internal/translator"
)

type Server struct {
	svc       *service.Service
	subjects  service.SubjectSource
	backend   translator.Backend
	scheduler *service.Scheduler

	keepAlive time.Duration

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithSubjectSource supplies the subjects used when a request names none.
func WithSubjectSource(source service.SubjectSource) Option {
	return func(s *Server) {
		s.subjects = source
	}
}

func WithBackend(backend translator.Backend) Option {
	return func(s *Server) {
		s.backend = backend
	}
}

// WithScheduler routes library-wide pretranslation through the scheduler so
// it shares a run with the cron.
func WithScheduler(scheduler *service.Scheduler) Option {
	return func(s *Server) {
		s.scheduler = scheduler
	}
}

func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

func NewServer(svc *service.Service, opts ...Option) *Server {
	s := &Server{
		svc:       svc,
		keepAlive: 15 * time.Second,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/translations/lookup", s.handleLookup)
	s.mux.HandleFunc("/api/translations/queue", s.handleQueue)
	s.mux.HandleFunc("/api/translations/pretranslate", s.handlePretranslate)
	s.mux.HandleFunc("/api/translations/cache", s.handleCache)
	s.mux.HandleFunc("/api/translations/events", s.handleEvents)
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/backend/status", s.handleBackendStatus)
	s.mux.HandleFunc("/api/schedule", s.handleSchedule)
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MimeLyc/skill-translator/internal/service"
	"github.com/MimeLyc/skill-translator/internal/translator"
)

const backendStatusTimeout = 5 * time.Second

var errNoSubjects = errors.New("subjects are required")

type subjectsRequest struct {
	Subjects []service.Subject `json:"subjects"`
	// CachedOnly skips the manual overlay on lookup.
	CachedOnly bool `json:"cached_only"`
}

// decodeSubjectsRequest accepts an empty body.
func decodeSubjectsRequest(r *http.Request) (subjectsRequest, error) {
	var req subjectsRequest
	if r.Body == nil {
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}

func (s *Server) resolveSubjects(ctx context.Context, req subjectsRequest) ([]service.Subject, error) {
	if len(req.Subjects) > 0 {
		return req.Subjects, nil
	}
	if s.subjects == nil {
		return nil, errNoSubjects
	}
	return s.subjects(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cfg := s.svc.Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                  true,
		"translation_enabled": cfg.Enabled,
		"target_lang":         cfg.TargetLang,
		"engine_id":           cfg.EngineID,
		"engine_version":      cfg.EngineVersion,
	})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	req, subjects, ok := s.readSubjects(w, r)
	if !ok {
		return
	}

	lookup := s.svc.GetTranslations
	if req.CachedOnly {
		lookup = s.svc.GetCachedTranslations
	}
	translations, err := lookup(r.Context(), subjects)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"translations": translations,
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	_, subjects, ok := s.readSubjects(w, r)
	if !ok {
		return
	}

	queued, err := s.svc.QueueIncremental(r.Context(), subjects)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued": queued,
	})
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.svc.DeleteCache(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Jobs())
}

func (s *Server) handleBackendStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	reporter, ok := s.backend.(translator.StatusReporter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "backend does not report status")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), backendStatusTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, reporter.Status(ctx))
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, service.ScheduleStatus{})
		return
	}
	status, err := s.scheduler.Status(time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// readSubjects writes the error response itself and reports false when the
// request cannot proceed.
func (s *Server) readSubjects(w http.ResponseWriter, r *http.Request) (subjectsRequest, []service.Subject, bool) {
	req, err := decodeSubjectsRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return req, nil, false
	}
	subjects, ok := s.readSubjectsFrom(w, r, req)
	return req, subjects, ok
}

func (s *Server) readSubjectsFrom(w http.ResponseWriter, r *http.Request, req subjectsRequest) ([]service.Subject, bool) {
	subjects, err := s.resolveSubjects(r.Context(), req)
	if errors.Is(err, errNoSubjects) {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return subjects, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MimeLyc/skill-translator/internal/service"
)

type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func startEventStream(w http.ResponseWriter) (*eventStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &eventStream{w: w, flusher: flusher}, true
}

func (s *eventStream) send(event string, data any) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return false
	}
	s.flusher.Flush()
	return true
}

func (s *eventStream) comment(text string) bool {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return false
	}
	s.flusher.Flush()
	return true
}

// handlePretranslate runs a batch and streams progress after every finished
// job, then a final done or error event. Without explicit subjects and with
// a scheduler configured, the run is shared with the scheduled one and only
// the final event is sent.
func (s *Server) handlePretranslate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	req, err := decodeSubjectsRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	shared := len(req.Subjects) == 0 && s.scheduler != nil

	var subjects []service.Subject
	if !shared {
		var ok bool
		if subjects, ok = s.readSubjectsFrom(w, r, req); !ok {
			return
		}
	}

	stream, ok := startEventStream(w)
	if !ok {
		return
	}

	var p service.Progress
	if shared {
		p, err = s.scheduler.RunOnce(r.Context())
	} else {
		p, err = s.svc.RunBatchPretranslate(r.Context(), subjects, func(p service.Progress) {
			stream.send("progress", p)
		})
	}
	if err != nil {
		stream.send("error", map[string]any{
			"error":    err.Error(),
			"progress": p,
		})
		return
	}
	stream.send("done", p)
}

// handleEvents relays pipeline events until the client goes away or the
// service closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	events, unsubscribe := s.svc.Subscribe(64)
	defer unsubscribe()

	stream, ok := startEventStream(w)
	if !ok {
		return
	}
	if !stream.comment("connected") {
		return
	}

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !stream.send(string(ev.Type), ev) {
				return
			}
		case <-ticker.C:
			if !stream.comment("keepalive") {
				return
			}
		}
	}
}

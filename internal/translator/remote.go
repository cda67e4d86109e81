package translator

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// RemoteBackend calls a standalone translation service over HTTP.
type RemoteBackend struct {
	client httpClient
}

func NewRemoteBackend(baseURL string, timeout time.Duration) *RemoteBackend {
	return &RemoteBackend{client: newHTTPClient("remote", baseURL, timeout)}
}

type remoteTranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"sourceLang,omitempty"`
	TargetLang string `json:"targetLang,omitempty"`
	MaxLength  int    `json:"maxLength,omitempty"`
}

type remoteTranslateResponse struct {
	Success        bool   `json:"success"`
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
	ElapsedMs      int64  `json:"elapsedMs"`
}

// RemoteStatus mirrors GET /api/translate/status.
type RemoteStatus struct {
	Ready          bool   `json:"ready"`
	ModelLoaded    bool   `json:"modelLoaded"`
	ModelDirectory string `json:"modelDirectory,omitempty"`
	SourceLang     string `json:"sourceLang,omitempty"`
	TargetLang     string `json:"targetLang,omitempty"`
	EngineVersion  string `json:"engineVersion,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (b *RemoteBackend) Translate(ctx context.Context, text, sourceLang, targetLang string, opts Options) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	var resp remoteTranslateResponse
	err := b.client.do(ctx, http.MethodPost, "/api/translate", remoteTranslateRequest{
		Text:       text,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		MaxLength:  opts.MaxLength,
	}, &resp)
	if err != nil {
		var backendErr *Error
		if errors.As(err, &backendErr) && resp.Error != "" {
			backendErr.Message = resp.Error
		}
		return "", err
	}

	if resp.Success && resp.TranslatedText != "" {
		return resp.TranslatedText, nil
	}
	msg := resp.Error
	if msg == "" {
		msg = "unknown error"
	}
	return "", &Error{Backend: "remote", Message: msg}
}

// IsAvailable reports whether the health endpoint answers 2xx.
func (b *RemoteBackend) IsAvailable(ctx context.Context) bool {
	return b.client.do(ctx, http.MethodGet, "/api/translate/health", nil, nil) == nil
}

func (b *RemoteBackend) Status(ctx context.Context) Status {
	st := Status{Kind: "remote"}
	var remote RemoteStatus
	if err := b.client.do(ctx, http.MethodGet, "/api/translate/status", nil, &remote); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Available = remote.Ready
	st.Details = map[string]any{
		"model_loaded":   remote.ModelLoaded,
		"engine_version": remote.EngineVersion,
		"source_lang":    remote.SourceLang,
		"target_lang":    remote.TargetLang,
	}
	if remote.ModelDirectory != "" {
		st.Details["model_directory"] = remote.ModelDirectory
	}
	st.Error = remote.Error
	return st
}

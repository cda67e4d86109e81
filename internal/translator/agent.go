package translator

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// AgentBackend calls a local LLM translation agent that expects the target
// language as an English display name.
type AgentBackend struct {
	client httpClient
}

func NewAgentBackend(baseURL string, timeout time.Duration) *AgentBackend {
	return &AgentBackend{client: newHTTPClient("agent", baseURL, timeout)}
}

type agentTranslateRequest struct {
	Text       string `json:"text"`
	TargetLang string `json:"target_lang"`
}

type agentTranslateResponse struct {
	TranslatedText string `json:"translated_text"`
	Status         string `json:"status"`
}

func (b *AgentBackend) Translate(ctx context.Context, text, _, targetLang string, _ Options) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	var resp agentTranslateResponse
	if err := b.client.do(ctx, http.MethodPost, "/translate", agentTranslateRequest{
		Text:       text,
		TargetLang: agentLanguageName(targetLang),
	}, &resp); err != nil {
		return "", err
	}

	if resp.Status == "success" && resp.TranslatedText != "" {
		return resp.TranslatedText, nil
	}
	msg := resp.Status
	if msg == "" {
		msg = "unknown error from service"
	}
	return "", &Error{Backend: "agent", Message: msg}
}

func (b *AgentBackend) Status(ctx context.Context) Status {
	return Status{Kind: "agent", Available: true}
}

// agentLanguageName maps a BCP 47 tag to the English name the agent expects.
// Unparseable tags are passed through unchanged.
func agentLanguageName(tag string) string {
	switch strings.ToLower(tag) {
	case "zh-cn", "zh-hans", "zh-hans-cn", "zh-sg":
		return "Simplified Chinese"
	case "zh-tw", "zh-hant", "zh-hant-tw", "zh-hk":
		return "Traditional Chinese"
	}
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Languages().Name(t); name != "" {
		return name
	}
	return tag
}

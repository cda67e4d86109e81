package translator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// OpenAIBackend translates through an OpenAI-compatible chat completion API.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

func NewOpenAIBackend(apiKey, baseURL, model string, timeout time.Duration) (*OpenAIBackend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OpenAI API key not found")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (b *OpenAIBackend) Translate(ctx context.Context, text, sourceLang, targetLang string, opts Options) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	req := openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(sourceLang, targetLang, opts)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.2,
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Backend: "openai", Message: "no translation returned"}
	}

	translation := strings.TrimSpace(resp.Choices[0].Message.Content)
	if translation == "" {
		return "", &Error{Backend: "openai", Message: "empty translation returned"}
	}
	return translation, nil
}

func (b *OpenAIBackend) Status(ctx context.Context) Status {
	return Status{Kind: "openai", Available: true, Details: map[string]any{"model": b.model}}
}

func buildSystemPrompt(sourceLang, targetLang string, opts Options) string {
	var prompt strings.Builder
	prompt.WriteString("You translate short descriptions of developer tools")
	if name := languageName(sourceLang); name != "" {
		prompt.WriteString(" from " + name)
	}
	prompt.WriteString(" into " + languageName(targetLang) + ".\n")
	prompt.WriteString("Keep every token of the form __MAP_000__ or __TERM_000__ exactly as written.\n")
	if opts.MaxLength > 0 {
		prompt.WriteString(fmt.Sprintf("Keep the translation under %d characters.\n", opts.MaxLength))
	}
	prompt.WriteString("Respond with only the translation, nothing else.")
	return prompt.String()
}

func languageName(tag string) string {
	if tag == "" || strings.EqualFold(tag, "auto") {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Tags().Name(t); name != "" {
		return name
	}
	return tag
}

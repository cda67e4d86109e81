package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type httpClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

func newHTTPClient(name, baseURL string, timeout time.Duration) httpClient {
	return httpClient{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// do sends payload as JSON and decodes the response body into out. Non-2xx
// answers are returned as *Error after out has been decoded when possible.
func (c httpClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if os.IsTimeout(err) {
			return fmt.Errorf("%s request timed out: %w", c.name, err)
		}
		return fmt.Errorf("failed to reach %s backend: %w", c.name, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if out != nil && len(bytes.TrimSpace(responseBody)) > 0 {
		if err := json.Unmarshal(responseBody, out); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Backend: c.name, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(responseBody))}
	}
	return nil
}

package rewriter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/luotian/rephrase/internal/postprocess"
)

// OllamaRewriter uses a local Ollama model.
type OllamaRewriter struct {
	model   string
	baseURL string
	client  *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// NewOllamaRewriter creates a backend for a local Ollama server. BaseURL
// defaults to the standard local port, model to qwen2.5:7b which handles
// mixed Chinese and English academic prose well.
func NewOllamaRewriter(cfg Config) *OllamaRewriter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "qwen2.5:7b"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OllamaRewriter{
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *OllamaRewriter) Name() string { return "ollama" }

func (r *OllamaRewriter) Rewrite(ctx context.Context, req Request) (string, error) {
	jsonData, err := json.Marshal(ollamaRequest{
		Model:  r.model,
		Prompt: BuildPrompt(req),
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal rewrite request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/api/generate", r.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create rewrite request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("rewrite request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	default:
		return "", fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := postprocess.Clean(ollamaResp.Response)
	if out == "" {
		return "", fmt.Errorf("%w: empty response", ErrMalformed)
	}
	return out, nil
}

// IsAvailable probes the local server.
func (r *OllamaRewriter) IsAvailable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/api/tags", r.baseURL), nil)
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("Ollama not available: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}
	return nil
}

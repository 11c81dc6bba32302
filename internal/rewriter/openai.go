package rewriter

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/luotian/rephrase/internal/postprocess"
)

// OpenAIRewriter talks to any OpenAI-compatible chat completion endpoint
// (OpenAI itself, DeepSeek, vLLM, and similar gateways).
type OpenAIRewriter struct {
	model  string
	client *openai.Client
}

// NewOpenAIRewriter builds a backend for the given config. BaseURL may be
// empty for the official API.
func NewOpenAIRewriter(cfg Config) *OpenAIRewriter {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIRewriter{
		model:  model,
		client: openai.NewClientWithConfig(oc),
	}
}

func (r *OpenAIRewriter) Name() string { return "openai" }

// Rewrite sends one chat completion call and classifies failures into the
// package sentinel errors.
func (r *OpenAIRewriter) Rewrite(ctx context.Context, req Request) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
		},
		Temperature: temperatureFor(req),
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrMalformed)
	}
	out := postprocess.Clean(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("%w: empty completion", ErrMalformed)
	}
	return out, nil
}

// temperatureFor scales sampling temperature with intensity so stronger
// rewrites explore further from the original wording.
func temperatureFor(req Request) float32 {
	t := 0.5 + 0.1*float32(req.Intensity)
	if req.Intensified {
		t += 0.1
	}
	if t > 1.0 {
		t = 1.0
	}
	return t
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
	}
	return fmt.Errorf("rewrite call failed: %w", err)
}

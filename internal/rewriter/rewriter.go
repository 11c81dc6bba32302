// Package rewriter defines the LLM backend contract for text rewriting and
// provides OpenAI-compatible and Ollama implementations.
package rewriter

import (
	"context"
	"errors"
	"time"

	"github.com/luotian/rephrase/internal"
)

// Request carries one rewrite call to a model backend.
type Request struct {
	Text        string
	Task        internal.Task
	Intensity   int
	Terms       []string
	Context     string // trailing sentences of the preceding batch, may be empty
	Intensified bool   // re-issue with a stronger instruction after a weak first pass
}

// Rewriter sends text to a language model and returns the rewritten form.
// Implementations must honor ctx cancellation and return one of the sentinel
// errors below for classifiable failures.
type Rewriter interface {
	Name() string
	Rewrite(ctx context.Context, req Request) (string, error)
}

// Sentinel errors classifying backend failures. Callers match with errors.Is.
var (
	// ErrTimeout covers deadline expiry and cancellation of a single call.
	ErrTimeout = errors.New("rewrite call timed out")
	// ErrRateLimited covers HTTP 429 and provider quota responses.
	ErrRateLimited = errors.New("rewrite call rate limited")
	// ErrMalformed covers empty or undecodable model responses.
	ErrMalformed = errors.New("malformed rewrite response")
	// ErrUnauthorized covers HTTP 401/403. Never retried.
	ErrUnauthorized = errors.New("rewrite backend rejected credentials")
)

// Retryable reports whether a failed call is worth re-issuing. Credential
// failures are permanent; everything else is assumed transient.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrUnauthorized)
}

// Config holds the settings shared by all backends.
type Config struct {
	Model   string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// DefaultTimeout bounds a single model call when the config leaves it unset.
const DefaultTimeout = 120 * time.Second

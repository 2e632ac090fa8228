package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Kind distinguishes metered cloud providers from free local runtimes.
type Kind string

const (
	KindCloud Kind = "cloud"
	KindLocal Kind = "local"
)

// Provider sends a chat completion request to a model and returns the
// text plus token usage.
type Provider interface {
	Name() string
	Kind() Kind
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// LocalProvider is an optional interface for self-hosted runtimes that
// may not be running at all.
type LocalProvider interface {
	Available(ctx context.Context) bool
}

type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type Response struct {
	Text  string
	Usage Usage
}

// APIError represents a non-2xx response from a provider API.
type APIError struct {
	Provider   string
	StatusCode int
	Status     string
	Message    string
}

// Error formats the API error string.
func (e *APIError) Error() string {
	if e == nil {
		return "llm: api error <nil>"
	}

	status := strings.TrimSpace(e.Status)
	if status == "" && e.StatusCode != 0 {
		status = fmt.Sprintf("%d", e.StatusCode)
	}

	msg := strings.TrimSpace(e.Message)
	switch {
	case status != "" && msg != "":
		return fmt.Sprintf("llm: %s: api error (%s): %s", e.Provider, status, msg)
	case status != "":
		return fmt.Sprintf("llm: %s: api error (%s)", e.Provider, status)
	default:
		return fmt.Sprintf("llm: %s: api error", e.Provider)
	}
}

// Transient reports whether the error is worth retrying.
func (e *APIError) Transient() bool {
	if e == nil {
		return false
	}
	if e.StatusCode == 429 || e.StatusCode == 408 {
		return true
	}
	return e.StatusCode >= 500 && e.StatusCode <= 599
}

// Transient classifies an error as retryable (timeouts, rate limits,
// 5xx) versus permanent (auth failure, bad request, unknown model).
func Transient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Backoff returns the delay before the given zero-based retry attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt < 0 {
		return 0
	}
	return base * time.Duration(1<<attempt)
}

// SleepWithContext waits for d or until ctx is done.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

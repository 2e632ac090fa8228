package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestAPIErrorError(t *testing.T) {
	t.Parallel()

	{
		err := &APIError{Provider: "openrouter", StatusCode: 429, Message: "rate limited"}
		got := err.Error()
		if !strings.Contains(got, "openrouter") || !strings.Contains(got, "429") || !strings.Contains(got, "rate limited") {
			t.Fatalf("got %q", got)
		}
	}

	{
		err := &APIError{Provider: "ollama", Status: "500 Internal Server Error"}
		got := err.Error()
		if !strings.Contains(got, "500 Internal Server Error") {
			t.Fatalf("got %q", got)
		}
	}

	{
		err := &APIError{Provider: "nearai"}
		if got := err.Error(); got != "llm: nearai: api error" {
			t.Fatalf("got %q", got)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&APIError{StatusCode: 429}, true},
		{&APIError{StatusCode: 408}, true},
		{&APIError{StatusCode: 500}, true},
		{&APIError{StatusCode: 503}, true},
		{&APIError{StatusCode: 599}, true},
		{&APIError{StatusCode: 400}, false},
		{&APIError{StatusCode: 401}, false},
		{&APIError{StatusCode: 404}, false},
		{fmt.Errorf("wrapped: %w", &APIError{StatusCode: 502}), true},
		{fmt.Errorf("wrapped: %w", &APIError{StatusCode: 403}), false},
		{timeoutErr{}, true},
		{errors.New("plain failure"), false},
	}
	for i, tc := range cases {
		if got := Transient(tc.err); got != tc.want {
			t.Fatalf("case %d (%v): got %v, want %v", i, tc.err, got, tc.want)
		}
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	if got := Backoff(base, 0); got != 100*time.Millisecond {
		t.Fatalf("attempt 0: got %v", got)
	}
	if got := Backoff(base, 1); got != 200*time.Millisecond {
		t.Fatalf("attempt 1: got %v", got)
	}
	if got := Backoff(base, 3); got != 800*time.Millisecond {
		t.Fatalf("attempt 3: got %v", got)
	}
	if got := Backoff(0, 2); got != 0 {
		t.Fatalf("zero base: got %v", got)
	}
	if got := Backoff(base, -1); got != 0 {
		t.Fatalf("negative attempt: got %v", got)
	}
}

func TestSleepWithContext(t *testing.T) {
	t.Parallel()

	if err := SleepWithContext(context.Background(), 0); err != nil {
		t.Fatalf("zero duration: %v", err)
	}
	if err := SleepWithContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("short sleep: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepWithContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaAvailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("got path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	if !p.Available(context.Background()) {
		t.Fatalf("expected available")
	}

	srv.Close()
	if p.Available(context.Background()) {
		t.Fatalf("expected unavailable after shutdown")
	}
}

func TestOllamaListModels(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:8b"},{"name":"mistral:7b"}]}`))
	}))
	defer srv.Close()

	models, err := NewOllamaProvider(srv.URL).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[0] != "llama3:8b" || models[1] != "mistral:7b" {
		t.Fatalf("got %v", models)
	}
}

func TestOllamaComplete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("got path %q", r.URL.Path)
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Errorf("streaming should be off")
		}
		if req.Model != "llama3:8b" {
			t.Errorf("got model %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("got messages %+v", req.Messages)
		}

		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message:         ollamaChatMessage{Role: "assistant", Content: "hello there"},
			PromptEvalCount: 12,
			EvalCount:       4,
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	resp, err := p.Complete(context.Background(), &Request{
		Model:  "llama3:8b",
		System: "be brief",
		Prompt: "say hello",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "hello there" {
		t.Fatalf("got text %q", resp.Text)
	}
	if resp.Usage.PromptTokens != 12 || resp.Usage.CompletionTokens != 4 {
		t.Fatalf("got usage %+v", resp.Usage)
	}
}

func TestOllamaCompleteErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL).Complete(context.Background(), &Request{Model: "ghost"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Provider != "ollama" {
		t.Fatalf("got %+v", apiErr)
	}
	if Transient(err) {
		t.Fatalf("404 should be permanent")
	}
}

func TestOllamaCompleteValidation(t *testing.T) {
	t.Parallel()

	p := NewOllamaProvider("")
	if p.baseURL != defaultOllamaURL {
		t.Fatalf("got base url %q", p.baseURL)
	}

	if _, err := p.Complete(context.Background(), nil); err == nil {
		t.Fatalf("nil request: expected error")
	}
	if _, err := p.Complete(context.Background(), &Request{Model: "  "}); err == nil {
		t.Fatalf("missing model: expected error")
	}
}

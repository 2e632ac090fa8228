package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaProvider talks to a local Ollama runtime over its native API.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaProvider builds an Ollama provider for the given base URL.
func NewOllamaProvider(baseURL string) *OllamaProvider {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) Kind() Kind {
	return KindLocal
}

// Available reports whether the Ollama runtime responds to requests.
func (p *OllamaProvider) Available(ctx context.Context) bool {
	if p == nil || p.httpClient == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// ListModels returns the names of locally installed models.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	if p == nil || p.httpClient == nil {
		return nil, errors.New("llm: ollama: nil provider")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("llm: ollama: build request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: ollama: list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.apiError(resp)
	}

	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("llm: ollama: decode models: %w", err)
	}

	out := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		out = append(out, m.Name)
	}
	return out, nil
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message         ollamaChatMessage `json:"message"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
}

func (p *OllamaProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if p == nil || p.httpClient == nil {
		return nil, errors.New("llm: ollama: nil provider")
	}
	if ctx == nil {
		return nil, errors.New("llm: ollama: nil context")
	}
	if req == nil {
		return nil, errors.New("llm: ollama: nil request")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, errors.New("llm: ollama: missing model")
	}

	msgs := make([]ollamaChatMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		msgs = append(msgs, ollamaChatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, ollamaChatMessage{Role: "user", Content: req.Prompt})

	payload := ollamaChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   false,
		Options:  map[string]any{"temperature": req.Temperature},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm: ollama: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: ollama: chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.apiError(resp)
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("llm: ollama: decode response: %w", err)
	}

	return &Response{
		Text: out.Message.Content,
		Usage: Usage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
		},
	}, nil
}

func (p *OllamaProvider) apiError(resp *http.Response) *APIError {
	msg := ""
	if b, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		msg = strings.TrimSpace(string(b))
	}
	return &APIError{
		Provider:   "ollama",
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    msg,
	}
}

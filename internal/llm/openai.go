package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	nearAIBaseURL     = "https://cloud-api.near.ai/v1"
)

// OpenAICompatProvider talks to any OpenAI-compatible chat completion API.
// OpenRouter and NEAR AI Cloud both expose this surface.
type OpenAICompatProvider struct {
	client *openai.Client
	name   string
}

// NewOpenRouterProvider builds a provider for the OpenRouter API.
func NewOpenRouterProvider(apiKey string, baseURL string) *OpenAICompatProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = openRouterBaseURL
	}
	return NewOpenAICompatProvider("openrouter", apiKey, baseURL)
}

// NewNearAIProvider builds a provider for the NEAR AI Cloud API.
func NewNearAIProvider(apiKey string, baseURL string) *OpenAICompatProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = nearAIBaseURL
	}
	return NewOpenAICompatProvider("nearai", apiKey, baseURL)
}

// NewOpenAICompatProvider builds a named provider against an arbitrary
// OpenAI-compatible endpoint.
func NewOpenAICompatProvider(name string, apiKey string, baseURL string) *OpenAICompatProvider {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if v := strings.TrimSpace(baseURL); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}

	return &OpenAICompatProvider{
		client: openai.NewClientWithConfig(cfg),
		name:   strings.ToLower(strings.TrimSpace(name)),
	}
}

func (p *OpenAICompatProvider) Name() string {
	if p == nil {
		return ""
	}
	return p.name
}

func (p *OpenAICompatProvider) Kind() Kind {
	return KindCloud
}

func (p *OpenAICompatProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("llm: openai-compat: nil client")
	}
	if ctx == nil {
		return nil, errors.New("llm: openai-compat: nil context")
	}
	if req == nil {
		return nil, errors.New("llm: openai-compat: nil request")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, errors.New("llm: openai-compat: missing model")
	}

	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, p.normalizeError(err)
	}

	out := &Response{
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
	}
	return out, nil
}

func (p *OpenAICompatProvider) normalizeError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			Provider:   p.name,
			StatusCode: apiErr.HTTPStatusCode,
			Status:     http.StatusText(apiErr.HTTPStatusCode),
			Message:    apiErr.Message,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := ""
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &APIError{
			Provider:   p.name,
			StatusCode: reqErr.HTTPStatusCode,
			Status:     http.StatusText(reqErr.HTTPStatusCode),
			Message:    msg,
		}
	}

	return err
}

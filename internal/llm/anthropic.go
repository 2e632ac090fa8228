package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

const anthropicAPIVersion = "2023-06-01"

// AnthropicProvider sends chat completions through the Anthropic
// messages API.
type AnthropicProvider struct {
	apiKey  string
	baseURL string
}

// NewAnthropicProvider builds an Anthropic provider. An empty apiKey
// falls back to ANTHROPIC_API_KEY.
func NewAnthropicProvider(apiKey string, baseURL string) *AnthropicProvider {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	}
	return &AnthropicProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

func (p *AnthropicProvider) Kind() Kind {
	return KindCloud
}

func (p *AnthropicProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if p == nil {
		return nil, errors.New("llm: anthropic: nil provider")
	}
	if ctx == nil {
		return nil, errors.New("llm: anthropic: nil context")
	}
	if req == nil {
		return nil, errors.New("llm: anthropic: nil request")
	}
	if strings.TrimSpace(p.apiKey) == "" {
		return nil, &APIError{
			Provider:   "anthropic",
			StatusCode: http.StatusUnauthorized,
			Status:     http.StatusText(http.StatusUnauthorized),
			Message:    "missing api key",
		}
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, errors.New("llm: anthropic: missing model")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(req.Prompt),
			},
		}},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system, Type: "text"}}
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}

	sdk := p.newSDKClient()
	msg, err := sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, normalizeAnthropicError(err)
	}
	if msg == nil {
		return nil, errors.New("llm: anthropic: nil response")
	}

	var sb strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}

	return &Response{
		Text: sb.String(),
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func (p *AnthropicProvider) newSDKClient() *anthropic.Client {
	opts := make([]option.RequestOption, 0, 4)
	if base := strings.TrimSpace(p.baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if strings.TrimSpace(p.apiKey) != "" {
		opts = append(opts, option.WithAPIKey(p.apiKey))
	}
	// Retries belong to the run orchestrator, not the transport.
	opts = append(opts, option.WithMaxRetries(0))
	opts = append(opts, option.WithHeader("anthropic-version", anthropicAPIVersion))

	client := anthropic.NewClient(opts...)
	return &client
}

type anthropicErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func normalizeAnthropicError(err error) error {
	if err == nil {
		return nil
	}

	var sdkErr *anthropic.Error
	if !errors.As(err, &sdkErr) {
		return err
	}

	apiErr := &APIError{
		Provider:   "anthropic",
		StatusCode: sdkErr.StatusCode,
	}
	if sdkErr.Response != nil {
		apiErr.Status = sdkErr.Response.Status
	} else if sdkErr.StatusCode != 0 {
		apiErr.Status = fmt.Sprintf("%d %s", sdkErr.StatusCode, http.StatusText(sdkErr.StatusCode))
	}

	if raw := strings.TrimSpace(sdkErr.RawJSON()); raw != "" {
		var env anthropicErrorEnvelope
		if json.Unmarshal([]byte(raw), &env) == nil {
			apiErr.Message = env.Error.Message
		}
	}
	return apiErr
}

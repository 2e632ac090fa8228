package llm

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alfredivory/modelbench/internal/config"
)

type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

func (r *Registry) Register(p Provider) {
	if r == nil || p == nil {
		return
	}
	name := strings.ToLower(strings.TrimSpace(p.Name()))
	if name == "" {
		return
	}
	if r.providers == nil {
		r.providers = make(map[string]Provider)
	}
	r.providers[name] = p
}

func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil || r.providers == nil {
		return nil, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, false
	}
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	if r == nil || r.providers == nil {
		return nil
	}
	out := make([]string, 0, len(r.providers))
	for k := range r.providers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewRegistryFromConfig builds all configured providers.
func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	if cfg == nil {
		return nil, errors.New("llm: nil config")
	}

	r := NewRegistry()
	r.Register(NewOpenRouterProvider(cfg.Providers.OpenRouter.APIKey, cfg.Providers.OpenRouter.BaseURL))
	r.Register(NewNearAIProvider(cfg.Providers.NearAI.APIKey, cfg.Providers.NearAI.BaseURL))
	r.Register(NewAnthropicProvider(cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.BaseURL))
	r.Register(NewOllamaProvider(cfg.Providers.Ollama.URL))
	return r, nil
}

// JudgeProviderFromConfig resolves the provider backing the judge model.
func JudgeProviderFromConfig(cfg *config.Config, reg *Registry) (Provider, error) {
	if cfg == nil {
		return nil, errors.New("llm: nil config")
	}
	if reg == nil {
		return nil, errors.New("llm: nil registry")
	}

	name := strings.TrimSpace(cfg.Evaluator.Provider)
	if name == "" {
		name = "openrouter"
	}
	p, ok := reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("llm: evaluator provider %q not configured (available: %s)",
			name, strings.Join(reg.Names(), ", "))
	}
	return p, nil
}

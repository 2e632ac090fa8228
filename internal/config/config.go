package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yaml"

type Config struct {
	ScenariosDir string          `yaml:"scenarios_dir,omitempty"`
	ModelsFile   string          `yaml:"models_file,omitempty"`
	ResultsDir   string          `yaml:"results_dir,omitempty"`
	Evaluator    EvaluatorConfig `yaml:"evaluator"`
	Run          RunConfig       `yaml:"run"`
	Providers    ProvidersConfig `yaml:"providers"`
	Storage      StorageConfig   `yaml:"storage"`
}

// EvaluatorConfig names the judge model used for llm_judge scoring.
type EvaluatorConfig struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model"`
	Retries  int    `yaml:"retries,omitempty"`
}

type RunConfig struct {
	Concurrency    int            `yaml:"concurrency,omitempty"`
	ProviderLimits map[string]int `yaml:"provider_limits,omitempty"`
	Retries        int            `yaml:"retries,omitempty"`
	Timeout        time.Duration  `yaml:"timeout,omitempty"`
}

// UnmarshalYAML accepts timeout as a Go duration string ("90s", "2m").
func (r *RunConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Concurrency    int            `yaml:"concurrency"`
		ProviderLimits map[string]int `yaml:"provider_limits"`
		Retries        int            `yaml:"retries"`
		Timeout        string         `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	r.Concurrency = raw.Concurrency
	r.ProviderLimits = raw.ProviderLimits
	r.Retries = raw.Retries
	r.Timeout = 0
	if s := strings.TrimSpace(raw.Timeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("run.timeout: %w", err)
		}
		r.Timeout = d
	}
	return nil
}

type ProvidersConfig struct {
	OpenRouter ProviderConfig `yaml:"openrouter,omitempty"`
	NearAI     ProviderConfig `yaml:"nearai,omitempty"`
	Anthropic  ProviderConfig `yaml:"anthropic,omitempty"`
	Ollama     OllamaConfig   `yaml:"ollama,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

type OllamaConfig struct {
	URL string `yaml:"url,omitempty"`
}

type StorageConfig struct {
	Type string `yaml:"type,omitempty"` // "sqlite" (default) or "memory"
	Path string `yaml:"path,omitempty"` // SQLite file path, ":memory:" allowed
}

// Load reads and validates a config file, applying env var overrides.
func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ScenariosDir) == "" {
		c.ScenariosDir = "scenarios"
	}
	if strings.TrimSpace(c.ModelsFile) == "" {
		c.ModelsFile = "models.yaml"
	}
	if strings.TrimSpace(c.ResultsDir) == "" {
		c.ResultsDir = "results"
	}
	if strings.TrimSpace(c.Evaluator.Provider) == "" {
		c.Evaluator.Provider = "openrouter"
	}
	if c.Evaluator.Retries <= 0 {
		c.Evaluator.Retries = 2
	}
	if c.Run.Concurrency <= 0 {
		c.Run.Concurrency = 4
	}
	if c.Run.Retries <= 0 {
		c.Run.Retries = 2
	}
	if c.Run.Timeout <= 0 {
		c.Run.Timeout = 2 * time.Minute
	}
	if strings.TrimSpace(c.Providers.Ollama.URL) == "" {
		c.Providers.Ollama.URL = "http://localhost:11434"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = "results/bench.db"
	}
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")); v != "" {
		c.Providers.OpenRouter.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("NEARAI_API_KEY")); v != "" {
		c.Providers.NearAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		c.Providers.Anthropic.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OLLAMA_URL")); v != "" {
		c.Providers.Ollama.URL = v
	}
}

// Validate reports configuration errors. These are fatal at startup.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil config")
	}
	if strings.TrimSpace(c.Evaluator.Model) == "" {
		return fmt.Errorf("config: evaluator.model is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Evaluator.Provider)) {
	case "openrouter", "nearai", "anthropic", "ollama":
	default:
		return fmt.Errorf("config: unknown evaluator.provider %q", c.Evaluator.Provider)
	}
	for name, limit := range c.Run.ProviderLimits {
		if limit <= 0 {
			return fmt.Errorf("config: run.provider_limits[%s] must be > 0 (got %d)", name, limit)
		}
	}
	return nil
}

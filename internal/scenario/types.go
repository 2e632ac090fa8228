package scenario

import "strings"

// ScoringType selects how a scenario's responses are scored.
type ScoringType string

const (
	ScoringAuto     ScoringType = "auto"
	ScoringLLMJudge ScoringType = "llm_judge"
	ScoringHybrid   ScoringType = "hybrid"
)

// Scenario defines one benchmark test case: a prompt plus its scoring
// rubric.
type Scenario struct {
	ID           string     `yaml:"-"` // file stem, set by the loader
	Name         string     `yaml:"name"`
	Description  string     `yaml:"description,omitempty"`
	SystemPrompt string     `yaml:"system_prompt,omitempty"`
	Prompt       string     `yaml:"prompt"`
	Weight       float64    `yaml:"weight,omitempty"` // contribution to the overall score, default 1
	Evaluation   Evaluation `yaml:"evaluation"`
}

// Evaluation describes the scoring method and its rubric payload.
type Evaluation struct {
	Type        ScoringType `yaml:"type"`
	Checks      []Check     `yaml:"checks,omitempty"`
	Rubric      string      `yaml:"rubric,omitempty"`
	AutoWeight  float64     `yaml:"auto_weight,omitempty"`  // hybrid only, default 0.5
	JudgeWeight float64     `yaml:"judge_weight,omitempty"` // hybrid only, default 0.5
}

// Check is one automated scoring criterion.
type Check struct {
	Type        string            `yaml:"type"`
	Keywords    []string          `yaml:"keywords,omitempty"`     // contains_all
	Patterns    []string          `yaml:"patterns,omitempty"`     // regex_all
	Required    []string          `yaml:"required,omitempty"`     // json_schema: required top-level fields
	Target      string            `yaml:"target,omitempty"`       // exact_match, semantic_match
	Threshold   float64           `yaml:"threshold,omitempty"`    // semantic_match pass threshold, 0-100
	GroundTruth map[string]string `yaml:"ground_truth,omitempty"` // classification_accuracy, binary_decision
	Weight      float64           `yaml:"weight,omitempty"`       // default 1
}

// Label returns a human-readable scenario label.
func (s *Scenario) Label() string {
	if s == nil {
		return ""
	}
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return s.ID
}

// Model identifies one benchmarked model and how to reach it.
type Model struct {
	ID       string   `yaml:"id"`
	Provider string   `yaml:"provider"` // openrouter, nearai, anthropic, ollama
	Pricing  *Pricing `yaml:"pricing,omitempty"`
	Optional bool     `yaml:"optional,omitempty"` // skip silently when the local runtime is down
}

// Pricing is the per-token USD cost for a cloud model.
type Pricing struct {
	Prompt     float64 `yaml:"prompt"`
	Completion float64 `yaml:"completion"`
}

// Local reports whether the model runs on a self-hosted runtime.
func (m *Model) Local() bool {
	return m != nil && strings.EqualFold(strings.TrimSpace(m.Provider), "ollama")
}

// Cost computes the USD cost of a call from token usage. Local models
// are free.
func (m *Model) Cost(promptTokens, completionTokens int) float64 {
	if m == nil || m.Local() || m.Pricing == nil {
		return 0
	}
	return float64(promptTokens)*m.Pricing.Prompt + float64(completionTokens)*m.Pricing.Completion
}

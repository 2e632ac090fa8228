package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var knownProviders = map[string]bool{
	"openrouter": true,
	"nearai":     true,
	"anthropic":  true,
	"ollama":     true,
}

var knownCheckTypes = map[string]bool{
	"json_valid":              true,
	"json_schema":             true,
	"exact_match":             true,
	"semantic_match":          true,
	"contains_all":            true,
	"regex_all":               true,
	"classification_accuracy": true,
	"binary_decision":         true,
}

// LoadScenarios reads every *.yaml scenario in dir, sorted by file name.
// The scenario ID is the file stem.
func LoadScenarios(dir string) ([]*Scenario, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("scenario: empty scenarios dir")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scenario: read dir %q: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	seen := make(map[string]string, len(paths))
	out := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[s.ID]; ok {
			return nil, fmt.Errorf("scenario: duplicate id %q (%s and %s)", s.ID, prev, path)
		}
		seen[s.ID] = path
		out = append(out, s)
	}
	return out, nil
}

// LoadScenario reads and validates a single scenario file.
func LoadScenario(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %q: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("scenario: parse %q: %w", path, err)
	}

	base := filepath.Base(path)
	s.ID = strings.TrimSuffix(base, filepath.Ext(base))
	if s.Weight <= 0 {
		s.Weight = 1
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", path, err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s == nil {
		return fmt.Errorf("nil scenario")
	}
	if strings.TrimSpace(s.Prompt) == "" {
		return fmt.Errorf("missing prompt")
	}

	ev := &s.Evaluation
	switch ev.Type {
	case ScoringAuto:
		if len(ev.Checks) == 0 {
			return fmt.Errorf("scoring type %q requires at least one check", ev.Type)
		}
	case ScoringLLMJudge:
		if strings.TrimSpace(ev.Rubric) == "" {
			return fmt.Errorf("scoring type %q requires a rubric", ev.Type)
		}
	case ScoringHybrid:
		if len(ev.Checks) == 0 {
			return fmt.Errorf("scoring type %q requires at least one check", ev.Type)
		}
		if strings.TrimSpace(ev.Rubric) == "" {
			return fmt.Errorf("scoring type %q requires a rubric", ev.Type)
		}
	case "":
		return fmt.Errorf("missing evaluation.type")
	default:
		return fmt.Errorf("unknown scoring type %q", ev.Type)
	}

	if ev.AutoWeight < 0 || ev.JudgeWeight < 0 {
		return fmt.Errorf("evaluation weights must be >= 0")
	}

	for i := range ev.Checks {
		if err := validateCheck(&ev.Checks[i]); err != nil {
			return fmt.Errorf("check[%d]: %w", i, err)
		}
	}
	return nil
}

func validateCheck(c *Check) error {
	typ := strings.TrimSpace(c.Type)
	if !knownCheckTypes[typ] {
		return fmt.Errorf("unknown check type %q", c.Type)
	}
	if c.Weight < 0 {
		return fmt.Errorf("%s: weight must be >= 0", typ)
	}

	switch typ {
	case "json_schema":
		if len(c.Required) == 0 {
			return fmt.Errorf("json_schema: missing required fields")
		}
	case "exact_match", "semantic_match":
		if strings.TrimSpace(c.Target) == "" {
			return fmt.Errorf("%s: missing target", typ)
		}
	case "contains_all":
		if len(c.Keywords) == 0 {
			return fmt.Errorf("contains_all: missing keywords")
		}
	case "regex_all":
		if len(c.Patterns) == 0 {
			return fmt.Errorf("regex_all: missing patterns")
		}
		for _, p := range c.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("regex_all: bad pattern %q: %v", p, err)
			}
		}
	case "classification_accuracy", "binary_decision":
		if len(c.GroundTruth) == 0 {
			return fmt.Errorf("%s: missing ground_truth", typ)
		}
	}
	return nil
}

type modelsFile struct {
	Models []*Model `yaml:"models"`
}

// LoadModels reads and validates the model roster file.
func LoadModels(path string) ([]*Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read models %q: %w", path, err)
	}

	var f modelsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("scenario: parse models %q: %w", path, err)
	}
	if len(f.Models) == 0 {
		return nil, fmt.Errorf("scenario: %s: no models defined", path)
	}

	seen := make(map[string]bool, len(f.Models))
	for i, m := range f.Models {
		if m == nil {
			return nil, fmt.Errorf("scenario: %s: models[%d] is empty", path, i)
		}
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return nil, fmt.Errorf("scenario: %s: models[%d]: missing id", path, i)
		}
		if seen[id] {
			return nil, fmt.Errorf("scenario: %s: duplicate model id %q", path, id)
		}
		seen[id] = true

		provider := strings.ToLower(strings.TrimSpace(m.Provider))
		if !knownProviders[provider] {
			return nil, fmt.Errorf("scenario: %s: model %q: unknown provider %q", path, id, m.Provider)
		}
		m.Provider = provider

		if !m.Local() && m.Pricing == nil {
			return nil, fmt.Errorf("scenario: %s: model %q: cloud model requires pricing", path, id)
		}
		if m.Pricing != nil && (m.Pricing.Prompt < 0 || m.Pricing.Completion < 0) {
			return nil, fmt.Errorf("scenario: %s: model %q: pricing must be >= 0", path, id)
		}
	}
	return f.Models, nil
}

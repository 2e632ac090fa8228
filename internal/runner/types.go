package runner

import (
	"time"

	"github.com/alfredivory/modelbench/internal/llm"
)

// Result is one scored (model, scenario) cell. Score is nil when the
// provider call or the judge call failed; a genuine 0 means the model
// answered and satisfied nothing.
type Result struct {
	Model           string         `json:"model"`
	Scenario        string         `json:"scenario"`
	Score           *float64       `json:"score"`
	Details         map[string]any `json:"details"`
	Rationale       string         `json:"rationale,omitempty"`
	ResponsePreview string         `json:"response_preview,omitempty"`
	Usage           llm.Usage      `json:"usage"`
	Cost            float64        `json:"cost"`
	DurationS       float64        `json:"duration_s"`
	Error           string         `json:"error,omitempty"`
	ErrorKind       string         `json:"error_kind,omitempty"` // "provider", "judge" or "eval"
}

const (
	ErrorKindProvider = "provider"
	ErrorKindJudge    = "judge"
	ErrorKindEval     = "eval"
)

// Config defines orchestrator behavior.
type Config struct {
	Concurrency    int            // global fan-out limit
	ProviderLimits map[string]int // per-provider concurrency ceilings
	Retries        int            // extra attempts after a transient provider error
	Timeout        time.Duration  // per provider call attempt
	RetryBase      time.Duration  // backoff base, defaults to 1s
	ProgressPath   string         // JSONL checkpoint file, empty disables resume
}

// Filter restricts the model × scenario cross-product by substring
// match. It never changes scoring semantics.
type Filter struct {
	Model    string
	Scenario string
}

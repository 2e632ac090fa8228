package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alfredivory/modelbench/internal/llm"
	"github.com/alfredivory/modelbench/internal/scenario"
)

// Evaluator maps one (scenario, response) pair to a scored outcome using
// the scenario's declared scoring method. Apart from the outbound judge
// call it is a pure function of its inputs.
type Evaluator struct {
	judge        llm.Provider
	judgeModel   string
	judgeRetries int
	retryBase    time.Duration
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithJudgeRetries sets how many extra judge attempts follow an
// unparsable or out-of-range judge reply.
func WithJudgeRetries(n int) Option {
	return func(e *Evaluator) {
		if e == nil || n < 0 {
			return
		}
		e.judgeRetries = n
	}
}

// WithJudgeRetryBase sets the base backoff delay between judge retries.
func WithJudgeRetryBase(d time.Duration) Option {
	return func(e *Evaluator) {
		if e == nil || d <= 0 {
			return
		}
		e.retryBase = d
	}
}

// New builds an Evaluator. The judge provider and model are explicit so
// tests can substitute a deterministic stub.
func New(judge llm.Provider, judgeModel string, opts ...Option) *Evaluator {
	e := &Evaluator{
		judge:        judge,
		judgeModel:   judgeModel,
		judgeRetries: 2,
		retryBase:    defaultJudgeRetryBase,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Outcome is the scored result of one evaluation.
type Outcome struct {
	Score     float64        // 0-100
	Details   map[string]any // per-criterion breakdown, kept for audit
	Rationale string         // judge reasoning, empty for pure auto scoring
}

// Evaluate scores a response for a scenario. A response that fails every
// criterion scores 0; that is a valid outcome, not an error. The error
// return is reserved for judge failures (a JudgeError) and malformed
// scenario definitions — callers must record those with a null score,
// distinguishable from a genuine 0.
func (e *Evaluator) Evaluate(ctx context.Context, sc *scenario.Scenario, response string) (*Outcome, error) {
	if e == nil {
		return nil, errors.New("evaluator: nil evaluator")
	}
	if ctx == nil {
		return nil, errors.New("evaluator: nil context")
	}
	if sc == nil {
		return nil, errors.New("evaluator: nil scenario")
	}

	switch sc.Evaluation.Type {
	case scenario.ScoringAuto:
		score, details, err := e.autoScore(sc, response)
		if err != nil {
			return nil, err
		}
		return &Outcome{Score: score, Details: details}, nil

	case scenario.ScoringLLMJudge:
		score, rationale, err := e.judgeScore(ctx, sc, response)
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Score:     score,
			Details:   map[string]any{"llm_judge": map[string]any{"score": score}},
			Rationale: rationale,
		}, nil

	case scenario.ScoringHybrid:
		autoScore, details, err := e.autoScore(sc, response)
		if err != nil {
			return nil, err
		}
		judgeScore, rationale, err := e.judgeScore(ctx, sc, response)
		if err != nil {
			// Both legs must score for a hybrid result; a failed judge
			// leg fails the pair rather than degrading to auto-only.
			return nil, err
		}

		aw, jw := hybridWeights(&sc.Evaluation)
		combined := autoScore*aw + judgeScore*jw
		details["llm_judge"] = map[string]any{"score": judgeScore}
		details["weights"] = map[string]any{"auto": aw, "judge": jw}
		return &Outcome{Score: combined, Details: details, Rationale: rationale}, nil

	default:
		return nil, fmt.Errorf("evaluator: unknown scoring type %q", sc.Evaluation.Type)
	}
}

// autoScore runs every automated check and combines them by their
// declared weights (equal weighting when none are declared).
func (e *Evaluator) autoScore(sc *scenario.Scenario, response string) (float64, map[string]any, error) {
	details := make(map[string]any, len(sc.Evaluation.Checks))

	var weightedSum, totalWeight float64
	counts := make(map[string]int)
	for i := range sc.Evaluation.Checks {
		c := &sc.Evaluation.Checks[i]
		res, err := runCheck(c, response)
		if err != nil {
			return 0, nil, err
		}

		key := res.Type
		counts[key]++
		if counts[key] > 1 {
			key = fmt.Sprintf("%s_%d", res.Type, counts[res.Type])
		}
		detail := res.Detail
		if detail == nil {
			detail = map[string]any{}
		}
		detail["score"] = res.Score
		details[key] = detail

		weightedSum += res.Score * res.Weight
		totalWeight += res.Weight
	}

	if totalWeight <= 0 {
		return 0, details, nil
	}
	return weightedSum / totalWeight, details, nil
}

func hybridWeights(ev *scenario.Evaluation) (auto, judge float64) {
	auto = ev.AutoWeight
	judge = ev.JudgeWeight
	if auto <= 0 && judge <= 0 {
		return 0.5, 0.5
	}
	if auto < 0 {
		auto = 0
	}
	if judge < 0 {
		judge = 0
	}
	total := auto + judge
	if total <= 0 {
		return 0.5, 0.5
	}
	return auto / total, judge / total
}

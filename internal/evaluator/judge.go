package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/alfredivory/modelbench/internal/llm"
	"github.com/alfredivory/modelbench/internal/scenario"
)

const judgeSystemPrompt = "You are an expert evaluator. Score the AI response against the rubric. " +
	`Return ONLY a JSON object: {"score": <0-100>, "reasoning": "<brief>"}`

const judgeStrictSuffix = "\n\nIMPORTANT: Your previous answer was not parseable. " +
	`Respond with nothing but the JSON object {"score": <integer 0-100>, "reasoning": "<brief>"}.`

const judgePromptTemplate = `## Original Prompt
{{.Prompt}}

## AI Response
{{.Response}}

## Scoring Rubric
{{.Rubric}}

Score this response 0-100.`

var judgePromptTmpl = template.Must(template.New("judge").Parse(judgePromptTemplate))

type judgePromptData struct {
	Prompt   string
	Response string
	Rubric   string
}

type judgeOutput struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// JudgeError records a failed judge call. It is distinct from a low
// model score: a result carrying it has no score at all.
type JudgeError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *JudgeError) Error() string {
	if e == nil {
		return "evaluator: judge error <nil>"
	}
	return fmt.Sprintf("evaluator: judge %s failed after %d attempt(s): %v", e.Model, e.Attempts, e.Err)
}

func (e *JudgeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// judgeScore asks the judge model for a 0-100 score plus rationale.
// Unparsable or out-of-range judge output is retried with a stricter
// prompt up to the configured budget; transient transport failures are
// retried within the same budget. Exhausting the budget is a judge
// error, never a default score.
func (e *Evaluator) judgeScore(ctx context.Context, sc *scenario.Scenario, response string) (float64, string, error) {
	if e.judge == nil {
		return 0, "", &JudgeError{Model: e.judgeModel, Attempts: 0, Err: errors.New("no judge provider configured")}
	}

	var buf strings.Builder
	if err := judgePromptTmpl.Execute(&buf, judgePromptData{
		Prompt:   sc.Prompt,
		Response: response,
		Rubric:   sc.Evaluation.Rubric,
	}); err != nil {
		return 0, "", &JudgeError{Model: e.judgeModel, Attempts: 0, Err: err}
	}
	basePrompt := buf.String()

	attempts := e.judgeRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		prompt := basePrompt
		if attempt > 0 {
			prompt += judgeStrictSuffix
		}

		resp, err := e.judge.Complete(ctx, &llm.Request{
			Model:       e.judgeModel,
			System:      judgeSystemPrompt,
			Prompt:      prompt,
			MaxTokens:   1024,
			Temperature: 0,
		})
		if err != nil {
			lastErr = err
			if llm.Transient(err) && attempt < attempts-1 {
				if serr := llm.SleepWithContext(ctx, llm.Backoff(e.retryBase, attempt)); serr != nil {
					return 0, "", &JudgeError{Model: e.judgeModel, Attempts: attempt + 1, Err: serr}
				}
				continue
			}
			return 0, "", &JudgeError{Model: e.judgeModel, Attempts: attempt + 1, Err: err}
		}
		if resp == nil {
			lastErr = errors.New("nil judge response")
			continue
		}

		var out judgeOutput
		if err := llm.ParseJSON(resp.Text, &out); err != nil {
			lastErr = fmt.Errorf("unparsable judge output: %w", err)
			continue
		}
		if out.Score < 0 || out.Score > 100 {
			lastErr = fmt.Errorf("judge score %v out of range", out.Score)
			continue
		}

		rationale := strings.TrimSpace(out.Reasoning)
		if rationale == "" {
			rationale = "no reasoning provided"
		}
		return out.Score, rationale, nil
	}

	return 0, "", &JudgeError{Model: e.judgeModel, Attempts: attempts, Err: lastErr}
}

const defaultJudgeRetryBase = time.Second

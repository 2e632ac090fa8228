package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alfredivory/modelbench/internal/evaluator"
	"github.com/alfredivory/modelbench/internal/llm"
	"github.com/alfredivory/modelbench/internal/scenario"
)

const (
	defaultRetryBase  = time.Second
	maxRetries        = 3
	responsePreviewN  = 500
	defaultFanOut     = 4
	durationPrecision = 100 // round duration_s to 2 decimals
)

// Runner drives the model × scenario cross-product, producing one
// Result per pair and tolerating partial failure.
type Runner struct {
	registry *llm.Registry
	eval     *evaluator.Evaluator
	cfg      Config
	log      *slog.Logger

	sem          chan struct{}
	providerSems map[string]chan struct{}
}

// New creates a Runner with bounded fan-out and per-provider ceilings.
func New(registry *llm.Registry, eval *evaluator.Evaluator, cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultFanOut
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Retries > maxRetries {
		cfg.Retries = maxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}

	providerSems := make(map[string]chan struct{}, len(cfg.ProviderLimits))
	for name, limit := range cfg.ProviderLimits {
		if limit <= 0 {
			continue
		}
		providerSems[strings.ToLower(strings.TrimSpace(name))] = make(chan struct{}, limit)
	}

	return &Runner{
		registry:     registry,
		eval:         eval,
		cfg:          cfg,
		log:          slog.Default(),
		sem:          make(chan struct{}, cfg.Concurrency),
		providerSems: providerSems,
	}
}

// SetLogger overrides the default logger.
func (r *Runner) SetLogger(log *slog.Logger) {
	if r == nil || log == nil {
		return
	}
	r.log = log
}

type pair struct {
	model    *scenario.Model
	scenario *scenario.Scenario
}

// Run executes the filtered cross-product. Per-pair failures are
// recorded in their Result and never abort the batch; the returned
// error is non-nil only for invalid input or cancellation. Even on
// cancellation the completed results are returned, so a partial run
// still aggregates to a valid report.
func (r *Runner) Run(ctx context.Context, models []*scenario.Model, scenarios []*scenario.Scenario, filter Filter) ([]Result, error) {
	if r == nil {
		return nil, errors.New("runner: nil runner")
	}
	if ctx == nil {
		return nil, errors.New("runner: nil context")
	}
	if r.registry == nil {
		return nil, errors.New("runner: nil provider registry")
	}
	if r.eval == nil {
		return nil, errors.New("runner: nil evaluator")
	}

	models = filterModels(models, filter.Model)
	scenarios = filterScenarios(scenarios, filter.Scenario)
	if len(models) == 0 {
		return nil, errors.New("runner: no models matched filter")
	}
	if len(scenarios) == 0 {
		return nil, errors.New("runner: no scenarios matched filter")
	}

	pairs := make([]pair, 0, len(models)*len(scenarios))
	localAvailable := r.probeLocalProviders(ctx, models)
	skippedOptional := 0
	for _, m := range models {
		if m.Optional && m.Local() && !localAvailable[m.Provider] {
			skippedOptional++
			r.log.Info("skipping optional model, local runtime unavailable", "model", m.ID, "provider", m.Provider)
			continue
		}
		for _, s := range scenarios {
			pairs = append(pairs, pair{model: m, scenario: s})
		}
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("runner: no runnable pairs (%d optional model(s) skipped)", skippedOptional)
	}

	checkpoint, err := openCheckpoint(r.cfg.ProgressPath)
	if err != nil {
		return nil, err
	}
	defer checkpoint.close()

	results := make([]*Result, len(pairs))
	resumed := 0
	for i := range pairs {
		if prev, ok := checkpoint.lookup(pairs[i].model.ID, pairs[i].scenario.ID); ok {
			results[i] = prev
			resumed++
		}
	}
	if resumed > 0 {
		r.log.Info("resuming from checkpoint", "completed", resumed, "total", len(pairs))
	}

	var wg sync.WaitGroup
pairLoop:
	for i := range pairs {
		if results[i] != nil {
			continue
		}

		select {
		case <-ctx.Done():
			break pairLoop
		case r.sem <- struct{}{}:
		}

		wg.Add(1)
		idx := i
		go func() {
			defer wg.Done()
			defer func() { <-r.sem }()

			res := r.runPair(ctx, pairs[idx].model, pairs[idx].scenario)
			results[idx] = res
			checkpoint.record(res)
		}()
	}
	wg.Wait()

	out := make([]Result, 0, len(results))
	complete := true
	for _, res := range results {
		if res == nil {
			complete = false
			continue
		}
		out = append(out, *res)
	}

	if complete {
		checkpoint.remove()
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// runPair owns one provider call plus its evaluation, end to end.
func (r *Runner) runPair(ctx context.Context, m *scenario.Model, sc *scenario.Scenario) *Result {
	res := &Result{
		Model:    m.ID,
		Scenario: sc.ID,
		Details:  map[string]any{},
	}

	provider, ok := r.registry.Get(m.Provider)
	if !ok {
		res.Error = fmt.Sprintf("unknown provider %q", m.Provider)
		res.ErrorKind = ErrorKindProvider
		return res
	}

	start := time.Now()
	resp, err := r.callWithRetry(ctx, provider, &llm.Request{
		Model:       m.ID,
		System:      sc.SystemPrompt,
		Prompt:      sc.Prompt,
		MaxTokens:   4096,
		Temperature: 0,
	})
	res.DurationS = roundDuration(time.Since(start))

	if resp != nil {
		res.Usage = resp.Usage
		res.Cost = m.Cost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	if err != nil {
		res.Error = err.Error()
		res.ErrorKind = ErrorKindProvider
		r.log.Warn("provider call failed", "model", m.ID, "scenario", sc.ID, "error", err)
		return res
	}

	res.ResponsePreview = preview(resp.Text)

	outcome, err := r.eval.Evaluate(ctx, sc, resp.Text)
	if err != nil {
		res.Error = err.Error()
		var je *evaluator.JudgeError
		if errors.As(err, &je) {
			res.ErrorKind = ErrorKindJudge
		} else {
			res.ErrorKind = ErrorKindEval
		}
		r.log.Warn("evaluation failed", "model", m.ID, "scenario", sc.ID, "kind", res.ErrorKind, "error", err)
		return res
	}

	score := outcome.Score
	res.Score = &score
	res.Details = outcome.Details
	res.Rationale = outcome.Rationale
	r.log.Info("pair scored", "model", m.ID, "scenario", sc.ID, "score", score, "duration_s", res.DurationS)
	return res
}

// callWithRetry sends one provider request, retrying transient failures
// with exponential backoff. Permanent errors fail immediately.
func (r *Runner) callWithRetry(ctx context.Context, provider llm.Provider, req *llm.Request) (*llm.Response, error) {
	release, err := r.acquireProvider(ctx, provider.Name())
	if err != nil {
		return nil, err
	}
	defer release()

	for attempt := 0; ; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if r.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		}
		resp, err := provider.Complete(callCtx, req)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return resp, nil
		}
		if !llm.Transient(err) || attempt >= r.cfg.Retries {
			return resp, err
		}
		if ctx.Err() != nil {
			return resp, ctx.Err()
		}
		r.log.Debug("retrying transient provider error", "provider", provider.Name(), "model", req.Model, "attempt", attempt+1, "error", err)
		if serr := llm.SleepWithContext(ctx, llm.Backoff(r.cfg.RetryBase, attempt)); serr != nil {
			return resp, serr
		}
	}
}

// acquireProvider enforces the per-provider concurrency ceiling.
func (r *Runner) acquireProvider(ctx context.Context, name string) (func(), error) {
	sem, ok := r.providerSems[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return func() {}, nil
	}
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// probeLocalProviders checks each local provider once per run.
func (r *Runner) probeLocalProviders(ctx context.Context, models []*scenario.Model) map[string]bool {
	out := make(map[string]bool)
	for _, m := range models {
		if !m.Local() {
			continue
		}
		if _, probed := out[m.Provider]; probed {
			continue
		}
		available := false
		if p, ok := r.registry.Get(m.Provider); ok {
			if lp, ok := p.(llm.LocalProvider); ok {
				available = lp.Available(ctx)
			}
		}
		out[m.Provider] = available
	}
	return out
}

func filterModels(models []*scenario.Model, substr string) []*scenario.Model {
	substr = strings.TrimSpace(substr)
	if substr == "" {
		return models
	}
	out := make([]*scenario.Model, 0, len(models))
	for _, m := range models {
		if strings.Contains(m.ID, substr) {
			out = append(out, m)
		}
	}
	return out
}

func filterScenarios(scenarios []*scenario.Scenario, substr string) []*scenario.Scenario {
	substr = strings.TrimSpace(substr)
	if substr == "" {
		return scenarios
	}
	out := make([]*scenario.Scenario, 0, len(scenarios))
	for _, s := range scenarios {
		if strings.Contains(s.ID, substr) {
			out = append(out, s)
		}
	}
	return out
}

func preview(text string) string {
	if len(text) <= responsePreviewN {
		return text
	}
	runes := []rune(text)
	if len(runes) <= responsePreviewN {
		return text
	}
	return string(runes[:responsePreviewN])
}

func roundDuration(d time.Duration) float64 {
	s := d.Seconds()
	return float64(int64(s*durationPrecision+0.5)) / durationPrecision
}

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/alfredivory/modelbench/internal/evaluator"
	"github.com/alfredivory/modelbench/internal/leaderboard"
	"github.com/alfredivory/modelbench/internal/llm"
	"github.com/alfredivory/modelbench/internal/report"
	"github.com/alfredivory/modelbench/internal/runner"
	"github.com/alfredivory/modelbench/internal/scenario"
	"github.com/alfredivory/modelbench/internal/store"
	"github.com/spf13/cobra"
)

var errRunIncomplete = errors.New("bench: run incomplete")

const progressName = "progress.jsonl"

type runOptions struct {
	all         bool
	model       string
	scenario    string
	concurrency int
	retries     int
	fresh       bool
	output      string
	verbose     bool
}

func newRunCmd(st *cliState) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run the benchmark matrix",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmark(cmd, st, &opts)
		},
	}

	cmd.Flags().BoolVar(&opts.all, "all", false, "run every model against every scenario")
	cmd.Flags().StringVar(&opts.model, "model", "", "only models whose id contains this substring")
	cmd.Flags().StringVar(&opts.scenario, "scenario", "", "only scenarios whose id contains this substring")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "worker count (overrides config)")
	cmd.Flags().IntVar(&opts.retries, "retries", -1, "provider retries per call (overrides config)")
	cmd.Flags().BoolVar(&opts.fresh, "fresh", false, "ignore any previous checkpoint and start over")
	cmd.Flags().StringVar(&opts.output, "output", "", "output format: table|json")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "log each pair as it completes")

	return cmd
}

func runBenchmark(cmd *cobra.Command, st *cliState, opts *runOptions) error {
	if st == nil {
		return fmt.Errorf("run: nil state")
	}
	if opts == nil {
		return fmt.Errorf("run: nil options")
	}
	if st.cfg == nil {
		return fmt.Errorf("run: missing config (internal error)")
	}

	if !opts.all && strings.TrimSpace(opts.model) == "" && strings.TrimSpace(opts.scenario) == "" {
		return fmt.Errorf("run: specify --all or narrow with --model/--scenario")
	}

	output, err := resolveOutputFormat(opts.output)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	scenarios, err := scenario.LoadScenarios(st.cfg.ScenariosDir)
	if err != nil {
		return err
	}
	models, err := scenario.LoadModels(st.cfg.ModelsFile)
	if err != nil {
		return err
	}

	registry, err := llm.NewRegistryFromConfig(st.cfg)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	judge, err := llm.JudgeProviderFromConfig(st.cfg, registry)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	eval := evaluator.New(judge, st.cfg.Evaluator.Model,
		evaluator.WithJudgeRetries(st.cfg.Evaluator.Retries))

	concurrency := st.cfg.Run.Concurrency
	if opts.concurrency > 0 {
		concurrency = opts.concurrency
	}
	retries := st.cfg.Run.Retries
	if opts.retries >= 0 {
		retries = opts.retries
	}

	progressPath := filepath.Join(st.cfg.ResultsDir, progressName)
	if opts.fresh {
		if err := os.Remove(progressPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("run: clear checkpoint: %w", err)
		}
	}

	r := runner.New(registry, eval, runner.Config{
		Concurrency:    concurrency,
		ProviderLimits: st.cfg.Run.ProviderLimits,
		Retries:        retries,
		Timeout:        st.cfg.Run.Timeout,
		ProgressPath:   progressPath,
	})

	logLevel := slog.LevelWarn
	if opts.verbose {
		logLevel = slog.LevelInfo
	}
	r.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel})))

	startedAt := time.Now().UTC()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	filter := runner.Filter{Model: opts.model, Scenario: opts.scenario}
	results, runErr := r.Run(ctx, models, scenarios, filter)
	if runErr != nil && len(results) == 0 {
		return runErr
	}

	finishedAt := time.Now().UTC()

	report.SortResults(results)
	rep := report.Build(finishedAt, results, scenarios)

	path, err := report.Save(st.cfg.ResultsDir, rep)
	if err != nil {
		return err
	}

	if err := saveRunToStore(cmd.Context(), st, rep, models, startedAt, finishedAt, path); err != nil {
		return err
	}

	switch output {
	case formatTable:
		printReportTable(cmd.OutOrStdout(), rep)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nReport: %s\n", path)
	case formatJSON:
		if err := printReportJSON(cmd.OutOrStdout(), rep); err != nil {
			return err
		}
	default:
		return fmt.Errorf("run: internal error: unknown output format %q", output)
	}

	if runErr != nil {
		// Interrupted: the checkpoint stays on disk so the next run resumes.
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "run interrupted, partial results saved (resume with the same command)\n")
		return errRunIncomplete
	}
	return nil
}

func saveRunToStore(ctx context.Context, st *cliState, rep *report.Report, models []*scenario.Model, startedAt, finishedAt time.Time, reportPath string) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("run: missing config (internal error)")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stor, err := store.Open(st.cfg)
	if err != nil {
		return fmt.Errorf("run: open store: %w", err)
	}
	defer stor.Close()

	runID, err := newRunID()
	if err != nil {
		return fmt.Errorf("run: generate run id: %w", err)
	}

	scored := 0
	failed := 0
	for i := range rep.Results {
		if rep.Results[i].Score != nil {
			scored++
		} else {
			failed++
		}
	}

	runRecord := &store.RunRecord{
		ID:          runID,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
		TotalPairs:  len(rep.Results),
		ScoredPairs: scored,
		FailedPairs: failed,
		ReportPath:  reportPath,
		Config: map[string]any{
			"evaluator_model": st.cfg.Evaluator.Model,
			"concurrency":     st.cfg.Run.Concurrency,
			"retries":         st.cfg.Run.Retries,
			"timeout_ms":      st.cfg.Run.Timeout.Milliseconds(),
		},
	}
	if err := stor.SaveRun(ctx, runRecord); err != nil {
		return fmt.Errorf("run: save run: %w", err)
	}

	for i := range rep.Results {
		res := &rep.Results[i]
		rec := &store.ResultRecord{
			ID:        fmt.Sprintf("%s_cell_%d", runID, i+1),
			RunID:     runID,
			Model:     res.Model,
			Scenario:  res.Scenario,
			Score:     res.Score,
			Cost:      res.Cost,
			DurationS: res.DurationS,
			Tokens:    res.Usage.PromptTokens + res.Usage.CompletionTokens,
			ErrorKind: res.ErrorKind,
			Error:     res.Error,
			Details:   res.Details,
			CreatedAt: finishedAt,
		}
		if err := stor.SaveResult(ctx, rec); err != nil {
			return fmt.Errorf("run: save result: %w", err)
		}
	}

	return saveLeaderboard(ctx, st, rep, models, runID, finishedAt)
}

func saveLeaderboard(ctx context.Context, st *cliState, rep *report.Report, models []*scenario.Model, runID string, evalDate time.Time) error {
	providerByModel := make(map[string]string, len(models))
	for _, m := range models {
		providerByModel[m.ID] = m.Provider
	}

	lb, err := openLeaderboardStore(st.cfg)
	if err != nil {
		return fmt.Errorf("run: open leaderboard: %w", err)
	}
	defer lb.Close()

	for _, entry := range rep.Summary.Ranking {
		ms := rep.Summary.Models[entry.Model]
		provider := providerByModel[entry.Model]
		if provider == "" {
			provider = "unknown"
		}
		e := &leaderboard.Entry{
			RunID:        runID,
			Model:        entry.Model,
			Provider:     provider,
			AverageScore: entry.AverageScore,
			TotalCost:    ms.TotalCost,
			Scenarios:    len(ms.Scores),
			Unscored:     ms.Unscored,
			EvalDate:     evalDate,
		}
		if err := lb.Save(ctx, e); err != nil {
			return fmt.Errorf("run: save leaderboard entry: %w", err)
		}
	}
	return nil
}

func newRunID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("run_%s_%x", time.Now().UTC().Format("20060102T150405Z"), buf), nil
}

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/alfredivory/modelbench/internal/report"
	"github.com/spf13/cobra"
)

type reportOptions struct {
	input  string
	output string
}

func newReportCmd(st *cliState) *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:     "report",
		Short:   "Display a saved benchmark report",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showReport(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.input, "input", "", "report file (defaults to the latest)")
	cmd.Flags().StringVar(&opts.output, "output", "", "output format: table|json")

	return cmd
}

func showReport(cmd *cobra.Command, st *cliState, opts *reportOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("report: missing config (internal error)")
	}
	if opts == nil {
		return fmt.Errorf("report: nil options")
	}

	output, err := resolveOutputFormat(opts.output)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	path := strings.TrimSpace(opts.input)
	if path == "" {
		path = filepath.Join(st.cfg.ResultsDir, report.LatestName)
	}

	rep, err := report.Load(path)
	if err != nil {
		return err
	}

	switch output {
	case formatTable:
		printReportTable(cmd.OutOrStdout(), rep)
	case formatJSON:
		if err := printReportJSON(cmd.OutOrStdout(), rep); err != nil {
			return err
		}
	default:
		return fmt.Errorf("report: internal error: unknown output format %q", output)
	}
	return nil
}

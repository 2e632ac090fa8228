package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/alfredivory/modelbench/internal/scenario"
	"github.com/spf13/cobra"
)

func newListCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List configured scenarios and models",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, st)
		},
	}
	return cmd
}

func runList(cmd *cobra.Command, st *cliState) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("list: missing config (internal error)")
	}

	scenarios, err := scenario.LoadScenarios(st.cfg.ScenariosDir)
	if err != nil {
		return err
	}
	models, err := scenario.LoadModels(st.cfg.ModelsFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	_, _ = fmt.Fprintf(out, "Scenarios (%d):\n", len(scenarios))
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSCORING\tCHECKS")
	for _, sc := range scenarios {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", sc.ID, sc.Label(), sc.Evaluation.Type, len(sc.Evaluation.Checks))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "\nModels (%d):\n", len(models))
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROVIDER\tOPTIONAL")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%v\n", m.ID, m.Provider, m.Optional)
	}
	return tw.Flush()
}

package main

import (
	"fmt"
	"strings"

	"github.com/alfredivory/modelbench/api"
	"github.com/alfredivory/modelbench/internal/config"
	"github.com/alfredivory/modelbench/internal/leaderboard"
	"github.com/alfredivory/modelbench/internal/store"
	"github.com/spf13/cobra"
)

func newServeCmd(st *cliState) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve results and the dashboard over HTTP",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(st, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func runServe(st *cliState, addr string) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("serve: missing config (internal error)")
	}

	stor, err := store.Open(st.cfg)
	if err != nil {
		return err
	}
	defer func() { _ = stor.Close() }()

	lb, err := openLeaderboardStore(st.cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lb.Close() }()

	srv, err := api.NewServer(st.cfg, stor, lb)
	if err != nil {
		return err
	}
	return srv.Run(addr)
}

func openLeaderboardStore(cfg *config.Config) (*leaderboard.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("leaderboard: missing config")
	}

	storageType := strings.ToLower(strings.TrimSpace(cfg.Storage.Type))
	if storageType == "" {
		storageType = "sqlite"
	}

	switch storageType {
	case "sqlite":
		path := strings.TrimSpace(cfg.Storage.Path)
		if path == "" {
			path = store.DefaultSQLitePath
		}
		return leaderboard.NewStore(path)
	case "memory":
		return leaderboard.NewStore(":memory:")
	default:
		return nil, fmt.Errorf("leaderboard: unsupported type %q", storageType)
	}
}

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seantiz/compute/internal/config"
	"github.com/seantiz/compute/internal/report"
	"github.com/seantiz/compute/internal/store"
)

const defaultHistoryLimit = 20

func (a *app) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs recorded in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			format, err := report.ParseFormat(cfg.ReportFormat)
			if err != nil {
				return withExitCode(exitInvalidConfig, err)
			}
			return report.WriteRuns(cmd.OutOrStdout(), runs, format)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "maximum number of runs to list, 0 for all")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the report of a past run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			rep, err := s.GetReport(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			if err != nil {
				return err
			}
			format, err := report.ParseFormat(cfg.ReportFormat)
			if err != nil {
				return withExitCode(exitInvalidConfig, err)
			}
			return report.Write(cmd.OutOrStdout(), rep, format)
		},
	}
}

func (a *app) openStore() (config.Config, *store.SQLiteStore, error) {
	cfg, err := a.load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if cfg.DBPath == "" {
		return config.Config{}, nil, withExitCode(exitInvalidConfig, errors.New("no database configured, set --db"))
	}
	s, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, s, nil
}

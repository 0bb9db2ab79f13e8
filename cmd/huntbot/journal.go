package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cory-johannsen/huntbot/internal/config"
	"github.com/cory-johannsen/huntbot/internal/journal"
	"github.com/cory-johannsen/huntbot/internal/storage/postgres"
)

func newJournalCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal RUN_ID",
		Short: "List the loot and escape actions recorded for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be >= 1, got %d", limit)
			}
			runID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parsing run id: %w", err)
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if !cfg.Database.Enabled {
				return fmt.Errorf("database.enabled is false in %s; actions were only logged", opts.configPath)
			}

			ctx := cmd.Context()
			pool, err := postgres.NewPool(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer pool.Close()
			repo := postgres.NewJournalRepository(pool.DB())

			run, err := repo.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			actions, err := repo.ListActions(ctx, runID, limit)
			if err != nil {
				return err
			}
			printJournal(cmd, run, actions)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of actions to list")
	return cmd
}

func printJournal(cmd *cobra.Command, run postgres.Run, actions []journal.Action) {
	out := cmd.OutOrStdout()
	finished := "running"
	if run.FinishedAt != nil {
		finished = run.FinishedAt.Format(time.DateTime)
	}
	fmt.Fprintf(out, "run %s on %q: started %s, finished %s\n\n",
		run.ID, run.Host, run.StartedAt.Format(time.DateTime), finished)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tKIND\tTARGET\tDETAIL\tDURATION")
	for _, a := range actions {
		detail := fmt.Sprintf("%d presses", a.Presses)
		if a.Kind == journal.KindEscape {
			detail = fmt.Sprintf("%d clicks at (%d, %d)", a.Clicks, a.PointX, a.PointY)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.StartedAt.Format(time.TimeOnly), a.Kind, a.Target, detail, a.Duration)
	}
	_ = tw.Flush()
}

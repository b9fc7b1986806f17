package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/hiring-intake/internal/retention"
)

var purgeDryRun bool

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove applications older than the retention window",
	Long:  `Run one retention sweep: delete every application submitted before now minus RETENTION_DAYS together with its attachment.`,
	RunE:  runPurge,
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeDryRun, "dry-run", false, "Report how many records are due without deleting them")
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()
	defer func() { _ = a.logger.Sync() }()

	return a.runPurge(cmd.Context(), cmd.OutOrStdout(), purgeDryRun)
}

func (a *app) runPurge(ctx context.Context, out io.Writer, dryRun bool) error {
	cutoff := a.purge.Cutoff()

	if dryRun {
		due, err := a.records.CountExpiredApplications(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to count expired applications: %w", err)
		}
		fmt.Fprintf(out, "Cutoff: %s\n", cutoff.Format(time.RFC3339))
		fmt.Fprintf(out, "Due for purge: %d\n", due)
		return nil
	}

	res, err := a.purge.Purge(ctx, cutoff)
	if err != nil {
		fmt.Fprintf(out, "Cutoff: %s\n", res.Cutoff.Format(time.RFC3339))
		fmt.Fprintf(out, "Removed: %d before the sweep stopped\n", res.Removed)
		return err
	}
	fmt.Fprintf(out, "Cutoff: %s\n", res.Cutoff.Format(time.RFC3339))
	fmt.Fprintf(out, "Removed: %d in %d batches\n", res.Removed, res.Batches)
	if res.Exhausted {
		fmt.Fprintf(out, "Stopped after %d batches of %d; run again to continue\n", retention.DefaultMaxIterations, retention.DefaultBatchSize)
	}
	return nil
}

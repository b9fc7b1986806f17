package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/hiring-intake/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(cmd, migrateUp)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(cmd, migrateDown)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(cmd, migrateStatus)
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

// migrator is the schema surface of *db.DB.
type migrator interface {
	MigrateUp(ctx context.Context) ([]int64, error)
	MigrateDown(ctx context.Context) (int64, error)
	MigrationStatuses(ctx context.Context) ([]db.MigrationStatus, error)
}

var errNoDatabase = errors.New("migrations need STORE_BACKEND=postgres")

func withDatabase(cmd *cobra.Command, fn func(context.Context, migrator, io.Writer) error) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	database, ok := a.records.(*db.DB)
	if !ok {
		return errNoDatabase
	}
	return fn(cmd.Context(), database, cmd.OutOrStdout())
}

func migrateUp(ctx context.Context, m migrator, out io.Writer) error {
	versions, err := m.MigrateUp(ctx)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(out, "Schema is up to date")
		return nil
	}
	for _, v := range versions {
		fmt.Fprintf(out, "Applied %05d\n", v)
	}
	return nil
}

func migrateDown(ctx context.Context, m migrator, out io.Writer) error {
	version, err := m.MigrateDown(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Rolled back %05d\n", version)
	return nil
}

func migrateStatus(ctx context.Context, m migrator, out io.Writer) error {
	statuses, err := m.MigrationStatuses(ctx)
	if err != nil {
		return err
	}
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied " + s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(out, "%05d  %-40s  %s\n", s.Version, s.Path, state)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the retention scheduler",
	Long:  `Start an HTTP server that accepts applications and exposes the admin API, and purge expired records every PURGE_INTERVAL.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "Apply pending database migrations before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	defer func() { _ = a.logger.Sync() }()

	return a.serve(ctx, serveMigrate)
}

// serve runs the HTTP server and the retention scheduler until ctx is done
// or either of them fails.
func (a *app) serve(ctx context.Context, migrate bool) error {
	if migrate {
		if err := a.migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}

	srv, err := a.newServer()
	if err != nil {
		return err
	}
	scheduler := a.newScheduler()

	a.logger.Info("intake starting",
		zap.String("addr", a.cfg.Addr()),
		zap.String("store", a.cfg.StoreBackend),
		zap.String("blobs", a.cfg.BlobBackend),
		zap.Duration("retention", a.cfg.Retention()),
		zap.Duration("purge_interval", a.cfg.PurgeInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	return g.Wait()
}

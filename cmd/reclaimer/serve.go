package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FairForge/reclaimer/internal/api"
	"github.com/FairForge/reclaimer/internal/engine"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled cleanups and serve health and metrics",
	Long: `Start the daemon: cleanups run for schedule.scopes on schedule.cron, the
policy file is reloaded when it changes, and /healthz, /metrics and the
/api/v1 hold and history routes are served on metrics.listen.

Examples:
  reclaimer serve --config /etc/reclaimer.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.fileSource != nil {
		go func() {
			if err := a.fileSource.Watch(ctx); err != nil {
				a.logger.Error("policy watcher stopped", zap.Error(err))
			}
		}()
	}

	sched := engine.NewScheduler(a.engine, a.policies, a.holds, engine.ScheduleConfig{
		Cron:   a.cfg.Schedule.Cron,
		Scopes: a.cfg.Schedule.Scopes,
		DryRun: a.cfg.Schedule.IsDryRun(),
	}, a.logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	opts := []api.Option{
		api.WithVersion(version),
		api.WithHealthCheck("store", a.storeHealth),
		api.WithHolds(a.holds),
		api.WithPolicies(a.policies),
		api.WithHistory(a.history),
	}
	if a.db != nil {
		opts = append(opts, api.WithHealthCheck("database", a.db.Ping))
	}
	srv := api.NewServer(a.cfg.Metrics.Listen, a.logger, opts...)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

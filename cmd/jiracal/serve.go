package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"jiracal/internal/config"
	appLog "jiracal/internal/log"
	"jiracal/internal/web"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var dryRun, runNow bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Sync on the configured cron schedule until interrupted",
		Long: `Sync on the configured cron schedule until interrupted.

A run that is still going when the next one is due causes that tick to be
skipped, so two runs never touch the calendar at once. When "listen" is
set, /health and /api/status report on the last run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireCalendar(); err != nil {
				return err
			}
			return a.serve(cmd.Context(), dryRun, runNow)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log the planned changes without writing to the calendar")
	cmd.Flags().BoolVar(&runNow, "now", true, "run once immediately instead of waiting for the first tick")
	return cmd
}

// cronLogger routes scheduler messages into the app log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}

func (a *app) serve(ctx context.Context, dryRun, runNow bool) error {
	cfg, loc := a.snapshot()
	status := &web.Status{}

	sched := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)

	var id cron.EntryID
	job := func() {
		started := a.now()
		status.Begin(started)
		appLog.Info("scheduled sync starting")

		res, err := a.syncOnce(ctx, false, dryRun)
		status.Finish(a.now(), res, err)
		if err != nil {
			appLog.Error("scheduled sync failed", err, "elapsed", time.Since(started).String())
		} else {
			appLog.Info("scheduled sync done",
				"created", res.Created,
				"updated", res.Updated,
				"deleted", res.Deleted,
				"elapsed", time.Since(started).String(),
			)
		}
		status.SetNext(sched.Entry(id).Next)
	}

	var err error
	id, err = sched.AddFunc(cfg.Schedule, job)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Schedule, err)
	}

	var srv *http.Server
	if cfg.Listen != "" {
		srv = web.NewServer(cfg, status).HTTPServer()
		go func() {
			appLog.Info("status server listening", "addr", cfg.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLog.Error("status server failed", err, "addr", cfg.Listen)
			}
		}()
	}

	var changes <-chan struct{}
	if _, statErr := os.Stat(a.configPath); statErr == nil {
		watcher, err := config.Watch(a.configPath)
		if err != nil {
			appLog.Warn("config reload disabled", "path", a.configPath, "err", err.Error())
		} else {
			defer watcher.Close()
			changes = watcher.Changes()
		}
	}

	sched.Start()
	status.SetNext(sched.Entry(id).Next)
	appLog.Info("scheduler started", "schedule", cfg.Schedule, "next", sched.Entry(id).Next.Format(time.RFC3339))

	if runNow {
		// Through the wrapped job, so the skip-if-running chain applies.
		go sched.Entry(id).WrappedJob.Run()
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-changes:
			if err := a.reload(); err != nil {
				appLog.Error("config reload failed, keeping previous config", err, "path", a.configPath)
				continue
			}
			appLog.Info("config reloaded", "path", a.configPath)
		}
	}

	stopped := sched.Stop()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLog.Warn("status server shutdown", "err", err.Error())
		}
	}
	<-stopped.Done()
	appLog.Info("scheduler stopped")
	return nil
}

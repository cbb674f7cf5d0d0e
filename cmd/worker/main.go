package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/choreminder/choreminder/internal/app"
	"github.com/choreminder/choreminder/pkg/config"
	"github.com/choreminder/choreminder/pkg/observability"
)

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

func main() {
	logger := observability.LoggerFromEnv()
	logger.Info("starting choreminder worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	// A sweep that outruns its cadence skips the next tick instead of
	// overlapping it; attempt claims and rate counters assume one pass
	// at a time per process.
	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger{logger}),
	))

	// Hourly sweep: push due-soon/overdue lifecycle events first so the
	// rule engine schedules notifications, then dispatch whatever is due.
	_, err = scheduler.AddFunc(cfg.SweepSchedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()

		if n, err := container.LifecycleEmitter.EmitDueSoon(runCtx, cfg.DueSoonLead); err != nil {
			logger.Error("due-soon sweep failed", "error", err)
		} else if n > 0 {
			logger.Info("due-soon events emitted", "count", n)
		}

		if n, err := container.LifecycleEmitter.EmitOverdue(runCtx); err != nil {
			logger.Error("overdue sweep failed", "error", err)
		} else if n > 0 {
			logger.Info("overdue events emitted", "count", n)
		}

		stats, err := container.Dispatcher.RunSweep(runCtx)
		if err != nil {
			logger.Error("dispatch sweep failed", "error", err)
			return
		}
		logger.Info("dispatch sweep finished",
			"claimed", stats.Claimed,
			"sent", stats.Sent,
			"retried", stats.Retried,
			"failed", stats.Failed,
			"escalated", stats.Escalated,
			"deferred", stats.Deferred,
		)
	})
	if err != nil {
		logger.Error("invalid sweep schedule", "schedule", cfg.SweepSchedule, "error", err)
		os.Exit(1)
	}

	// Nightly generation keeps the instance horizon topped up.
	_, err = scheduler.AddFunc(cfg.GenerateSchedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()

		created, err := container.Generator.GenerateAll(runCtx, cfg.GenerateHorizon)
		if err != nil {
			logger.Error("instance generation failed", "error", err)
			return
		}
		logger.Info("instance generation finished", "created", created, "horizon_days", cfg.GenerateHorizon)
	})
	if err != nil {
		logger.Error("invalid generate schedule", "schedule", cfg.GenerateSchedule, "error", err)
		os.Exit(1)
	}

	scheduler.Start()
	logger.Info("schedules registered",
		"sweep", cfg.SweepSchedule,
		"generate", cfg.GenerateSchedule,
	)

	if cfg.WorkerHealthAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":  "ready",
				"entries": len(scheduler.Entries()),
			})
		})

		healthSrv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", "error", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := healthSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down worker")

	<-scheduler.Stop().Done()
	logger.Info("worker stopped")
}

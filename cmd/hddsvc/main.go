package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/hdd-momentum-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/hdd-momentum-service/internal/app"
	"github.com/couchcryptid/hdd-momentum-service/internal/config"
	"github.com/couchcryptid/hdd-momentum-service/internal/observability"
	"github.com/couchcryptid/hdd-momentum-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Publish: true}, logger, metrics)
	if err != nil {
		logger.Error("failed to build service", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, a.Engine, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the cycle scheduler (feature-flagged via AUTO_REFRESH).
	if cfg.AutoRefresh {
		sched := pipeline.NewScheduler(a.Engine, cfg.CycleSchedule, a.Clock, logger, metrics,
			cfg.RetryMinBackoff, cfg.RetryMaxBackoff)
		go func() {
			if err := sched.Run(ctx); err != nil {
				logger.Error("scheduler error", "error", err)
			}
		}()
	} else {
		logger.Info("auto refresh disabled, refreshing on request only")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	a.Close(logger)

	logger.Info("shutdown complete")
}

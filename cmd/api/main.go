// Command api serves the learner-facing HTTP API and realtime feed.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/codeowl/platform/internal/app"
	"github.com/codeowl/platform/pkg/logger"
)

// runPollInterval is how often the API looks for league runs recorded by
// the functions service.
const runPollInterval = 30 * time.Second

func main() {
	cfg, err := app.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	lg := logger.Get().Named("api")

	container, err := app.New(cfg)
	if err != nil {
		lg.Fatal("failed to initialize", zap.Error(err))
	}
	defer container.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := setupServices(container)
	svc.hub.Start(ctx)
	go svc.sessions.Run(ctx, cfg.Auth.SweepEvery)
	go container.Leagues.WatchRuns(ctx, runPollInterval)

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      setupRouter(container, svc),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info("starting API server", zap.String("addr", server.Addr), zap.String("env", cfg.Server.Env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	lg.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("server shutdown error", zap.Error(err))
	}
	svc.runner.Shutdown(shutdownCtx)
	svc.hub.Stop()
	cancel()

	lg.Info("shutdown complete")
}

// Command functions serves the stateless functions: the weekly league
// trigger and processor, the code execution proxy and admin verification.
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
	"github.com/codeowl/platform/internal/functions"
	"github.com/codeowl/platform/pkg/logger"
)

func main() {
	cfg, err := app.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	lg := logger.Get().Named("functions")

	container, err := app.New(cfg)
	if err != nil {
		lg.Fatal("failed to initialize", zap.Error(err))
	}
	defer container.Close() //nolint:errcheck

	registry := functions.NewRegistry()
	registry.Register(functions.ProcessWeeklyLeagues, func(ctx context.Context) (interface{}, error) {
		return container.Leagues.ProcessWeekly(ctx)
	})

	piston := functions.NewPistonClient(cfg.Functions.PistonURL, cfg.Functions.Language, cfg.Functions.Version, cfg.Functions.ExecTimeout)
	srv := functions.NewServer(cfg.Functions, cfg.Auth.AdminSecret, registry, piston)

	mux := http.NewServeMux()
	mux.Handle("/metrics", container.Metrics.Handler())
	mux.Handle("/", srv.Router())

	server := &http.Server{
		Addr:         cfg.FunctionsAddress(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Functions.ForwardTimeout + cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info("starting functions server", zap.String("addr", server.Addr), zap.Strings("procedures", registry.Names()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	lg.Info("shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		lg.Error("server shutdown error", zap.Error(err))
	}
	lg.Info("shutdown complete")
}

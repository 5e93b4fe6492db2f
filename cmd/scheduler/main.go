// Command scheduler fires the weekly league trigger on its cron schedule.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/codeowl/platform/internal/app"
	"github.com/codeowl/platform/internal/scheduler"
	"github.com/codeowl/platform/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "fire the trigger once and exit")
	flag.Parse()

	cfg, err := app.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	lg := logger.Get().Named("scheduler")

	trigger := scheduler.NewHTTPTrigger(cfg.Scheduler.TriggerURL, cfg.Functions.CronSecret, cfg.Functions.ForwardTimeout)
	s := scheduler.New(trigger, cfg.Functions.ForwardTimeout)

	if *once {
		if err := s.RunNow(context.Background()); err != nil {
			lg.Fatal("trigger failed", zap.Error(err))
		}
		lg.Info("trigger fired")
		return
	}

	if !cfg.Scheduler.Enabled {
		lg.Warn("scheduler disabled, set SCHEDULER_ENABLED=true to run it")
		return
	}
	if err := s.Start(cfg.Scheduler); err != nil {
		lg.Fatal("failed to start scheduler", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	lg.Info("shutting down", zap.String("signal", sig.String()))
	s.Stop()
}

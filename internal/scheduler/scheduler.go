// Package scheduler fires the weekly league trigger on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/codeowl/platform/pkg/config"
	"github.com/codeowl/platform/pkg/logger"
)

// Trigger starts one weekly run somewhere else.
type Trigger interface {
	Fire(ctx context.Context) error
}

// HTTPTrigger calls the stateless weekly-trigger endpoint.
type HTTPTrigger struct {
	url    string
	secret string
	http   *http.Client
}

func NewHTTPTrigger(url, cronSecret string, timeout time.Duration) *HTTPTrigger {
	return &HTTPTrigger{
		url:    url,
		secret: cronSecret,
		http:   &http.Client{Timeout: timeout},
	}
}

// Fire POSTs to the trigger endpoint. Any non-2xx status is an error.
func (t *HTTPTrigger) Fire(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, nil)
	if err != nil {
		return fmt.Errorf("build trigger request: %w", err)
	}
	if t.secret != "" {
		req.Header.Set("Authorization", "Bearer "+t.secret)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("call trigger: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("trigger returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

// Scheduler runs the trigger on the configured cron expression in UTC.
type Scheduler struct {
	scheduler *gocron.Scheduler
	trigger   Trigger
	timeout   time.Duration
	log       *logger.Logger
}

func New(trigger Trigger, timeout time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		trigger:   trigger,
		timeout:   timeout,
		log:       logger.Get().Named("scheduler"),
	}
}

// Start registers the weekly job and runs the scheduler in the background.
func (s *Scheduler) Start(cfg config.SchedulerConfig) error {
	job, err := s.scheduler.Cron(cfg.Cron).Do(s.fire)
	if err != nil {
		return fmt.Errorf("schedule weekly trigger %q: %w", cfg.Cron, err)
	}
	s.scheduler.StartAsync()
	s.log.Info("weekly league trigger scheduled",
		zap.String("cron", cfg.Cron),
		zap.Time("next_run", job.NextRun()))
	return nil
}

// RunNow fires the trigger once outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.trigger.Fire(ctx)
}

// NextRun reports when the weekly job fires next.
func (s *Scheduler) NextRun() time.Time {
	_, next := s.scheduler.NextRun()
	return next
}

// Stop terminates the scheduler and waits for a running job.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) fire() {
	start := time.Now()
	if err := s.RunNow(context.Background()); err != nil {
		// No retry: the next firing or a manual run picks it up.
		s.log.Error("weekly league trigger failed", zap.Error(err))
		return
	}
	s.log.Info("weekly league trigger fired", zap.Duration("took", time.Since(start)))
}

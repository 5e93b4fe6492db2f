package services

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codeowl/platform/internal/common/database"
	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/common/metrics"
	"github.com/codeowl/platform/internal/common/validation"
	"github.com/codeowl/platform/internal/league/models"
	"github.com/codeowl/platform/internal/league/ranking"
	"github.com/codeowl/platform/internal/league/repository"
	"github.com/codeowl/platform/pkg/logger"
)

const (
	// LockTTL bounds how long a crashed run can keep others out.
	LockTTL = 5 * time.Minute

	maxPageSize = 100
)

// Notifier receives the outcome of a weekly run for the realtime feed.
type Notifier interface {
	LeagueProcessed(summary *repository.Summary)
}

type noopNotifier struct{}

func (noopNotifier) LeagueProcessed(*repository.Summary) {}

// ThresholdInput is the admin payload for one tier's thresholds.
type ThresholdInput struct {
	PromotionXPThreshold *int `json:"promotion_xp_threshold" validate:"omitempty,min=0"`
	DemotionXPThreshold  *int `json:"demotion_xp_threshold" validate:"omitempty,min=0"`
}

// LeagueService runs the weekly ranking and serves league reads.
type LeagueService struct {
	repo      *repository.LeagueRepository
	locks     *repository.LockRepository
	procedure *repository.Procedure
	notifier  Notifier
	metrics   *metrics.Metrics
	log       *logger.Logger
	now       func() time.Time
}

func NewLeagueService(repo *repository.LeagueRepository, locks *repository.LockRepository, procedure *repository.Procedure, m *metrics.Metrics) *LeagueService {
	return &LeagueService{
		repo:      repo,
		locks:     locks,
		procedure: procedure,
		notifier:  noopNotifier{},
		metrics:   m,
		log:       logger.Get().Named("league"),
		now:       time.Now,
	}
}

// SetNotifier attaches the realtime feed.
func (s *LeagueService) SetNotifier(n Notifier) {
	if n == nil {
		n = noopNotifier{}
	}
	s.notifier = n
}

// ProcessWeekly runs the weekly ranking under the lease lock. A firing
// that overlaps a running one gets a Conflict.
func (s *LeagueService) ProcessWeekly(ctx context.Context) (*repository.Summary, error) {
	runID := uuid.NewString()
	log := s.log.With(zap.String("run_id", runID))

	acquired, err := s.locks.Acquire(ctx, repository.ProcedureName, runID, LockTTL)
	if err != nil {
		s.observeRun("failed")
		return nil, errors.Internal("failed to acquire league lock", err.Error())
	}
	if !acquired {
		s.observeRun("busy")
		log.Warn("weekly league run already in progress")
		return nil, errors.Conflict("weekly league processing is already running")
	}
	defer func() {
		// The run may have used up ctx; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.locks.Release(releaseCtx, repository.ProcedureName, runID); err != nil {
			log.Error("failed to release league lock", zap.Error(err))
		}
	}()

	start := s.now()
	summary, err := s.procedure.ProcessWeeklyLeagues(ctx, runID, start)
	if stderrors.Is(err, repository.ErrAlreadyProcessed) {
		summary = &repository.Summary{RunID: runID, WeekEnding: ranking.WeekEnding(start), AlreadyProcessed: true}
		err = nil
	}
	if err != nil {
		s.observeRun("failed")
		log.Error("weekly league run failed", zap.Error(err))
		return nil, errors.Internal("failed to process weekly leagues", err.Error())
	}

	if summary.AlreadyProcessed {
		s.observeRun("already_processed")
		log.Info("week already processed", zap.String("week_ending", summary.WeekEnding))
		return summary, nil
	}

	s.observeRun("processed")
	if s.metrics != nil {
		s.metrics.LeagueTransitions.WithLabelValues(string(models.ActionPromoted)).Add(float64(summary.Promoted))
		s.metrics.LeagueTransitions.WithLabelValues(string(models.ActionDemoted)).Add(float64(summary.Demoted))
	}
	log.Info("weekly leagues processed",
		zap.String("week_ending", summary.WeekEnding),
		zap.Int("promoted", summary.Promoted),
		zap.Int("demoted", summary.Demoted),
		zap.Int("reset", summary.Reset),
		zap.Duration("took", time.Since(start)))

	s.notifier.LeagueProcessed(summary)
	return summary, nil
}

func (s *LeagueService) observeRun(outcome string) {
	if s.metrics != nil {
		s.metrics.LeagueRuns.WithLabelValues(outcome).Inc()
	}
}

// Standings ranks a tier by weekly XP. limit <= 0 returns everyone.
func (s *LeagueService) Standings(ctx context.Context, tier models.Tier, limit int) ([]ranking.Standing, error) {
	if !tier.Valid() {
		return nil, errors.Validation("unknown league", string(tier))
	}
	members, err := s.repo.Members(ctx, tier, limit)
	if err != nil {
		return nil, errors.Internal("failed to load standings", err.Error())
	}
	return ranking.Rank(members), nil
}

// History pages through a user's promotions and demotions.
func (s *LeagueService) History(ctx context.Context, userID string, page, pageSize int) (*database.PaginatedResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = 20
	}
	result, err := s.repo.History(ctx, userID, page, pageSize)
	if err != nil {
		return nil, errors.Internal("failed to load league history", err.Error())
	}
	return result, nil
}

func (s *LeagueService) Thresholds(ctx context.Context) ([]models.Threshold, error) {
	th, err := s.repo.Thresholds(ctx)
	if err != nil {
		return nil, errors.Internal("failed to load thresholds", err.Error())
	}
	return th, nil
}

// UpdateThreshold replaces one tier's thresholds. The top tier cannot
// promote and the bottom tier cannot demote.
func (s *LeagueService) UpdateThreshold(ctx context.Context, tier models.Tier, in ThresholdInput) (*models.Threshold, error) {
	if !tier.Valid() {
		return nil, errors.Validation("unknown league", string(tier))
	}
	if errs := validation.Validate(in); len(errs) > 0 {
		return nil, errors.Validation("invalid thresholds", validation.Summary(errs))
	}
	if _, ok := tier.Next(); !ok && in.PromotionXPThreshold != nil {
		return nil, errors.Validation("invalid thresholds", "the top league has no promotion threshold")
	}
	if _, ok := tier.Prev(); !ok && in.DemotionXPThreshold != nil {
		return nil, errors.Validation("invalid thresholds", "the bottom league has no demotion threshold")
	}
	if in.PromotionXPThreshold != nil && in.DemotionXPThreshold != nil &&
		*in.PromotionXPThreshold <= *in.DemotionXPThreshold {
		return nil, errors.Validation("invalid thresholds", "promotion threshold must be greater than demotion threshold")
	}

	th := &models.Threshold{
		League:               tier,
		PromotionXPThreshold: in.PromotionXPThreshold,
		DemotionXPThreshold:  in.DemotionXPThreshold,
		UpdatedAt:            s.now().UTC(),
	}
	if err := s.repo.UpsertThreshold(ctx, th); err != nil {
		return nil, errors.Internal("failed to save thresholds", err.Error())
	}
	s.log.Info("league thresholds updated", zap.String("league", string(tier)))
	return th, nil
}

// LastRun reports the most recent processed week, or nil.
func (s *LeagueService) LastRun(ctx context.Context) (*models.Run, error) {
	return s.repo.LastRun(ctx)
}

// WatchRuns forwards runs recorded by another process to the notifier.
// The run already present when it starts is not replayed.
func (s *LeagueService) WatchRuns(ctx context.Context, every time.Duration) {
	var seen string
	if run, err := s.repo.LastRun(ctx); err == nil && run != nil {
		seen = run.RunID
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seen = s.pollRun(ctx, seen)
		}
	}
}

func (s *LeagueService) pollRun(ctx context.Context, seen string) string {
	run, err := s.repo.LastRun(ctx)
	if err != nil {
		s.log.Warn("failed to poll league runs", zap.Error(err))
		return seen
	}
	if run == nil || run.RunID == seen {
		return seen
	}
	s.notifier.LeagueProcessed(&repository.Summary{
		RunID:       run.RunID,
		WeekEnding:  run.WeekEnding,
		Promoted:    run.Promoted,
		Demoted:     run.Demoted,
		Reset:       run.Reset,
		CompletedAt: run.CompletedAt,
	})
	return run.RunID
}

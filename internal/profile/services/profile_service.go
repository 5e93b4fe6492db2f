package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/common/metrics"
	"github.com/codeowl/platform/internal/profile/models"
	"github.com/codeowl/platform/internal/profile/repository"
	"github.com/codeowl/platform/pkg/config"
	"github.com/codeowl/platform/pkg/logger"
)

// Notifier receives profile changes for the realtime feed.
type Notifier interface {
	ProfileUpdated(p *models.UserProfile)
}

type noopNotifier struct{}

func (noopNotifier) ProfileUpdated(*models.UserProfile) {}

// ProfileService implements the heart, gem and streak economy.
type ProfileService struct {
	repo     *repository.ProfileRepository
	economy  config.EconomyConfig
	notifier Notifier
	metrics  *metrics.Metrics
	log      *logger.Logger
}

func NewProfileService(repo *repository.ProfileRepository, economy config.EconomyConfig, m *metrics.Metrics) *ProfileService {
	return &ProfileService{
		repo:     repo,
		economy:  economy,
		notifier: noopNotifier{},
		metrics:  m,
		log:      logger.Get().Named("profile"),
	}
}

// SetNotifier attaches the realtime feed.
func (s *ProfileService) SetNotifier(n Notifier) {
	if n == nil {
		n = noopNotifier{}
	}
	s.notifier = n
}

// Bootstrap returns the profile for a freshly logged in user, creating it
// on first login.
func (s *ProfileService) Bootstrap(ctx context.Context, userID, username string) (*models.UserProfile, error) {
	p, err := s.repo.Ensure(ctx, userID, username)
	if err != nil {
		return nil, errors.Internal("failed to load profile", err.Error())
	}
	return p, nil
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, wrap(err, "failed to load profile")
	}
	return p, nil
}

// DeductHeart takes one heart for an incorrect answer. At zero hearts it
// is a no-op.
func (s *ProfileService) DeductHeart(ctx context.Context, userID string) error {
	taken, err := s.repo.DeductHeart(ctx, userID)
	if err != nil {
		return errors.Internal("failed to deduct heart", err.Error())
	}
	if !taken {
		s.log.Debug("heart deduction skipped, no hearts left", zap.String("user_id", userID))
		return nil
	}
	if s.metrics != nil {
		s.metrics.HeartDeductions.Inc()
	}
	s.publish(ctx, userID)
	return nil
}

// RefillHearts restores hearts to the maximum for heart_refill_cost gems.
func (s *ProfileService) RefillHearts(ctx context.Context, userID string) (*models.UserProfile, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	max := s.economy.MaxHearts
	if p.Hearts >= max {
		return nil, errors.Conflict("hearts are already full")
	}
	if p.Gems < s.economy.HeartRefillCost {
		return nil, errors.Unprocessable("not enough gems",
			fmt.Sprintf("refill costs %d gems, you have %d", s.economy.HeartRefillCost, p.Gems))
	}

	ok, err := s.repo.RefillHearts(ctx, userID, max, s.economy.HeartRefillCost)
	if err != nil {
		return nil, errors.Internal("failed to refill hearts", err.Error())
	}
	if !ok {
		return nil, errors.Conflict("profile changed, please retry")
	}

	s.log.Info("hearts refilled", zap.String("user_id", userID), zap.Int("cost", s.economy.HeartRefillCost))
	return s.publish(ctx, userID), nil
}

// BuyStreakFreeze adds one streak freeze for streak_freeze_cost gems.
func (s *ProfileService) BuyStreakFreeze(ctx context.Context, userID string) (*models.UserProfile, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if p.StreakFreezes >= s.economy.MaxStreakFreezes {
		return nil, errors.Conflict(fmt.Sprintf("you already hold %d streak freezes", p.StreakFreezes))
	}
	if p.Gems < s.economy.StreakFreezeCost {
		return nil, errors.Unprocessable("not enough gems",
			fmt.Sprintf("a streak freeze costs %d gems, you have %d", s.economy.StreakFreezeCost, p.Gems))
	}

	ok, err := s.repo.AddStreakFreeze(ctx, userID, s.economy.MaxStreakFreezes, s.economy.StreakFreezeCost)
	if err != nil {
		return nil, errors.Internal("failed to buy streak freeze", err.Error())
	}
	if !ok {
		return nil, errors.Conflict("profile changed, please retry")
	}

	return s.publish(ctx, userID), nil
}

// Refresh re-reads a profile and pushes it to the realtime feed.
func (s *ProfileService) Refresh(ctx context.Context, userID string) {
	s.publish(ctx, userID)
}

func (s *ProfileService) publish(ctx context.Context, userID string) *models.UserProfile {
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		s.log.Warn("profile reload failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	s.notifier.ProfileUpdated(p)
	return p
}

func wrap(err error, msg string) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.Internal(msg, err.Error())
}

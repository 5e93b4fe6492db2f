package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codeowl/platform/internal/common/database"
	"github.com/codeowl/platform/internal/common/errors"
	leaguemodels "github.com/codeowl/platform/internal/league/models"
	"github.com/codeowl/platform/internal/profile/models"
)

// ProfileRepository reads and mutates user profiles.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *ProfileRepository) WithTx(tx *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: tx}
}

// Ensure returns the profile for userID, creating it with the starting
// economy on first sight.
func (r *ProfileRepository) Ensure(ctx context.Context, userID, username string) (*models.UserProfile, error) {
	profile := &models.UserProfile{
		UserID:   userID,
		Username: username,
		Hearts:   models.MaxHearts,
		League:   leaguemodels.Bronze,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(profile).Error
	if err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	return r.Get(ctx, userID)
}

// Get retrieves a profile by user id.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if database.IsNotFound(err) {
		return nil, errors.NotFound("profile")
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &profile, nil
}

// DeductHeart removes one heart unless the profile is already at zero.
// It reports whether a heart was taken.
func (r *ProfileRepository) DeductHeart(ctx context.Context, userID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("user_id = ? AND hearts > 0", userID).
		Update("hearts", gorm.Expr("hearts - 1"))
	if result.Error != nil {
		return false, fmt.Errorf("deduct heart: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// RefillHearts sets hearts to max and charges cost gems, provided the
// profile is below max and can afford it.
func (r *ProfileRepository) RefillHearts(ctx context.Context, userID string, max, cost int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("user_id = ? AND hearts < ? AND gems >= ?", userID, max, cost).
		Updates(map[string]interface{}{
			"hearts": max,
			"gems":   gorm.Expr("gems - ?", cost),
		})
	if result.Error != nil {
		return false, fmt.Errorf("refill hearts: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// AddStreakFreeze buys one freeze for cost gems while below max.
func (r *ProfileRepository) AddStreakFreeze(ctx context.Context, userID string, max, cost int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("user_id = ? AND streak_freezes < ? AND gems >= ?", userID, max, cost).
		Updates(map[string]interface{}{
			"streak_freezes": gorm.Expr("streak_freezes + 1"),
			"gems":           gorm.Expr("gems - ?", cost),
		})
	if result.Error != nil {
		return false, fmt.Errorf("add streak freeze: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// AwardXP adds xp to both the lifetime and weekly totals.
func (r *ProfileRepository) AwardXP(ctx context.Context, userID string, xp int) error {
	if xp <= 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"xp":        gorm.Expr("xp + ?", xp),
			"weekly_xp": gorm.Expr("weekly_xp + ?", xp),
		}).Error
	if err != nil {
		return fmt.Errorf("award xp: %w", err)
	}
	return nil
}

// SaveStreak writes the streak fields of a profile.
func (r *ProfileRepository) SaveStreak(ctx context.Context, userID string, s models.Streak) error {
	err := r.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"streak_count":     s.Count,
			"longest_streak":   s.Longest,
			"streak_freezes":   s.Freezes,
			"last_active_date": s.LastActiveDate,
		}).Error
	if err != nil {
		return fmt.Errorf("save streak: %w", err)
	}
	return nil
}

// AddGems credits gems earned from lesson stars.
func (r *ProfileRepository) AddGems(ctx context.Context, userID string, gems int) error {
	if gems <= 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("user_id = ?", userID).
		Update("gems", gorm.Expr("gems + ?", gems)).Error
	if err != nil {
		return fmt.Errorf("add gems: %w", err)
	}
	return nil
}

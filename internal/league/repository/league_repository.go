package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codeowl/platform/internal/common/database"
	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/league/models"
	"github.com/codeowl/platform/internal/league/ranking"
	profilemodels "github.com/codeowl/platform/internal/profile/models"
)

// LeagueRepository serves league reads and threshold administration.
type LeagueRepository struct {
	db *gorm.DB
}

func NewLeagueRepository(db *gorm.DB) *LeagueRepository {
	return &LeagueRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *LeagueRepository) WithTx(tx *gorm.DB) *LeagueRepository {
	return &LeagueRepository{db: tx}
}

// Members returns the members of a tier in ranking order.
func (r *LeagueRepository) Members(ctx context.Context, tier models.Tier, limit int) ([]ranking.Member, error) {
	var members []ranking.Member
	query := r.db.WithContext(ctx).Model(&profilemodels.UserProfile{}).
		Select("user_id, username, league, weekly_xp").
		Where("league = ?", tier).
		Order("weekly_xp DESC, user_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(&members).Error; err != nil {
		return nil, fmt.Errorf("list league members: %w", err)
	}
	return members, nil
}

// History returns a user's league history, newest first.
func (r *LeagueRepository) History(ctx context.Context, userID string, page, pageSize int) (*database.PaginatedResult, error) {
	var total int64
	base := r.db.WithContext(ctx).Model(&models.HistoryEntry{}).Where("user_id = ?", userID)
	if err := base.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count league history: %w", err)
	}

	var entries []*models.HistoryEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(pageSize).
		Offset(database.Offset(page, pageSize)).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list league history: %w", err)
	}

	return database.NewPaginatedResult(entries, total, page, pageSize), nil
}

// Thresholds returns the stored thresholds in tier order, falling back to
// the defaults for tiers without a row.
func (r *LeagueRepository) Thresholds(ctx context.Context) ([]models.Threshold, error) {
	var rows []models.Threshold
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list thresholds: %w", err)
	}

	return models.MergeThresholds(rows), nil
}

// UpsertThreshold writes the thresholds of one tier.
func (r *LeagueRepository) UpsertThreshold(ctx context.Context, th *models.Threshold) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "league"}},
			DoUpdates: clause.AssignmentColumns([]string{"promotion_xp_threshold", "demotion_xp_threshold", "updated_at"}),
		}).
		Create(th).Error
	if err != nil {
		return fmt.Errorf("upsert threshold: %w", err)
	}
	return nil
}

// LastRun returns the most recent processed week, or nil.
func (r *LeagueRepository) LastRun(ctx context.Context) (*models.Run, error) {
	var run models.Run
	err := r.db.WithContext(ctx).Order("week_ending DESC").First(&run).Error
	if database.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Internal("failed to load last league run", err.Error())
	}
	return &run, nil
}

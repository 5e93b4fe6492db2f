package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codeowl/platform/internal/common/database"
	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/lesson/models"
)

// LessonRepository reads the catalog and stores per-user lesson progress.
type LessonRepository struct {
	db *gorm.DB
}

func NewLessonRepository(db *gorm.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *LessonRepository) WithTx(tx *gorm.DB) *LessonRepository {
	return &LessonRepository{db: tx}
}

// ========== CATALOG ==========

// ListLanguages returns all languages in catalog order
func (r *LessonRepository) ListLanguages(ctx context.Context) ([]*models.Language, error) {
	var languages []*models.Language
	err := r.db.WithContext(ctx).Order("position ASC, id ASC").Find(&languages).Error
	if err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	return languages, nil
}

// ListUnits returns the units of a language with their lessons
func (r *LessonRepository) ListUnits(ctx context.Context, languageID uint) ([]*models.Unit, error) {
	var units []*models.Unit
	err := r.db.WithContext(ctx).
		Where("language_id = ?", languageID).
		Preload("Lessons", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Order("position ASC, id ASC").
		Find(&units).Error
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	return units, nil
}

// GetLesson loads a lesson with its questions in position order
func (r *LessonRepository) GetLesson(ctx context.Context, id uint) (*models.Lesson, error) {
	var lesson models.Lesson
	err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&lesson, id).Error
	if database.IsNotFound(err) {
		return nil, errors.NotFound("lesson")
	}
	if err != nil {
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	return &lesson, nil
}

// ========== PROGRESS ==========

// GetProgress returns the saved attempt, or nil when there is none.
func (r *LessonRepository) GetProgress(ctx context.Context, userID string, lessonID uint) (*models.PartialProgress, error) {
	var progress models.PartialProgress
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		First(&progress).Error
	if database.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return &progress, nil
}

// SaveProgress upserts the attempt for (user, lesson). The last write wins.
func (r *LessonRepository) SaveProgress(ctx context.Context, p *models.PartialProgress) error {
	p.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "lesson_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"current_question_index",
				"answered_questions",
				"results",
				"xp_earned",
				"correct_answers",
				"updated_at",
			}),
		}).
		Create(p).Error
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// DeleteProgress clears the saved attempt.
func (r *LessonRepository) DeleteProgress(ctx context.Context, userID string, lessonID uint) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Delete(&models.PartialProgress{}).Error
	if err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	return nil
}

// ========== COMPLETIONS ==========

// HasCompletion reports whether the user already finished the lesson.
func (r *LessonRepository) HasCompletion(ctx context.Context, userID string, lessonID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.LessonCompletion{}).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check completion: %w", err)
	}
	return count > 0, nil
}

// CreateCompletion inserts the completion record. A second completion of
// the same lesson is a Conflict.
func (r *LessonRepository) CreateCompletion(ctx context.Context, c *models.LessonCompletion) error {
	err := r.db.WithContext(ctx).Create(c).Error
	if database.IsDuplicateKey(err) {
		return errors.Conflict("lesson already completed")
	}
	if err != nil {
		return fmt.Errorf("create completion: %w", err)
	}
	return nil
}

// ListCompletions returns the user's completions, newest first
func (r *LessonRepository) ListCompletions(ctx context.Context, userID string) ([]*models.LessonCompletion, error) {
	var completions []*models.LessonCompletion
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("completed_at DESC").
		Find(&completions).Error
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	return completions, nil
}

package content

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/codeowl/platform/internal/common/database"
	leaguemodels "github.com/codeowl/platform/internal/league/models"
	leaguerepo "github.com/codeowl/platform/internal/league/repository"
	"github.com/codeowl/platform/internal/lesson/models"
	"github.com/codeowl/platform/pkg/logger"
)

// Stats counts what one import created or updated.
type Stats struct {
	Languages  int `json:"languages"`
	Units      int `json:"units"`
	Lessons    int `json:"lessons"`
	Questions  int `json:"questions"`
	Removed    int `json:"removed"`
	Thresholds int `json:"thresholds"`
}

func (s Stats) String() string {
	return fmt.Sprintf("%d languages, %d units, %d lessons, %d questions (%d removed), %d thresholds",
		s.Languages, s.Units, s.Lessons, s.Questions, s.Removed, s.Thresholds)
}

// Importer upserts courses. Languages are keyed by slug, units and lessons
// by title within their parent, questions by position within their lesson.
type Importer struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImporter(db *gorm.DB) *Importer {
	return &Importer{db: db, log: logger.Get().Named("content")}
}

// Import validates c and writes it in one transaction.
func (im *Importer) Import(ctx context.Context, c *Course) (*Stats, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	stats := &Stats{}
	err := im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for li, lang := range c.Languages {
			if err := im.importLanguage(tx, lang, li, stats); err != nil {
				return err
			}
		}

		leagues := leaguerepo.NewLeagueRepository(im.db).WithTx(tx)
		for _, th := range c.Leagues {
			err := leagues.UpsertThreshold(ctx, &leaguemodels.Threshold{
				League:               th.League,
				PromotionXPThreshold: th.PromotionXPThreshold,
				DemotionXPThreshold:  th.DemotionXPThreshold,
			})
			if err != nil {
				return err
			}
			stats.Thresholds++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import course: %w", err)
	}

	im.log.Info("course imported", zap.Stringer("stats", stats))
	return stats, nil
}

func (im *Importer) importLanguage(tx *gorm.DB, doc LanguageDoc, position int, stats *Stats) error {
	var lang models.Language
	err := tx.Where(models.Language{Slug: doc.Slug}).
		Assign(map[string]interface{}{"name": doc.Name, "position": position}).
		FirstOrCreate(&lang).Error
	if err != nil {
		return fmt.Errorf("upsert language %q: %w", doc.Slug, err)
	}
	stats.Languages++

	for ui, u := range doc.Units {
		var unit models.Unit
		err := tx.Where(models.Unit{LanguageID: lang.ID, Title: u.Title}).
			Assign(map[string]interface{}{"position": ui}).
			FirstOrCreate(&unit).Error
		if err != nil {
			return fmt.Errorf("upsert unit %q: %w", u.Title, err)
		}
		stats.Units++

		for mi, l := range u.Lessons {
			var lesson models.Lesson
			err := tx.Where(models.Lesson{UnitID: unit.ID, Title: l.Title}).
				Assign(map[string]interface{}{"position": mi}).
				FirstOrCreate(&lesson).Error
			if err != nil {
				return fmt.Errorf("upsert lesson %q: %w", l.Title, err)
			}
			stats.Lessons++

			if err := im.importQuestions(tx, lesson.ID, l.Questions, stats); err != nil {
				return fmt.Errorf("lesson %q: %w", l.Title, err)
			}
		}
	}
	return nil
}

func (im *Importer) importQuestions(tx *gorm.DB, lessonID uint, docs []QuestionDoc, stats *Stats) error {
	for pos, doc := range docs {
		q := doc.model(lessonID, pos)

		var existing models.Question
		err := tx.Where("lesson_id = ? AND position = ?", lessonID, pos).First(&existing).Error
		switch {
		case err == nil:
			q.ID = existing.ID
			q.CreatedAt = existing.CreatedAt
			if err := tx.Save(&q).Error; err != nil {
				return fmt.Errorf("update question %d: %w", pos, err)
			}
		case database.IsNotFound(err):
			if err := tx.Create(&q).Error; err != nil {
				return fmt.Errorf("create question %d: %w", pos, err)
			}
		default:
			return fmt.Errorf("load question %d: %w", pos, err)
		}
		stats.Questions++
	}

	// Questions past the new end were removed from the source.
	res := tx.Where("lesson_id = ? AND position >= ?", lessonID, len(docs)).Delete(&models.Question{})
	if res.Error != nil {
		return fmt.Errorf("trim questions: %w", res.Error)
	}
	stats.Removed += int(res.RowsAffected)
	return nil
}

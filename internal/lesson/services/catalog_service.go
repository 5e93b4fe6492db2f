package services

import (
	"context"

	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/lesson/models"
	"github.com/codeowl/platform/internal/lesson/repository"
)

// LessonView is a lesson with answer-free questions.
type LessonView struct {
	ID        uint            `json:"id"`
	UnitID    uint            `json:"unit_id"`
	Title     string          `json:"title"`
	Position  int             `json:"position"`
	Completed bool            `json:"completed"`
	Questions []*QuestionView `json:"questions"`
}

// CatalogService serves the read-only course catalog.
type CatalogService struct {
	repo *repository.LessonRepository
}

func NewCatalogService(repo *repository.LessonRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

func (s *CatalogService) Languages(ctx context.Context) ([]*models.Language, error) {
	languages, err := s.repo.ListLanguages(ctx)
	if err != nil {
		return nil, errors.Internal("failed to list languages", err.Error())
	}
	return languages, nil
}

func (s *CatalogService) Units(ctx context.Context, languageID uint) ([]*models.Unit, error) {
	units, err := s.repo.ListUnits(ctx, languageID)
	if err != nil {
		return nil, errors.Internal("failed to list units", err.Error())
	}
	return units, nil
}

// Lesson returns a lesson for display, flagged when userID completed it.
func (s *CatalogService) Lesson(ctx context.Context, userID string, id uint) (*LessonView, error) {
	lesson, err := s.repo.GetLesson(ctx, id)
	if err != nil {
		return nil, wrap(err, "failed to load lesson")
	}

	completed, err := s.repo.HasCompletion(ctx, userID, id)
	if err != nil {
		return nil, errors.Internal("failed to load completion", err.Error())
	}

	view := &LessonView{
		ID:        lesson.ID,
		UnitID:    lesson.UnitID,
		Title:     lesson.Title,
		Position:  lesson.Position,
		Completed: completed,
		Questions: make([]*QuestionView, 0, len(lesson.Questions)),
	}
	for i := range lesson.Questions {
		view.Questions = append(view.Questions, newQuestionView(&lesson.Questions[i]))
	}
	return view, nil
}

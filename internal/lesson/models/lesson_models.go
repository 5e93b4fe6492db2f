package models

import (
	"time"
)

// QuestionKind selects the answer domain and grading rule of a question.
type QuestionKind string

const (
	KindFillBlank      QuestionKind = "fill-blank"
	KindMultipleChoice QuestionKind = "multiple-choice"
	KindDragOrder      QuestionKind = "drag-order"
	KindCodeRunner     QuestionKind = "code-runner"
)

// BlankMarker marks the gap in a fill-blank code template.
const BlankMarker = "___"

// DefaultXPReward is used when content does not set one.
const DefaultXPReward = 10

func (k QuestionKind) Valid() bool {
	switch k {
	case KindFillBlank, KindMultipleChoice, KindDragOrder, KindCodeRunner:
		return true
	}
	return false
}

// ========== CATALOG ==========

// Language is the top level of the course catalog.
type Language struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Slug      string    `gorm:"uniqueIndex;size:64;not null" json:"slug"`
	Name      string    `gorm:"not null" json:"name"`
	Position  int       `gorm:"default:0" json:"position"`
	Units     []Unit    `gorm:"foreignKey:LanguageID" json:"units,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Unit groups lessons within a language.
type Unit struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	LanguageID uint      `gorm:"index;not null" json:"language_id"`
	Title      string    `gorm:"not null" json:"title"`
	Position   int       `gorm:"default:0" json:"position"`
	Lessons    []Lesson  `gorm:"foreignKey:UnitID" json:"lessons,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Lesson is an ordered sequence of questions.
type Lesson struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UnitID    uint       `gorm:"index;not null" json:"unit_id"`
	Title     string     `gorm:"not null" json:"title"`
	Position  int        `gorm:"default:0" json:"position"`
	Questions []Question `gorm:"foreignKey:LessonID" json:"questions,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CodeBlock is one draggable line of a drag-order question.
type CodeBlock struct {
	ID   string `json:"id" yaml:"id"`
	Code string `json:"code" yaml:"code"`
}

// QuestionPayload holds the kind-specific authoring data.
type QuestionPayload struct {
	CodeTemplate   string      `json:"code_template,omitempty" yaml:"code_template"`
	Options        []string    `json:"options,omitempty" yaml:"options"`
	Blocks         []CodeBlock `json:"blocks,omitempty" yaml:"blocks"`
	CorrectOrder   []string    `json:"correct_order,omitempty" yaml:"correct_order"`
	InitialCode    string      `json:"initial_code,omitempty" yaml:"initial_code"`
	ExpectedOutput string      `json:"expected_output,omitempty" yaml:"expected_output"`
}

// Question is one immutable quiz item.
type Question struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	LessonID    uint            `gorm:"index;not null" json:"lesson_id"`
	Kind        QuestionKind    `gorm:"size:32;not null" json:"kind"`
	Instruction string          `gorm:"type:text" json:"instruction"`
	Payload     QuestionPayload `gorm:"serializer:json;type:text" json:"payload"`
	Answer      string          `gorm:"type:text" json:"-"`
	Hint        string          `gorm:"type:text" json:"hint,omitempty"`
	XPReward    int             `gorm:"default:10" json:"xp_reward"`
	Position    int             `gorm:"index" json:"position"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PublicPayload strips the authoring fields that reveal the answer.
func (q *Question) PublicPayload() QuestionPayload {
	p := q.Payload
	p.CorrectOrder = nil
	p.ExpectedOutput = ""
	return p
}

// ========== PROGRESS ==========

// PartialProgress is the persisted snapshot of an in-flight lesson attempt.
type PartialProgress struct {
	ID                   uint         `gorm:"primaryKey" json:"id"`
	UserID               string       `gorm:"uniqueIndex:idx_partial_user_lesson;size:64;not null" json:"user_id"`
	LessonID             uint         `gorm:"uniqueIndex:idx_partial_user_lesson;not null" json:"lesson_id"`
	CurrentQuestionIndex int          `gorm:"not null;default:0" json:"current_question_index"`
	AnsweredQuestions    []int        `gorm:"serializer:json;type:text" json:"answered_questions"`
	Results              map[int]bool `gorm:"serializer:json;type:text" json:"results,omitempty"`
	XPEarned             int          `gorm:"not null;default:0" json:"xp_earned"`
	CorrectAnswers       int          `gorm:"not null;default:0" json:"correct_answers"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

func (PartialProgress) TableName() string { return "partial_progress" }

// LessonCompletion is written once, the first time a lesson is finished
// outside practice mode.
type LessonCompletion struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"uniqueIndex:idx_completion_user_lesson;size:64;not null" json:"user_id"`
	LessonID    uint      `gorm:"uniqueIndex:idx_completion_user_lesson;not null" json:"lesson_id"`
	Accuracy    float64   `json:"accuracy"`
	Stars       int       `json:"stars"`
	XPEarned    int       `json:"xp_earned"`
	CompletedAt time.Time `json:"completed_at"`
}

// All lists the lesson tables for migration.
func All() []interface{} {
	return []interface{}{
		&Language{},
		&Unit{},
		&Lesson{},
		&Question{},
		&PartialProgress{},
		&LessonCompletion{},
	}
}

package services

import (
	"time"

	"github.com/codeowl/platform/internal/lesson/engine"
	"github.com/codeowl/platform/internal/lesson/models"
)

// QuestionView is a question without the fields that give away its answer.
type QuestionView struct {
	ID          uint                   `json:"id"`
	Kind        models.QuestionKind    `json:"kind"`
	Instruction string                 `json:"instruction"`
	Payload     models.QuestionPayload `json:"payload"`
	Hint        string                 `json:"hint,omitempty"`
	XPReward    int                    `json:"xp_reward"`
	Position    int                    `json:"position"`
}

func newQuestionView(q *models.Question) *QuestionView {
	if q == nil {
		return nil
	}
	return &QuestionView{
		ID:          q.ID,
		Kind:        q.Kind,
		Instruction: q.Instruction,
		Payload:     q.PublicPayload(),
		Hint:        q.Hint,
		XPReward:    q.XPReward,
		Position:    q.Position,
	}
}

// RunView is the response body of every run operation.
type RunView struct {
	RunID          string                  `json:"run_id"`
	LessonID       uint                    `json:"lesson_id"`
	Phase          engine.Phase            `json:"phase"`
	Practice       bool                    `json:"practice"`
	Retake         bool                    `json:"retake"`
	Index          *int                    `json:"index,omitempty"`
	Total          int                     `json:"total"`
	Question       *QuestionView           `json:"question,omitempty"`
	Pending        *engine.Answer          `json:"pending,omitempty"`
	Correct        *bool                   `json:"correct,omitempty"`
	Execution      *engine.ExecutionResult `json:"execution,omitempty"`
	Answered       []int                   `json:"answered"`
	XPEarned       int                     `json:"xp_earned"`
	CorrectAnswers int                     `json:"correct_answers"`
	Result         *engine.Result          `json:"result,omitempty"`
	Warnings       []string                `json:"warnings,omitempty"`
	StartedAt      time.Time               `json:"started_at"`
}

// view renders the run. The caller holds run.mu.
func (r *Run) view() *RunView {
	snap := r.machine.Snapshot()
	v := &RunView{
		RunID:          r.ID,
		LessonID:       r.LessonID,
		Phase:          snap.State.Phase(),
		Practice:       r.Practice,
		Retake:         r.Retake,
		Total:          r.machine.Len(),
		Question:       newQuestionView(r.machine.Question()),
		Pending:        snap.Pending,
		Answered:       snap.Attempt.Answered,
		XPEarned:       snap.Attempt.XPEarned,
		CorrectAnswers: snap.Attempt.CorrectAnswers,
		StartedAt:      r.StartedAt,
	}
	if v.Answered == nil {
		v.Answered = []int{}
	}
	if i, ok := engine.CurrentIndex(snap.State); ok {
		v.Index = &i
	}

	switch st := snap.State.(type) {
	case engine.Checked:
		correct := st.Correct
		v.Correct = &correct
		if st.Index == r.lastCheckIndex {
			v.Execution = r.lastExecution
		}
	case engine.Complete:
		result := st.Result
		v.Result = &result
	}

	v.Warnings = r.drainWarnings()
	return v
}

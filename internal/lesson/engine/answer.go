package engine

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/lesson/models"
)

// Answer is a pending selection. Exactly one field is meaningful,
// depending on the question kind.
type Answer struct {
	Text  *string  `json:"text,omitempty"`
	Index *int     `json:"index,omitempty"`
	Order []string `json:"order,omitempty"`
	Code  *string  `json:"code,omitempty"`
}

func (a Answer) clone() Answer {
	out := a
	out.Order = append([]string(nil), a.Order...)
	return out
}

// TextAnswer, IndexAnswer, OrderAnswer and CodeAnswer build answers.
func TextAnswer(s string) Answer       { return Answer{Text: &s} }
func IndexAnswer(i int) Answer         { return Answer{Index: &i} }
func OrderAnswer(ids ...string) Answer { return Answer{Order: ids} }
func CodeAnswer(code string) Answer    { return Answer{Code: &code} }

// ValidateAnswer checks that a lies in the question's answer domain.
func ValidateAnswer(q *models.Question, a Answer) error {
	switch q.Kind {
	case models.KindFillBlank:
		if a.Text == nil || *a.Text == "" {
			return errors.Validation("invalid answer", "fill-blank expects text")
		}
		if len(q.Payload.Options) > 0 && !slices.Contains(q.Payload.Options, *a.Text) {
			return errors.Validation("invalid answer", "text is not one of the options")
		}
	case models.KindMultipleChoice:
		if a.Index == nil {
			return errors.Validation("invalid answer", "multiple-choice expects an option index")
		}
		if *a.Index < 0 || *a.Index >= len(q.Payload.Options) {
			return errors.Validation("invalid answer", fmt.Sprintf("index must be between 0 and %d", len(q.Payload.Options)-1))
		}
	case models.KindDragOrder:
		if len(a.Order) != len(q.Payload.Blocks) {
			return errors.Validation("invalid answer", fmt.Sprintf("order must list all %d blocks", len(q.Payload.Blocks)))
		}
		known := make(map[string]bool, len(q.Payload.Blocks))
		for _, b := range q.Payload.Blocks {
			known[b.ID] = true
		}
		seen := make(map[string]bool, len(a.Order))
		for _, id := range a.Order {
			if !known[id] {
				return errors.Validation("invalid answer", fmt.Sprintf("unknown block %q", id))
			}
			if seen[id] {
				return errors.Validation("invalid answer", fmt.Sprintf("block %q listed twice", id))
			}
			seen[id] = true
		}
	case models.KindCodeRunner:
		if a.Code == nil || strings.TrimSpace(*a.Code) == "" {
			return errors.Validation("invalid answer", "code-runner expects code")
		}
	default:
		return errors.Internal("unsupported question kind", string(q.Kind))
	}
	return nil
}

// ExecutionResult is what the code execution service reports.
type ExecutionResult struct {
	Output   string `json:"output"`
	Error    string `json:"error"`
	ExitCode int    `json:"exitCode"`
}

// Executor runs learner code in a sandbox.
type Executor interface {
	Execute(ctx context.Context, code string) (*ExecutionResult, error)
}

// Verdict is the outcome of grading one answer.
type Verdict struct {
	Correct   bool             `json:"correct"`
	Execution *ExecutionResult `json:"execution,omitempty"`
}

// Grader evaluates answers. Only code-runner questions leave the process.
type Grader struct {
	exec    Executor
	timeout time.Duration
}

func NewGrader(exec Executor, timeout time.Duration) *Grader {
	return &Grader{exec: exec, timeout: timeout}
}

// Grade evaluates a validated answer. A sandbox failure or timeout is
// returned as a retryable Unavailable error.
func (g *Grader) Grade(ctx context.Context, q *models.Question, a Answer) (Verdict, error) {
	switch q.Kind {
	case models.KindFillBlank:
		return Verdict{Correct: a.Text != nil && *a.Text == q.Answer}, nil

	case models.KindMultipleChoice:
		want, err := strconv.Atoi(strings.TrimSpace(q.Answer))
		if err != nil {
			return Verdict{}, errors.Internal("question has a malformed answer", err.Error())
		}
		return Verdict{Correct: a.Index != nil && *a.Index == want}, nil

	case models.KindDragOrder:
		return Verdict{Correct: slices.Equal(a.Order, q.Payload.CorrectOrder)}, nil

	case models.KindCodeRunner:
		return g.gradeCode(ctx, q, a)
	}
	return Verdict{}, errors.Internal("unsupported question kind", string(q.Kind))
}

func (g *Grader) gradeCode(ctx context.Context, q *models.Question, a Answer) (Verdict, error) {
	if g.exec == nil {
		return Verdict{}, errors.Unavailable("code execution is not configured", "")
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	res, err := g.exec.Execute(ctx, *a.Code)
	if err != nil {
		return Verdict{}, errors.Unavailable("code execution failed, please try again", err.Error())
	}

	correct := strings.TrimSpace(res.Output) == strings.TrimSpace(q.Payload.ExpectedOutput)
	return Verdict{Correct: correct, Execution: res}, nil
}

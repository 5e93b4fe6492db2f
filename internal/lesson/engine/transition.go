package engine

import (
	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/lesson/models"
)

// Options configure a new run.
type Options struct {
	// Free suppresses hearts, XP, progress and completion writes.
	// Set for practice runs and retakes.
	Free bool
	// Resume restores a saved attempt.
	Resume *Attempt
}

// Start builds the initial snapshot for a lesson.
func Start(questions []models.Question, opts Options) Snapshot {
	n := len(questions)
	if n == 0 {
		return Snapshot{State: Empty{}, Free: opts.Free, Attempt: Attempt{Results: map[int]bool{}}}
	}

	attempt := Attempt{Results: map[int]bool{}}
	if opts.Resume != nil {
		attempt = sanitize(*opts.Resume, n)
	}

	s := Snapshot{Attempt: attempt, Free: opts.Free}
	s.State = derive(s.Attempt, s.Attempt.CurrentIndex)
	return s
}

// sanitize clamps a saved attempt to the current question count.
func sanitize(a Attempt, n int) Attempt {
	out := Attempt{
		XPEarned:       a.XPEarned,
		CorrectAnswers: a.CorrectAnswers,
		Results:        map[int]bool{},
	}
	for _, i := range a.Answered {
		if i >= 0 && i < n {
			out.markAnswered(i)
		}
	}
	for i, ok := range a.Results {
		if i >= 0 && i < n {
			out.Results[i] = ok
		}
	}

	out.CurrentIndex = a.CurrentIndex
	if out.CurrentIndex < 0 {
		out.CurrentIndex = 0
	}
	if out.CurrentIndex > n-1 {
		out.CurrentIndex = n - 1
	}
	return out
}

// derive rebuilds the state for question i from what the attempt has seen.
func derive(a Attempt, i int) State {
	if correct, seen := a.result(i); seen {
		return Checked{Index: i, Correct: correct}
	}
	return Answering{Index: i}
}

// Transition applies ev to s. It never mutates s; on error the returned
// snapshot is s unchanged.
func Transition(questions []models.Question, s Snapshot, ev Event) (Snapshot, []Effect, error) {
	switch st := s.State.(type) {
	case Empty:
		if _, ok := ev.(Exit); ok {
			next := s.clone()
			next.State = Exited{}
			return next, nil, nil
		}
		return s, nil, errors.InvalidState("lesson has no questions")

	case Complete, Exited:
		return s, nil, errors.InvalidState("lesson run has ended")

	case Answering:
		return fromAnswering(questions, s, st, ev)

	case Checked:
		return fromChecked(questions, s, st, ev)
	}
	return s, nil, errors.Internal("unknown lesson state", "")
}

func fromAnswering(questions []models.Question, s Snapshot, st Answering, ev Event) (Snapshot, []Effect, error) {
	q := &questions[st.Index]

	switch e := ev.(type) {
	case SelectAnswer:
		if err := ValidateAnswer(q, e.Answer); err != nil {
			return s, nil, err
		}
		next := s.clone()
		a := e.Answer.clone()
		next.Pending = &a
		return next, nil, nil

	case Check:
		if s.Pending == nil {
			return s, nil, errors.InvalidState("select an answer before checking")
		}
		next := s.clone()
		next.Pending = nil
		next.Attempt.Results[st.Index] = e.Correct
		next.State = Checked{Index: st.Index, Correct: e.Correct}

		var effects []Effect
		if e.Correct {
			next.Attempt.XPEarned += q.XPReward
			next.Attempt.CorrectAnswers++
		} else if !s.Free {
			effects = append(effects, DeductHeart{QuestionIndex: st.Index})
		}
		return next, effects, nil

	case Continue:
		return s, nil, errors.InvalidState("check the answer before continuing")

	case GoBack:
		return goBack(s, st.Index)

	case Exit:
		return exit(s, st.Index)
	}
	return s, nil, errors.InvalidState("event not allowed while answering")
}

func fromChecked(questions []models.Question, s Snapshot, st Checked, ev Event) (Snapshot, []Effect, error) {
	n := len(questions)

	switch ev.(type) {
	case Continue:
		next := s.clone()
		next.Attempt.markAnswered(st.Index)

		if st.Index == n-1 {
			result := Score(n, next.Attempt.CorrectAnswers, next.Attempt.XPEarned)
			next.Attempt.CurrentIndex = n
			next.State = Complete{Result: result}
			if s.Free {
				return next, nil, nil
			}
			return next, []Effect{Finalize{Result: result}}, nil
		}

		next.Attempt.CurrentIndex = st.Index + 1
		next.State = derive(next.Attempt, st.Index+1)
		if s.Free {
			return next, nil, nil
		}
		return next, []Effect{SaveProgress{Attempt: next.Attempt.clone()}}, nil

	case GoBack:
		return goBack(s, st.Index)

	case Exit:
		return exit(s, st.Index)
	}
	return s, nil, errors.InvalidState("continue to the next question first")
}

func goBack(s Snapshot, i int) (Snapshot, []Effect, error) {
	if i == 0 {
		return s, nil, errors.InvalidState("already at the first question")
	}
	next := s.clone()
	next.Pending = nil
	next.Attempt.CurrentIndex = i - 1
	next.State = derive(next.Attempt, i-1)
	if s.Free {
		return next, nil, nil
	}
	return next, []Effect{SaveProgress{Attempt: next.Attempt.clone()}}, nil
}

func exit(s Snapshot, i int) (Snapshot, []Effect, error) {
	next := s.clone()
	next.Pending = nil
	next.State = Exited{Index: i}
	if s.Free {
		return next, nil, nil
	}
	return next, []Effect{SaveProgress{Attempt: next.Attempt.clone()}}, nil
}

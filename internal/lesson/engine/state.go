// Package engine implements the lesson question state machine.
//
// The machine is a tagged union of states driven by a pure Transition
// function. Transition never touches the store: it returns the next
// snapshot plus the side effects (heart deduction, progress save,
// finalization) the caller must apply.
package engine

import (
	"sort"
)

type Phase string

const (
	PhaseAnswering Phase = "answering"
	PhaseChecked   Phase = "checked"
	PhaseComplete  Phase = "complete"
	PhaseEmpty     Phase = "empty"
	PhaseExited    Phase = "exited"
)

// State is one of Answering, Checked, Complete, Empty or Exited.
type State interface {
	Phase() Phase
	isState()
}

// Answering waits for a selection and a check on question Index.
type Answering struct {
	Index int
}

// Checked shows the verdict for question Index until Continue.
type Checked struct {
	Index   int
	Correct bool
}

// Complete is terminal. Result holds the final score.
type Complete struct {
	Result Result
}

// Empty is the dead end for a lesson without questions. Only Exit is allowed.
type Empty struct{}

// Exited is terminal: the run ended without finalizing.
type Exited struct {
	Index int
}

func (Answering) Phase() Phase { return PhaseAnswering }
func (Checked) Phase() Phase   { return PhaseChecked }
func (Complete) Phase() Phase  { return PhaseComplete }
func (Empty) Phase() Phase     { return PhaseEmpty }
func (Exited) Phase() Phase    { return PhaseExited }

func (Answering) isState() {}
func (Checked) isState()   {}
func (Complete) isState()  {}
func (Empty) isState()     {}
func (Exited) isState()    {}

// Attempt is the mutable score sheet of one run.
type Attempt struct {
	CurrentIndex   int
	Answered       []int
	Results        map[int]bool
	XPEarned       int
	CorrectAnswers int
}

// IsAnswered reports whether question i was continued past.
func (a Attempt) IsAnswered(i int) bool {
	idx := sort.SearchInts(a.Answered, i)
	return idx < len(a.Answered) && a.Answered[idx] == i
}

func (a Attempt) result(i int) (correct bool, seen bool) {
	correct, seen = a.Results[i]
	return correct, seen || a.IsAnswered(i)
}

func (a Attempt) clone() Attempt {
	out := a
	out.Answered = append([]int(nil), a.Answered...)
	out.Results = make(map[int]bool, len(a.Results))
	for k, v := range a.Results {
		out.Results[k] = v
	}
	return out
}

func (a *Attempt) markAnswered(i int) {
	if a.IsAnswered(i) {
		return
	}
	a.Answered = append(a.Answered, i)
	sort.Ints(a.Answered)
}

// Snapshot is the complete machine state between two events.
type Snapshot struct {
	State   State
	Attempt Attempt
	Pending *Answer
	// Free runs (practice or retake) produce no economy effects.
	Free bool
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Attempt = s.Attempt.clone()
	if s.Pending != nil {
		p := s.Pending.clone()
		out.Pending = &p
	}
	return out
}

// Terminal reports whether no further events are accepted.
func (s Snapshot) Terminal() bool {
	switch s.State.(type) {
	case Complete, Exited:
		return true
	}
	return false
}

// ========== EVENTS ==========

type Event interface{ isEvent() }

type SelectAnswer struct{ Answer Answer }

// Check carries the verdict computed by a Grader.
type Check struct{ Correct bool }

type Continue struct{}

type GoBack struct{}

type Exit struct{}

func (SelectAnswer) isEvent() {}
func (Check) isEvent()        {}
func (Continue) isEvent()     {}
func (GoBack) isEvent()       {}
func (Exit) isEvent()         {}

// ========== EFFECTS ==========

type Effect interface{ isEffect() }

// DeductHeart removes one heart for an incorrect answer.
type DeductHeart struct{ QuestionIndex int }

// SaveProgress persists the attempt as partial progress.
type SaveProgress struct{ Attempt Attempt }

// Finalize records the completion, awards XP and clears partial progress.
type Finalize struct{ Result Result }

func (DeductHeart) isEffect()  {}
func (SaveProgress) isEffect() {}
func (Finalize) isEffect()     {}

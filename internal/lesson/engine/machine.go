package engine

import (
	"github.com/codeowl/platform/internal/lesson/models"
)

// Machine holds one run's questions and current snapshot.
// It is not safe for concurrent use.
type Machine struct {
	questions []models.Question
	snap      Snapshot
}

func NewMachine(questions []models.Question, opts Options) *Machine {
	return &Machine{questions: questions, snap: Start(questions, opts)}
}

// Apply feeds ev through Transition and keeps the result on success.
func (m *Machine) Apply(ev Event) ([]Effect, error) {
	next, effects, err := Transition(m.questions, m.snap, ev)
	if err != nil {
		return nil, err
	}
	m.snap = next
	return effects, nil
}

func (m *Machine) Snapshot() Snapshot { return m.snap.clone() }

func (m *Machine) Len() int { return len(m.questions) }

// Question returns the question the machine is positioned on, or nil
// when the state has no current question.
func (m *Machine) Question() *models.Question {
	i, ok := CurrentIndex(m.snap.State)
	if !ok || i < 0 || i >= len(m.questions) {
		return nil
	}
	return &m.questions[i]
}

// CurrentIndex returns the question index of an Answering or Checked state.
func CurrentIndex(s State) (int, bool) {
	switch st := s.(type) {
	case Answering:
		return st.Index, true
	case Checked:
		return st.Index, true
	}
	return 0, false
}

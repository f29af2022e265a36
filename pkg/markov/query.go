package markov

import (
	"errors"
	"fmt"
	"strings"
)

// ErrShapeMismatch is returned when a state space and a transition matrix
// were not produced by the same estimation.
var ErrShapeMismatch = errors.New("markov: state space and matrix sizes differ")

// Probability is the chance of a single next-day state.
type Probability struct {
	State       string  `json:"state"`
	Probability float64 `json:"probability"`
}

// UnknownStateError is returned by Distribution and Simulate when the
// requested state never appeared in the observations. Known lists the
// states that can be queried instead.
type UnknownStateError struct {
	State string
	Known []string
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("unknown state %q, valid states: %s", e.State, strings.Join(e.Known, ", "))
}

// Distribution returns the next-day probabilities for current, one entry per
// state in StateSpace order. The probabilities sum to 1, or are all zero when
// current was never observed transitioning out.
func Distribution(current string, space *StateSpace, m *TransitionMatrix) ([]Probability, error) {
	if space.Len() != m.Size() {
		return nil, fmt.Errorf("%w: %d states, %dx%d matrix", ErrShapeMismatch, space.Len(), m.Size(), m.Size())
	}
	from, ok := space.Index(current)
	if !ok {
		return nil, &UnknownStateError{State: current, Known: space.Labels()}
	}

	row := m.Row(from)
	dist := make([]Probability, len(row))
	for i, p := range row {
		dist[i] = Probability{State: space.Label(i), Probability: p}
	}
	return dist, nil
}

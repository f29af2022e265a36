package markov

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidWeights is returned when sampling weights are empty, negative,
// or sum to zero.
var ErrInvalidWeights = errors.New("markov: weights must be non-negative with a positive total")

// MaxSteps is the longest walk Simulate accepts, ten years of days.
const MaxSteps = 3650

// ErrTooManySteps is returned by Simulate when asked for more than MaxSteps days.
var ErrTooManySteps = fmt.Errorf("markov: at most %d steps can be simulated", MaxSteps)

// StateWeight is the relative frequency used to draw a state.
type StateWeight struct {
	State  string  `json:"state"`
	Weight float64 `json:"weight"`
}

// DefaultWeights returns the climate used for synthetic data when none is
// configured: mostly sunny, sometimes cloudy, occasionally rainy.
func DefaultWeights() []StateWeight {
	return []StateWeight{
		{State: "sol", Weight: 0.5},
		{State: "nublado", Weight: 0.3},
		{State: "lluvia", Weight: 0.2},
	}
}

// GenerateObservations draws one state per day for days 1..days, each drawn
// independently according to weights. The same rng seed always produces the
// same sequence.
func GenerateObservations(rng *rand.Rand, days int, weights []StateWeight) ([]Observation, error) {
	if days < 0 {
		return nil, fmt.Errorf("markov: negative day count %d", days)
	}
	w := make([]float64, len(weights))
	for i, sw := range weights {
		if sw.Weight < 0 || math.IsNaN(sw.Weight) || math.IsInf(sw.Weight, 0) {
			return nil, fmt.Errorf("%w: %q has weight %v", ErrInvalidWeights, sw.State, sw.Weight)
		}
		w[i] = sw.Weight
	}
	total := floats.Sum(w)
	if total <= 0 {
		return nil, ErrInvalidWeights
	}

	obs := make([]Observation, days)
	for d := range obs {
		obs[d] = Observation{Day: d + 1, State: weights[pickWeighted(rng, w, total)].State}
	}
	return obs, nil
}

// simulateOptions configures Simulate.
type simulateOptions struct {
	steps       int
	temperature float64
	topK        int
}

// SimulateOption configures a Simulate call.
type SimulateOption func(*simulateOptions)

// WithSteps sets how many days to simulate. The walk may stop earlier when
// it reaches a state without outgoing transitions.
func WithSteps(n int) SimulateOption {
	return func(o *simulateOptions) { o.steps = n }
}

// WithTemperature adjusts the randomness of each step.
// 1.0 samples the transition probabilities as they are, values above 1.0
// flatten them and values below 1.0 sharpen them. A value of 0 or less always
// picks the most likely next state.
func WithTemperature(t float64) SimulateOption {
	return func(o *simulateOptions) { o.temperature = t }
}

// WithTopK restricts each step to the k most likely next states.
// 0 disables the restriction.
func WithTopK(k int) SimulateOption {
	return func(o *simulateOptions) { o.topK = k }
}

// Simulate walks the chain starting from start and returns the states of the
// following days, not including start itself.
func Simulate(rng *rand.Rand, space *StateSpace, m *TransitionMatrix, start string, opts ...SimulateOption) ([]string, error) {
	options := &simulateOptions{
		steps:       7,
		temperature: 1.0,
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.steps > MaxSteps {
		return nil, fmt.Errorf("%w: got %d", ErrTooManySteps, options.steps)
	}
	if space.Len() != m.Size() {
		return nil, ErrShapeMismatch
	}
	current, ok := space.Index(start)
	if !ok {
		return nil, &UnknownStateError{State: start, Known: space.Labels()}
	}

	path := make([]string, 0, min(max(options.steps, 0), 64))
	for len(path) < options.steps {
		next, ok := chooseNextState(rng, m.Row(current), options)
		if !ok { // dead end
			break
		}
		path = append(path, space.Label(next))
		current = next
	}
	return path, nil
}

type stateChoice struct {
	index int
	p     float64
}

// chooseNextState picks the next state index from a transition row. It
// returns false when the row has no outgoing probability.
func chooseNextState(rng *rand.Rand, row []float64, options *simulateOptions) (int, bool) {
	choices := make([]stateChoice, 0, len(row))
	for i, p := range row {
		if p > 0 {
			choices = append(choices, stateChoice{index: i, p: p})
		}
	}
	if len(choices) == 0 {
		return 0, false
	}

	// topK filtering
	if options.topK > 0 && options.topK < len(choices) {
		sort.SliceStable(choices, func(i, j int) bool {
			return choices[i].p > choices[j].p
		})
		choices = choices[:options.topK]
	}

	if options.temperature <= 0 { // Deterministic
		best := choices[0]
		for _, c := range choices[1:] {
			if c.p > best.p || (c.p == best.p && c.index < best.index) {
				best = c
			}
		}
		return best.index, true
	}

	weights := make([]float64, len(choices))
	if options.temperature == 1.0 {
		for i, c := range choices {
			weights[i] = c.p
		}
	} else {
		maxLog := math.Inf(-1)
		for i, c := range choices {
			weights[i] = math.Log(c.p) / options.temperature
			maxLog = math.Max(maxLog, weights[i])
		}
		for i := range weights {
			weights[i] = math.Exp(weights[i] - maxLog)
		}
	}
	return choices[pickWeighted(rng, weights, floats.Sum(weights))].index, true
}

// pickWeighted returns an index into weights drawn proportionally to its weight.
func pickWeighted(rng *rand.Rand, weights []float64, total float64) int {
	r := rng.Float64() * total
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		r -= w
		if r < 0 {
			return i
		}
	}
	// Rounding can leave r marginally above zero.
	return last
}

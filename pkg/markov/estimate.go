package markov

import (
	"slices"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Observation is the weather state recorded for a single day.
type Observation struct {
	Day   int    `json:"day"`
	State string `json:"state"`
}

// StateSpace is the ordered set of distinct state labels of an observation
// sequence. Labels are sorted lexicographically and indexed from zero.
// A StateSpace is never modified after construction.
type StateSpace struct {
	labels []string
	index  map[string]int
}

// NewStateSpace builds a StateSpace from the given labels. Duplicates are
// collapsed and the result is sorted, so the input order does not matter.
func NewStateSpace(labels []string) *StateSpace {
	seen := make(map[string]struct{}, len(labels))
	unique := make([]string, 0, len(labels))
	for _, label := range labels {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		unique = append(unique, label)
	}
	sort.Strings(unique)

	index := make(map[string]int, len(unique))
	for i, label := range unique {
		index[label] = i
	}
	return &StateSpace{labels: unique, index: index}
}

// Len returns the number of states.
func (s *StateSpace) Len() int { return len(s.labels) }

// Labels returns a copy of the state labels in index order.
func (s *StateSpace) Labels() []string { return slices.Clone(s.labels) }

// Label returns the label at index i. It panics if i is out of range.
func (s *StateSpace) Label(i int) string { return s.labels[i] }

// Index returns the index of label and whether it is part of the space.
func (s *StateSpace) Index(label string) (int, bool) {
	i, ok := s.index[label]
	return i, ok
}

// Contains reports whether label is part of the space.
func (s *StateSpace) Contains(label string) bool {
	_, ok := s.index[label]
	return ok
}

// TransitionCounts holds the number of observed transitions between every
// ordered pair of states, stored row-major. Row i counts transitions out of
// state i.
type TransitionCounts struct {
	n      int
	counts []int
}

func newTransitionCounts(n int) *TransitionCounts {
	return &TransitionCounts{n: n, counts: make([]int, n*n)}
}

// Size returns the number of rows (and columns).
func (c *TransitionCounts) Size() int { return c.n }

// At returns the number of transitions from state index from to state index to.
func (c *TransitionCounts) At(from, to int) int { return c.counts[from*c.n+to] }

// RowSum returns the number of transitions out of state index from.
func (c *TransitionCounts) RowSum(from int) int {
	var sum int
	for _, v := range c.counts[from*c.n : (from+1)*c.n] {
		sum += v
	}
	return sum
}

// Total returns the number of counted transitions.
func (c *TransitionCounts) Total() int {
	var sum int
	for _, v := range c.counts {
		sum += v
	}
	return sum
}

func (c *TransitionCounts) add(other *TransitionCounts) {
	for i, v := range other.counts {
		c.counts[i] += v
	}
}

// TransitionMatrix is a row-stochastic matrix of next-day probabilities.
// Every row sums to 1 or, for a state with no observed outgoing transition,
// is all zeros. The matrix is immutable; accessors return copies.
type TransitionMatrix struct {
	n     int
	dense *mat.Dense // nil when n == 0, gonum refuses zero-sized matrices
}

// Size returns the number of rows (and columns).
func (m *TransitionMatrix) Size() int { return m.n }

// At returns the probability of moving from state index from to state index to.
func (m *TransitionMatrix) At(from, to int) float64 { return m.dense.At(from, to) }

// Row returns a copy of the probabilities out of state index from.
func (m *TransitionMatrix) Row(from int) []float64 {
	return mat.Row(nil, from, m.dense)
}

// RowSum returns the total probability mass of row from: 1 or 0.
func (m *TransitionMatrix) RowSum(from int) float64 {
	return floats.Sum(m.dense.RawRowView(from))
}

// Dense returns a copy of the matrix as a gonum Dense, or nil for an empty matrix.
func (m *TransitionMatrix) Dense() *mat.Dense {
	if m.dense == nil {
		return nil
	}
	return mat.DenseCopyOf(m.dense)
}

// Estimate builds the state space of obs and its transition matrix.
//
// The observations are sorted by day (stably, on a copy) and a transition is
// only counted between two observations on strictly consecutive days. Pairs
// across a gap, or sharing a day, are skipped. Empty input yields an empty
// space and an empty matrix.
func Estimate(obs []Observation) (*StateSpace, *TransitionMatrix) {
	space, counts := CountTransitions(obs)
	return space, Normalize(counts)
}

// CountTransitions is the counting half of Estimate. It returns the state
// space and the raw transition counts without normalizing them.
func CountTransitions(obs []Observation) (*StateSpace, *TransitionCounts) {
	sorted := sortedByDay(obs)
	space := spaceOf(sorted)
	counts := newTransitionCounts(space.Len())
	countRange(sorted, space, counts)
	return space, counts
}

// Normalize divides every row of counts by its sum. Rows without any
// transition stay zero.
func Normalize(counts *TransitionCounts) *TransitionMatrix {
	n := counts.Size()
	if n == 0 {
		return &TransitionMatrix{}
	}
	data := make([]float64, n*n)
	for i, c := range counts.counts {
		data[i] = float64(c)
	}
	dense := mat.NewDense(n, n, data)
	for r := 0; r < n; r++ {
		row := dense.RawRowView(r)
		sum := floats.Sum(row)
		if sum == 0 {
			continue
		}
		floats.Scale(1/sum, row)
	}
	return &TransitionMatrix{n: n, dense: dense}
}

// EstimateConcurrent is Estimate with the counting pass split across shards
// goroutines. Each shard counts a contiguous run of the sorted sequence, with
// neighbouring runs sharing their boundary observation so no pair is lost.
// Shard counts are summed in shard order, so the result is identical to
// Estimate for any shard count.
func EstimateConcurrent(obs []Observation, shards int) (*StateSpace, *TransitionMatrix) {
	sorted := sortedByDay(obs)
	space := spaceOf(sorted)

	pairs := len(sorted) - 1
	if pairs < 1 {
		counts := newTransitionCounts(space.Len())
		return space, Normalize(counts)
	}
	shards = max(1, min(shards, pairs))

	parts := make([]*TransitionCounts, shards)
	per, rem := pairs/shards, pairs%shards

	var wg sync.WaitGroup
	start := 0
	for s := 0; s < shards; s++ {
		size := per
		if s < rem {
			size++
		}
		end := start + size
		wg.Add(1)
		go func(s int, run []Observation) {
			defer wg.Done()
			c := newTransitionCounts(space.Len())
			countRange(run, space, c)
			parts[s] = c
		}(s, sorted[start:end+1])
		start = end
	}
	wg.Wait()

	total := newTransitionCounts(space.Len())
	for _, part := range parts {
		total.add(part)
	}
	return space, Normalize(total)
}

func sortedByDay(obs []Observation) []Observation {
	sorted := slices.Clone(obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Day < sorted[j].Day
	})
	return sorted
}

func spaceOf(obs []Observation) *StateSpace {
	labels := make([]string, len(obs))
	for i, o := range obs {
		labels[i] = o.State
	}
	return NewStateSpace(labels)
}

// countRange counts the consecutive-day pairs of an already sorted run.
func countRange(obs []Observation, space *StateSpace, counts *TransitionCounts) {
	for i := 0; i+1 < len(obs); i++ {
		if obs[i+1].Day != obs[i].Day+1 {
			continue
		}
		from, _ := space.Index(obs[i].State)
		to, _ := space.Index(obs[i+1].State)
		counts.counts[from*counts.n+to]++
	}
}

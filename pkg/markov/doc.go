/*
Package markov estimates first-order Markov transition models from daily
categorical observations, such as a log of weather states, and answers
next-day queries against them.

Estimate sorts the observations by day, builds the lexicographically ordered
StateSpace, counts transitions between strictly consecutive days and
normalizes each row of the counts into a TransitionMatrix. A row belonging to
a state that was never observed transitioning out is left as the zero vector.

Distribution looks up the next-day probabilities for a current state and
fails with an *UnknownStateError when the state was never observed.

The package holds no global state. Everything random (GenerateObservations,
Simulate) draws from a caller-supplied *rand.Rand.
*/
package markov

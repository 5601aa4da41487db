// Package outcome produces plausible fight results for simulated events.
package outcome

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Method is how a fight ended.
type Method string

const (
	MethodKO         Method = "KO"
	MethodTKO        Method = "TKO"
	MethodSubmission Method = "Submission"
	MethodDecision   Method = "Decision"
)

// IsFinish reports whether the fight ended before the judges' scorecards.
func (m Method) IsFinish() bool {
	return m != MethodDecision
}

// Outcome is a generated result. It describes how and when a fight ends,
// not who wins; see Generator.SelectWinner.
type Outcome struct {
	Method Method
	Round  int
	Time   string
}

// DecisionTime is the clock reading recorded for fights that go the distance.
const DecisionTime = "5:00"

const (
	// finishRate is the combined KO (0.15), TKO (0.25) and submission (0.20) share.
	finishRate = 0.60
	// defaultRounds is used when a fight has no usable scheduled round count.
	defaultRounds = 3
)

type weighted[T any] struct {
	value  T
	weight float64
}

// Finish methods conditioned on the fight not going the distance.
var finishMethods = []weighted[Method]{
	{MethodKO, 0.25},
	{MethodTKO, 0.40},
	{MethodSubmission, 0.35},
}

var threeRoundFinish = []weighted[int]{{1, 0.30}, {2, 0.35}, {3, 0.35}}

var fiveRoundFinish = []weighted[int]{{1, 0.15}, {2, 0.20}, {3, 0.25}, {4, 0.20}, {5, 0.20}}

// Generator draws outcomes from an injected random source.
// It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a Generator backed by rng.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// NewSeededGenerator creates a Generator from a seed. A zero seed uses the current time.
func NewSeededGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewGenerator(rand.New(rand.NewSource(seed)))
}

func (g *Generator) float64() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

func (g *Generator) intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}

// Generate produces an outcome for a fight scheduled for the given number of rounds.
// The returned round is always within [1, scheduledRounds]; decisions always land on
// the final round at 5:00. Finishes use the weighted round tables for 3 and 5 rounds
// and a uniform round for any other count. Counts below 1 are treated as 3.
func (g *Generator) Generate(scheduledRounds int) Outcome {
	if scheduledRounds < 1 {
		scheduledRounds = defaultRounds
	}

	if g.float64() >= finishRate {
		return Outcome{Method: MethodDecision, Round: scheduledRounds, Time: DecisionTime}
	}

	return Outcome{
		Method: pick(g.float64(), finishMethods),
		Round:  g.finishRound(scheduledRounds),
		Time:   fmt.Sprintf("%d:%02d", g.intn(5), g.intn(60)),
	}
}

func (g *Generator) finishRound(scheduledRounds int) int {
	switch scheduledRounds {
	case 3:
		return pick(g.float64(), threeRoundFinish)
	case 5:
		return pick(g.float64(), fiveRoundFinish)
	default:
		return g.intn(scheduledRounds) + 1
	}
}

// SelectWinner picks one of the two fighters with equal probability.
func (g *Generator) SelectWinner(fighter1, fighter2 string) string {
	if g.float64() < 0.5 {
		return fighter1
	}
	return fighter2
}

// Chance reports true with probability p.
func (g *Generator) Chance(p float64) bool {
	return g.float64() < p
}

// pick walks the cumulative weights with u in [0,1). Rounding slack falls to the last entry.
func pick[T any](u float64, table []weighted[T]) T {
	cumulative := 0.0
	for _, w := range table {
		cumulative += w.weight
		if u < cumulative {
			return w.value
		}
	}
	return table[len(table)-1].value
}

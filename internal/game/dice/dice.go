// Package dice provides the randomness capability shared by the simulation
// and the dice expressions used to size environmental hazard damage.
package dice

import "fmt"

// Source is the randomness provider for mutation selection, hazard rolls and
// crisis events.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// chanceResolution is the granularity Chance uses to turn a probability into
// an Intn draw.
const chanceResolution = 10_000

// Chance reports whether an event with probability p fires on a single draw
// from src. p <= 0 never fires and p >= 1 always fires without consuming a draw.
//
// Precondition: src must be non-nil.
func Chance(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return src.Intn(chanceResolution) < int(p*chanceResolution)
}

// RollResult holds the audit trail for a single hazard roll.
//
// Postcondition: Total() == sum(Dice) + Modifier.
type RollResult struct {
	Expression string // original expression string, e.g. "2d10+3"
	Dice       []int  // individual die results before modifier
	Modifier   int    // flat modifier (may be negative)
}

// Total returns the sum of all die results plus the modifier, floored at zero
// so a negative modifier can never heal through a hazard.
//
// Postcondition: return value == max(0, sum(r.Dice) + r.Modifier).
func (r RollResult) Total() int {
	total := r.Modifier
	for _, d := range r.Dice {
		total += d
	}
	if total < 0 {
		return 0
	}
	return total
}

// String returns an audit string such as "2d10+3 -> [4 9] +3 = 16".
func (r RollResult) String() string {
	return fmt.Sprintf("%s -> %v %+d = %d", r.Expression, r.Dice, r.Modifier, r.Total())
}

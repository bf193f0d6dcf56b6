// Package creature holds the per-creature vitality and genetics model: health,
// accumulated damage, adaptive charges, and the acquired trait set.
//
// A Vitality is a plain state container driven by an external scheduler. It is
// not synchronised; each instance must have a single writer at a time.
package creature

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/cory-johannsen/planeta/internal/game/dice"
)

const (
	// MaxHealth is the vitality ceiling.
	MaxHealth = 100.0
	// DefaultAdaptiveCharges is the charge count of a freshly created creature.
	DefaultAdaptiveCharges = 2
	// MitigationThreshold is the damage a single hit must exceed to trigger an
	// adaptive charge.
	MitigationThreshold = 20.0
	// MitigationRatio is the share of a mitigated hit restored to health.
	MitigationRatio = 0.5
	// RegenAmount is the health restored by one regeneration pulse.
	RegenAmount = 5.0
)

// ErrInvalidArgument is returned for negative or non-finite damage, invalid
// traits, and malformed persisted state.
var ErrInvalidArgument = errors.New("creature: invalid argument")

// Liveness is the two-state life flag. Dead is terminal.
type Liveness int

const (
	Alive Liveness = iota
	Dead
)

// String returns "alive" or "dead".
func (l Liveness) String() string {
	if l == Dead {
		return "dead"
	}
	return "alive"
}

// Vitality is the genetic and vitality state of one creature.
//
// Invariant: 0 <= health <= MaxHealth; traits holds no duplicates;
// adaptiveCharges never increases; totalDamage never decreases.
type Vitality struct {
	generation      int
	adaptability    int
	mutationCount   int
	totalDamage     float64
	health          float64
	adaptiveCharges int
	traits          []string
	dead            bool
}

// New returns a first-generation creature at full health.
func New() *Vitality {
	return &Vitality{
		generation:      1,
		health:          MaxHealth,
		adaptiveCharges: DefaultAdaptiveCharges,
	}
}

// NewGeneration returns a creature at full health belonging to generation g.
//
// Precondition: g >= 1.
// Postcondition: Returns a default creature with Generation() == g, or ErrInvalidArgument.
func NewGeneration(g int) (*Vitality, error) {
	if g < 1 {
		return nil, fmt.Errorf("%w: generation must be >= 1, got %d", ErrInvalidArgument, g)
	}
	v := New()
	v.generation = g
	return v, nil
}

func (v *Vitality) Generation() int      { return v.generation }
func (v *Vitality) Adaptability() int    { return v.adaptability }
func (v *Vitality) MutationCount() int   { return v.mutationCount }
func (v *Vitality) TotalDamage() float64 { return v.totalDamage }
func (v *Vitality) Health() float64      { return v.health }
func (v *Vitality) AdaptiveCharges() int { return v.adaptiveCharges }
func (v *Vitality) IsDead() bool         { return v.dead }

// Liveness returns Alive or Dead.
func (v *Vitality) Liveness() Liveness {
	if v.dead {
		return Dead
	}
	return Alive
}

// Traits returns a copy of the trait list in insertion order.
func (v *Vitality) Traits() []string {
	return slices.Clone(v.traits)
}

// HasTrait reports whether trait has been acquired.
func (v *Vitality) HasTrait(trait string) bool {
	return slices.Contains(v.traits, trait)
}

// Clone returns an independent copy.
func (v *Vitality) Clone() *Vitality {
	c := *v
	c.traits = slices.Clone(v.traits)
	return &c
}

// ApplyDamage registers a hit of the given amount.
//
// A lethal hit is never mitigated: the death check runs before the adaptive
// charge check. Hits on an already dead creature still accumulate TotalDamage.
//
// Precondition: amount >= 0 and finite; otherwise ErrInvalidArgument is
// returned and state is untouched.
// Postcondition: TotalDamage() grows by exactly amount; 0 <= Health() <= MaxHealth.
func (v *Vitality) ApplyDamage(amount float64) (DamageOutcome, error) {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return DamageOutcome{}, fmt.Errorf("%w: damage amount must be finite and >= 0, got %v", ErrInvalidArgument, amount)
	}

	v.totalDamage += amount
	v.health -= amount

	if v.health <= 0 {
		v.health = 0
		v.dead = true
		return DamageOutcome{Kind: DamageDead}, nil
	}

	if v.adaptiveCharges > 0 && amount > MitigationThreshold {
		v.adaptiveCharges--
		v.health = math.Min(v.health+amount*MitigationRatio, MaxHealth)
		return DamageOutcome{
			Kind:             DamageAdapted,
			ChargesRemaining: v.adaptiveCharges,
			HealthRemaining:  v.health,
		}, nil
	}

	return DamageOutcome{Kind: DamageTaken, HealthRemaining: v.health}, nil
}

// ApplyMutation draws one trait uniformly from candidates using src and adds
// it when not already present.
//
// Precondition: src must be non-nil; every candidate must pass ValidateTrait.
// Postcondition: Traits grows by at most one; on MutationAccepted both
// MutationCount and Adaptability grow by one. State is untouched on error.
func (v *Vitality) ApplyMutation(candidates []string, src dice.Source) (MutationOutcome, error) {
	if len(candidates) == 0 {
		return MutationOutcome{Kind: MutationNoCandidates}, nil
	}
	for _, c := range candidates {
		if err := ValidateTrait(c); err != nil {
			return MutationOutcome{}, err
		}
	}

	trait := candidates[src.Intn(len(candidates))]
	if v.HasTrait(trait) {
		return MutationOutcome{Kind: MutationRejected, Trait: trait}, nil
	}

	v.traits = append(v.traits, trait)
	v.mutationCount++
	v.adaptability++
	return MutationOutcome{Kind: MutationAccepted, Trait: trait}, nil
}

// Regenerate applies a single regeneration pulse and returns the new health.
// A dead creature and one at full health are left unchanged.
//
// Postcondition: Health() == min(previous+RegenAmount, MaxHealth) when alive.
func (v *Vitality) Regenerate() float64 {
	if v.dead || v.health >= MaxHealth {
		return v.health
	}
	v.health = math.Min(v.health+RegenAmount, MaxHealth)
	return v.health
}

// Heal restores amount health to a living creature, clamped to MaxHealth.
// A dead creature is left unchanged.
//
// Precondition: amount >= 0 and finite; otherwise ErrInvalidArgument is
// returned and state is untouched.
// Postcondition: Returns the resulting health.
func (v *Vitality) Heal(amount float64) (float64, error) {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return v.health, fmt.Errorf("%w: heal amount must be finite and >= 0, got %v", ErrInvalidArgument, amount)
	}
	if v.dead {
		return v.health, nil
	}
	v.health = math.Min(v.health+amount, MaxHealth)
	return v.health, nil
}

// ValidateTrait reports whether trait can be stored and round-tripped through
// the compact code: non-empty, no '-' separator, no whitespace.
func ValidateTrait(trait string) error {
	if trait == "" {
		return fmt.Errorf("%w: trait must not be empty", ErrInvalidArgument)
	}
	if strings.Contains(trait, "-") {
		return fmt.Errorf("%w: trait %q must not contain '-'", ErrInvalidArgument, trait)
	}
	if strings.IndexFunc(trait, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: trait %q must not contain whitespace", ErrInvalidArgument, trait)
	}
	return nil
}

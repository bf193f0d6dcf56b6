package creature

import "fmt"

// DamageKind classifies the result of ApplyDamage.
type DamageKind int

const (
	// DamageTaken is an ordinary, unmitigated hit.
	DamageTaken DamageKind = iota
	// DamageAdapted means an adaptive charge restored half the hit.
	DamageAdapted
	// DamageDead means the hit brought health to zero.
	DamageDead
)

func (k DamageKind) String() string {
	switch k {
	case DamageTaken:
		return "damaged"
	case DamageAdapted:
		return "adapted"
	case DamageDead:
		return "dead"
	default:
		return fmt.Sprintf("DamageKind(%d)", int(k))
	}
}

// DamageOutcome reports what a hit did.
//
// ChargesRemaining is meaningful for DamageAdapted; HealthRemaining for
// DamageTaken and DamageAdapted.
type DamageOutcome struct {
	Kind             DamageKind
	ChargesRemaining int
	HealthRemaining  float64
}

func (o DamageOutcome) String() string {
	switch o.Kind {
	case DamageAdapted:
		return fmt.Sprintf("adapted (charges=%d health=%.1f)", o.ChargesRemaining, o.HealthRemaining)
	case DamageTaken:
		return fmt.Sprintf("damaged (health=%.1f)", o.HealthRemaining)
	default:
		return o.Kind.String()
	}
}

// MutationKind classifies the result of ApplyMutation.
type MutationKind int

const (
	// MutationNoCandidates means the candidate pool was empty.
	MutationNoCandidates MutationKind = iota
	// MutationRejected means the drawn trait was already present.
	MutationRejected
	// MutationAccepted means the drawn trait was added.
	MutationAccepted
)

func (k MutationKind) String() string {
	switch k {
	case MutationNoCandidates:
		return "no_candidates"
	case MutationRejected:
		return "rejected"
	case MutationAccepted:
		return "accepted"
	default:
		return fmt.Sprintf("MutationKind(%d)", int(k))
	}
}

// MutationOutcome reports what a mutation attempt did. Trait is empty for
// MutationNoCandidates.
type MutationOutcome struct {
	Kind  MutationKind
	Trait string
}

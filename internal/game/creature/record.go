package creature

import (
	"bytes"
	"fmt"
	"math"
	"slices"

	"gopkg.in/yaml.v3"
)

// Record is the full-precision persisted form of a Vitality.
type Record struct {
	Generation      int      `yaml:"generation" json:"generation"`
	Adaptability    int      `yaml:"adaptability" json:"adaptability"`
	MutationCount   int      `yaml:"mutation_count" json:"mutation_count"`
	TotalDamage     float64  `yaml:"total_damage" json:"total_damage"`
	Health          float64  `yaml:"health" json:"health"`
	AdaptiveCharges int      `yaml:"adaptive_charges" json:"adaptive_charges"`
	Traits          []string `yaml:"traits" json:"traits"`
	Dead            bool     `yaml:"dead" json:"dead"`
}

// Record returns a full-precision snapshot of v.
func (v *Vitality) Record() Record {
	return Record{
		Generation:      v.generation,
		Adaptability:    v.adaptability,
		MutationCount:   v.mutationCount,
		TotalDamage:     v.totalDamage,
		Health:          v.health,
		AdaptiveCharges: v.adaptiveCharges,
		Traits:          slices.Clone(v.traits),
		Dead:            v.dead,
	}
}

// Validate checks every invariant a restored Vitality must hold.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidArgument.
func (r Record) Validate() error {
	switch {
	case r.Generation < 1:
		return fmt.Errorf("%w: generation must be >= 1, got %d", ErrInvalidArgument, r.Generation)
	case r.Adaptability < 0:
		return fmt.Errorf("%w: adaptability must be >= 0, got %d", ErrInvalidArgument, r.Adaptability)
	case r.MutationCount < 0:
		return fmt.Errorf("%w: mutation_count must be >= 0, got %d", ErrInvalidArgument, r.MutationCount)
	case r.TotalDamage < 0 || math.IsNaN(r.TotalDamage) || math.IsInf(r.TotalDamage, 0):
		return fmt.Errorf("%w: total_damage must be finite and >= 0, got %v", ErrInvalidArgument, r.TotalDamage)
	case math.IsNaN(r.Health) || r.Health < 0 || r.Health > MaxHealth:
		return fmt.Errorf("%w: health must be in [0, %v], got %v", ErrInvalidArgument, MaxHealth, r.Health)
	case r.AdaptiveCharges < 0 || r.AdaptiveCharges > DefaultAdaptiveCharges:
		return fmt.Errorf("%w: adaptive_charges must be in [0, %d], got %d",
			ErrInvalidArgument, DefaultAdaptiveCharges, r.AdaptiveCharges)
	case r.Dead != (r.Health == 0):
		return fmt.Errorf("%w: dead=%v disagrees with health=%v", ErrInvalidArgument, r.Dead, r.Health)
	}

	seen := make(map[string]struct{}, len(r.Traits))
	for _, t := range r.Traits {
		if err := ValidateTrait(t); err != nil {
			return err
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: duplicate trait %q", ErrInvalidArgument, t)
		}
		seen[t] = struct{}{}
	}
	return nil
}

// FromRecord restores a Vitality from a persisted record, refusing to default
// any invalid field.
//
// Postcondition: Returns a Vitality with v.Record() equal to r, or an error.
func FromRecord(r Record) (*Vitality, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &Vitality{
		generation:      r.Generation,
		adaptability:    r.Adaptability,
		mutationCount:   r.MutationCount,
		totalDamage:     r.TotalDamage,
		health:          r.Health,
		adaptiveCharges: r.AdaptiveCharges,
		traits:          slices.Clone(r.Traits),
		dead:            r.Dead,
	}, nil
}

// ParseRecord decodes a YAML (or JSON) record and restores the Vitality.
// Unknown fields are rejected.
func ParseRecord(data []byte) (*Vitality, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var r Record
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decoding record: %v", ErrInvalidArgument, err)
	}
	return FromRecord(r)
}

// MarshalRecord encodes v's full-precision record as YAML.
func MarshalRecord(v *Vitality) ([]byte, error) {
	out, err := yaml.Marshal(v.Record())
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return out, nil
}

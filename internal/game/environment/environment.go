// Package environment defines the planetary environments creatures live in:
// the trait pool mutations draw from, the environmental pressure on mutation
// chance, and the hazards that damage creatures.
package environment

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/planeta/internal/game/creature"
	"github.com/cory-johannsen/planeta/internal/game/dice"
)

// Hazard is a recurring source of damage in an environment.
type Hazard struct {
	Name string `yaml:"name"`
	// Damage is a dice expression such as "2d10+2".
	Damage string `yaml:"damage"`
	// Chance is the per-check probability (0-1) a creature is hit.
	Chance float64 `yaml:"chance"`
}

// Environment is a planet biome loaded from YAML.
type Environment struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Atmosphere string `yaml:"atmosphere"`
	// MutationChance is the per-check probability (0-1) a living creature
	// attempts a mutation while in this environment.
	MutationChance float64  `yaml:"mutation_chance"`
	Traits         []string `yaml:"traits"`
	// Vital traits are needed to thrive here. Each one a creature lacks adds
	// PressurePerMissingVital to its mutation chance.
	Vital   []string `yaml:"vital"`
	Hazards []Hazard `yaml:"hazards"`
}

// PressurePerMissingVital is the mutation chance added per missing vital trait.
const PressurePerMissingVital = 0.3

// MissingVital returns the vital traits absent from traits, in Vital order.
func (e *Environment) MissingVital(traits []string) []string {
	var missing []string
	for _, v := range e.Vital {
		if !slices.Contains(traits, v) {
			missing = append(missing, v)
		}
	}
	return missing
}

// EffectiveMutationChance is MutationChance raised by environmental pressure
// for a creature carrying traits, capped at 1.
func (e *Environment) EffectiveMutationChance(traits []string) float64 {
	p := e.MutationChance + PressurePerMissingVital*float64(len(e.MissingVital(traits)))
	return min(p, 1)
}

// Validate checks the environment's invariants.
//
// Postcondition: Returns nil iff ID and Name are non-empty, MutationChance is in
// [0,1], every trait is valid and unique, every vital trait is in the pool,
// and every hazard has a name, a
// parseable damage expression, and a chance in [0,1].
func (e *Environment) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("environment: id must not be empty")
	}
	if e.Name == "" {
		return fmt.Errorf("environment %q: name must not be empty", e.ID)
	}
	if e.MutationChance < 0 || e.MutationChance > 1 {
		return fmt.Errorf("environment %q: mutation_chance must be in [0,1], got %v", e.ID, e.MutationChance)
	}
	seen := make(map[string]bool, len(e.Traits))
	for _, t := range e.Traits {
		if err := creature.ValidateTrait(t); err != nil {
			return fmt.Errorf("environment %q: %w", e.ID, err)
		}
		if seen[t] {
			return fmt.Errorf("environment %q: duplicate trait %q", e.ID, t)
		}
		seen[t] = true
	}
	for _, v := range e.Vital {
		if !seen[v] {
			return fmt.Errorf("environment %q: vital trait %q is not in traits", e.ID, v)
		}
	}
	for i, h := range e.Hazards {
		if h.Name == "" {
			return fmt.Errorf("environment %q: hazard %d: name must not be empty", e.ID, i)
		}
		if _, err := dice.Parse(h.Damage); err != nil {
			return fmt.Errorf("environment %q: hazard %q: %w", e.ID, h.Name, err)
		}
		if h.Chance < 0 || h.Chance > 1 {
			return fmt.Errorf("environment %q: hazard %q: chance must be in [0,1], got %v", e.ID, h.Name, h.Chance)
		}
	}
	return nil
}

// LoadFromBytes parses and validates a single environment definition.
//
// Postcondition: Returns a validated *Environment or an error.
func LoadFromBytes(data []byte) (*Environment, error) {
	var env Environment
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing environment YAML: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// LoadDir reads every *.yaml file in dir.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all environments or the first load error.
func LoadDir(dir string) ([]*Environment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading environment dir %q: %w", dir, err)
	}

	var envs []*Environment
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		env, err := LoadFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		envs = append(envs, env)
	}
	return envs, nil
}

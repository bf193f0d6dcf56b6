// Package fossil keeps the record of dead creatures and ranks them into a
// hall of fame.
package fossil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/planeta/internal/game/environment"
	"github.com/cory-johannsen/planeta/internal/game/population"
)

// TimeLayout is the CSV encoding of Fossil.RecordedAt.
const TimeLayout = time.RFC3339

// traitSep joins traits in the CSV column. Traits never contain it.
const traitSep = ";"

// Timestamp wraps time.Time with a CSV encoding.
type Timestamp struct {
	time.Time
}

// MarshalCSV encodes the time as RFC3339 UTC.
func (t Timestamp) MarshalCSV() (string, error) {
	return t.UTC().Format(TimeLayout), nil
}

// UnmarshalCSV decodes an RFC3339 time.
func (t *Timestamp) UnmarshalCSV(s string) error {
	parsed, err := time.Parse(TimeLayout, s)
	if err != nil {
		return fmt.Errorf("parsing recorded_at %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// Fossil is the permanent record left by a creature on death.
type Fossil struct {
	ID          string    `csv:"id"`
	RecordedAt  Timestamp `csv:"recorded_at"`
	CreatureID  string    `csv:"creature_id"`
	Name        string    `csv:"name"`
	Environment string    `csv:"environment"`
	Atmosphere  string    `csv:"atmosphere"`
	Generation  int       `csv:"generation"`
	Age         int       `csv:"age"`
	Cause       string    `csv:"cause"`
	GeneticCode string    `csv:"genetic_code"`
	Traits      string    `csv:"traits"`
	Damage      float64   `csv:"damage"`
	Mutations   int       `csv:"mutations"`
}

// New builds a fossil from a creature's final snapshot. env may be nil when
// the creature's environment is no longer registered.
//
// Precondition: s must be the snapshot of a dead creature.
// Postcondition: Returns a fossil with a fresh ID and RecordedAt == now.
func New(s population.Snapshot, env *environment.Environment, cause string, now time.Time) (Fossil, error) {
	if !s.IsDead() {
		return Fossil{}, fmt.Errorf("fossil.New: creature %q is still alive", s.ID)
	}
	f := Fossil{
		ID:          uuid.New().String(),
		RecordedAt:  Timestamp{now.UTC()},
		CreatureID:  s.ID,
		Name:        s.Name,
		Environment: s.EnvironmentID,
		Generation:  s.Record.Generation,
		Age:         s.Age,
		Cause:       cause,
		GeneticCode: s.CompactCode,
		Traits:      JoinTraits(s.Record.Traits),
		Damage:      s.Record.TotalDamage,
		Mutations:   s.Record.MutationCount,
	}
	if env != nil {
		f.Atmosphere = env.Atmosphere
	}
	return f, nil
}

// JoinTraits encodes a trait list for the traits column.
func JoinTraits(traits []string) string {
	return strings.Join(traits, traitSep)
}

// TraitList splits the traits column.
func (f Fossil) TraitList() []string {
	if f.Traits == "" {
		return nil
	}
	return strings.Split(f.Traits, traitSep)
}

// Recorder persists fossils.
type Recorder interface {
	Record(ctx context.Context, f Fossil) error
}

// HallOfFame returns the n longest-lived fossils, ties broken by mutation
// count then recording time. n <= 0 returns every fossil ranked.
//
// Postcondition: The input slice is not reordered.
func HallOfFame(fossils []Fossil, n int) []Fossil {
	ranked := make([]Fossil, len(fossils))
	copy(ranked, fossils)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Age != b.Age {
			return a.Age > b.Age
		}
		if a.Mutations != b.Mutations {
			return a.Mutations > b.Mutations
		}
		return a.RecordedAt.Before(b.RecordedAt.Time)
	})
	if n > 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

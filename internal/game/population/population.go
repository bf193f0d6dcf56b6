// Package population tracks live creatures and serialises all updates to each
// one behind its own lock, so a parallel scheduler may drive different
// creatures concurrently while each creature keeps a single writer.
package population

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/planeta/internal/game/creature"
	"github.com/cory-johannsen/planeta/internal/game/dice"
)

var (
	// ErrCreatureNotFound is returned when an ID is not tracked.
	ErrCreatureNotFound = errors.New("creature not found")
	// ErrCreatureDead is returned when a dead creature is asked to mutate.
	ErrCreatureDead = errors.New("creature is dead")
	// ErrCreatureExists is returned when restoring an ID that is already tracked.
	ErrCreatureExists = errors.New("creature already tracked")
)

// Creature is a tracked individual. All mutable fields are guarded by mu.
type Creature struct {
	id     string
	name   string
	bornAt time.Time

	mu       sync.Mutex
	envID    string
	age      int
	vitality *creature.Vitality
	regen    *creature.Regenerator
}

// Snapshot is an immutable copy of a creature's state.
type Snapshot struct {
	ID            string
	Name          string
	EnvironmentID string
	Age           int
	BornAt        time.Time
	Record        creature.Record
	CompactCode   string
}

// IsDead reports whether the snapshot was taken after death.
func (s Snapshot) IsDead() bool { return s.Record.Dead }

// snapshotLocked builds a Snapshot. Caller must hold c.mu.
func (c *Creature) snapshotLocked() Snapshot {
	return Snapshot{
		ID:            c.id,
		Name:          c.name,
		EnvironmentID: c.envID,
		Age:           c.age,
		BornAt:        c.bornAt,
		Record:        c.vitality.Record(),
		CompactCode:   c.vitality.CompactCode(),
	}
}

func (c *Creature) snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// DeathFunc is notified once when a creature dies, after its lock is released.
type DeathFunc func(s Snapshot, cause string)

// Manager tracks creatures by ID. All methods are safe for concurrent use.
type Manager struct {
	mu            sync.RWMutex
	creatures     map[string]*Creature
	regenInterval time.Duration
	onDeath       DeathFunc
	logger        *zap.Logger
}

// NewManager creates an empty Manager. regenInterval <= 0 selects
// creature.DefaultRegenInterval.
//
// Precondition: logger must be non-nil.
func NewManager(regenInterval time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		creatures:     make(map[string]*Creature),
		regenInterval: regenInterval,
		logger:        logger,
	}
}

// OnDeath installs the death callback. Must be called before the manager is
// shared between goroutines.
func (m *Manager) OnDeath(fn DeathFunc) {
	m.onDeath = fn
}

// Spawn creates a full-health creature of the given generation in envID.
//
// Precondition: name and envID must be non-empty; generation >= 1.
// Postcondition: Returns the new creature's snapshot with a fresh UUID.
func (m *Manager) Spawn(name, envID string, generation int, now time.Time) (Snapshot, error) {
	if name == "" || envID == "" {
		return Snapshot{}, fmt.Errorf("population.Spawn: name and environment must not be empty")
	}
	v, err := creature.NewGeneration(generation)
	if err != nil {
		return Snapshot{}, fmt.Errorf("population.Spawn: %w", err)
	}
	c := m.newCreature(uuid.New().String(), name, envID, 0, now, v)
	m.mu.Lock()
	m.creatures[c.id] = c
	m.mu.Unlock()
	m.logger.Debug("creature spawned",
		zap.String("id", c.id),
		zap.String("name", name),
		zap.String("environment", envID),
		zap.Int("generation", generation),
	)
	return c.snapshot(), nil
}

// Restore re-registers a persisted creature.
//
// Precondition: id must be a valid UUID not already tracked; rec must pass
// creature.Record.Validate.
// Postcondition: Returns the restored snapshot or an error; nothing is
// registered on error.
func (m *Manager) Restore(id, name, envID string, age int, bornAt time.Time, rec creature.Record) (Snapshot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Snapshot{}, fmt.Errorf("population.Restore: invalid id %q: %w", id, err)
	}
	if age < 0 {
		return Snapshot{}, fmt.Errorf("population.Restore: age must be >= 0, got %d", age)
	}
	v, err := creature.FromRecord(rec)
	if err != nil {
		return Snapshot{}, fmt.Errorf("population.Restore %q: %w", id, err)
	}
	c := m.newCreature(id, name, envID, age, bornAt, v)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.creatures[id]; exists {
		return Snapshot{}, fmt.Errorf("population.Restore: %w: %q", ErrCreatureExists, id)
	}
	m.creatures[id] = c
	return c.snapshot(), nil
}

// newCreature builds an untracked Creature; callers register it under m.mu.
func (m *Manager) newCreature(id, name, envID string, age int, bornAt time.Time, v *creature.Vitality) *Creature {
	return &Creature{
		id:       id,
		name:     name,
		bornAt:   bornAt,
		envID:    envID,
		age:      age,
		vitality: v,
		regen:    creature.NewRegenerator(m.regenInterval),
	}
}

func (m *Manager) lookup(id string) (*Creature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.creatures[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCreatureNotFound, id)
	}
	return c, nil
}

// Get returns a snapshot of the creature with id.
func (m *Manager) Get(id string) (Snapshot, error) {
	c, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return c.snapshot(), nil
}

// Len returns the number of tracked creatures, living or dead.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.creatures)
}

// All returns snapshots of every tracked creature ordered by birth time then ID.
func (m *Manager) All() []Snapshot {
	m.mu.RLock()
	cs := make([]*Creature, 0, len(m.creatures))
	for _, c := range m.creatures {
		cs = append(cs, c)
	}
	m.mu.RUnlock()

	out := make([]Snapshot, len(cs))
	for i, c := range cs {
		out[i] = c.snapshot()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BornAt.Equal(out[j].BornAt) {
			return out[i].BornAt.Before(out[j].BornAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Living returns snapshots of every living creature, in All order.
func (m *Manager) Living() []Snapshot {
	all := m.All()
	out := all[:0]
	for _, s := range all {
		if !s.IsDead() {
			out = append(out, s)
		}
	}
	return out
}

// Remove stops tracking id.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creatures[id]; !ok {
		return fmt.Errorf("%w: %q", ErrCreatureNotFound, id)
	}
	delete(m.creatures, id)
	return nil
}

// Damage applies a hit to id. The death callback fires on the hit that kills.
//
// Postcondition: Returns the model's outcome, ErrCreatureNotFound, or the
// model's ErrInvalidArgument.
func (m *Manager) Damage(id string, amount float64, cause string) (creature.DamageOutcome, error) {
	c, err := m.lookup(id)
	if err != nil {
		return creature.DamageOutcome{}, err
	}

	c.mu.Lock()
	wasDead := c.vitality.IsDead()
	out, err := c.vitality.ApplyDamage(amount)
	var snap Snapshot
	if err == nil && !wasDead && out.Kind == creature.DamageDead {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()
	if err != nil {
		return out, err
	}

	switch {
	case snap.ID != "":
		m.logger.Info("creature died",
			zap.String("id", id),
			zap.String("cause", cause),
			zap.String("code", snap.CompactCode),
		)
		if m.onDeath != nil {
			m.onDeath(snap, cause)
		}
	case out.Kind == creature.DamageAdapted:
		m.logger.Info("adaptive charge consumed",
			zap.String("id", id),
			zap.Float64("damage", amount),
			zap.Int("charges_remaining", out.ChargesRemaining),
		)
	}
	return out, nil
}

// Mutate runs one mutation attempt for id. Dead creatures do not mutate and
// return ErrCreatureDead.
func (m *Manager) Mutate(id string, candidates []string, src dice.Source) (creature.MutationOutcome, error) {
	c, err := m.lookup(id)
	if err != nil {
		return creature.MutationOutcome{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vitality.IsDead() {
		return creature.MutationOutcome{}, fmt.Errorf("population.Mutate: %w: %q", ErrCreatureDead, id)
	}
	out, err := c.vitality.ApplyMutation(candidates, src)
	if err != nil {
		return out, err
	}
	if out.Kind == creature.MutationAccepted {
		m.logger.Info("mutation applied",
			zap.String("id", id),
			zap.String("trait", out.Trait),
			zap.Int("mutations", c.vitality.MutationCount()),
		)
	}
	return out, nil
}

// Regenerate applies a single regeneration pulse to id.
func (m *Manager) Regenerate(id string) (float64, error) {
	c, err := m.lookup(id)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vitality.Regenerate(), nil
}

// Heal restores amount health to id. Dead creatures are unchanged.
//
// Postcondition: Returns the resulting health, ErrCreatureNotFound, or the
// model's ErrInvalidArgument.
func (m *Manager) Heal(id string, amount float64) (float64, error) {
	c, err := m.lookup(id)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vitality.Heal(amount)
}

// Advance ages a living creature by one tick and feeds elapsed time to its
// regenerator. Dead creatures are left untouched.
//
// Postcondition: Returns the regeneration pulses fired and the resulting health.
func (m *Manager) Advance(id string, elapsed time.Duration) (int, float64, error) {
	c, err := m.lookup(id)
	if err != nil {
		return 0, 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vitality.IsDead() {
		return 0, 0, nil
	}
	c.age++
	pulses, hp := c.regen.Advance(c.vitality, elapsed)
	return pulses, hp, nil
}

// Move relocates id to envID.
//
// Precondition: envID must be non-empty.
func (m *Manager) Move(id, envID string) error {
	if envID == "" {
		return fmt.Errorf("population.Move: environment must not be empty")
	}
	c, err := m.lookup(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.envID = envID
	c.mu.Unlock()
	return nil
}

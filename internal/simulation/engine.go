// Package simulation drives a creature population through time: ageing,
// regeneration, mutation under environmental pressure, hazards, planet
// crises, and the fossil record left by each death.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/planeta/internal/config"
	"github.com/cory-johannsen/planeta/internal/game/creature"
	"github.com/cory-johannsen/planeta/internal/game/dice"
	"github.com/cory-johannsen/planeta/internal/game/environment"
	"github.com/cory-johannsen/planeta/internal/game/fossil"
	"github.com/cory-johannsen/planeta/internal/game/population"
	"github.com/cory-johannsen/planeta/internal/scripting"
)

const (
	// CauseCrisis is the death cause recorded for crisis damage.
	CauseCrisis = "crisis"
	// CrisisDamagePerMissingVital is dealt to a creature for each vital trait
	// of the new environment it lacks when a crisis strikes.
	CrisisDamagePerMissingVital = 30.0
	// vitalPreference is the chance a creature missing vital traits draws its
	// mutation from them instead of the full pool.
	vitalPreference = 0.8
	// finalCheckpointTimeout bounds the checkpoint written when Run exits.
	finalCheckpointTimeout = 10 * time.Second
)

// CandidateSource supplies scripted mutation pools. ok is false when the
// environment's own pool should be used.
type CandidateSource interface {
	MutationCandidates(envID string, c scripting.CreatureInfo) (candidates []string, ok bool)
}

// CreatureStore persists the whole population in one call.
type CreatureStore interface {
	SaveAll(ctx context.Context, snaps []population.Snapshot) error
}

// Options are the timing and probability settings of an Engine.
type Options struct {
	TickInterval       time.Duration
	MutationInterval   time.Duration
	HazardInterval     time.Duration
	CheckpointInterval time.Duration
	CrisisChance       float64
	Respawn            bool
	Competition        bool
	StartEnvironment   string
}

// OptionsFromConfig maps the simulation config section onto Options.
func OptionsFromConfig(c config.SimulationConfig) Options {
	return Options{
		TickInterval:       c.TickInterval,
		MutationInterval:   c.MutationInterval,
		HazardInterval:     c.HazardInterval,
		CheckpointInterval: c.CheckpointInterval,
		CrisisChance:       c.CrisisChance,
		Respawn:            c.Respawn,
		Competition:        c.Competition,
		StartEnvironment:   c.StartEnvironment,
	}
}

// Deps are the collaborators of an Engine. Hooks, Recorders, Store and Now
// are optional.
type Deps struct {
	Population   *population.Manager
	Environments *environment.Registry
	Roller       *dice.Roller
	Hooks        CandidateSource
	Recorders    []fossil.Recorder
	Store        CreatureStore
	Logger       *zap.Logger
	Now          func() time.Time
}

// StepReport summarises one Step.
type StepReport struct {
	Tick       int64
	Mutations  int
	HazardHits int
	Duels      int
	Deaths     int
	// Crisis is the environment the planet shifted to, or empty.
	Crisis string
}

type death struct {
	snap  population.Snapshot
	cause string
}

// Engine advances the simulation. Step calls are serialised.
type Engine struct {
	opts Options
	deps Deps
	src  dice.Source

	mu            sync.Mutex
	planet        string
	tick          int64
	mutationAcc   time.Duration
	hazardAcc     time.Duration
	checkpointAcc time.Duration
	// stable counts crisis-free generations per living creature.
	stable map[string]int

	deathMu sync.Mutex
	deaths  []death

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewEngine wires an Engine and installs its death callback on the
// population manager.
//
// Precondition: Population, Environments, Roller and Logger must be non-nil;
// every interval except CheckpointInterval must be > 0.
// Postcondition: Returns an Engine whose planet is StartEnvironment, or an
// error naming the first violation.
func NewEngine(opts Options, deps Deps) (*Engine, error) {
	switch {
	case deps.Population == nil || deps.Environments == nil || deps.Roller == nil || deps.Logger == nil:
		return nil, errors.New("simulation.NewEngine: population, environments, roller and logger are required")
	case opts.TickInterval <= 0 || opts.MutationInterval <= 0 || opts.HazardInterval <= 0:
		return nil, fmt.Errorf("simulation.NewEngine: tick, mutation and hazard intervals must be > 0")
	case opts.CrisisChance < 0 || opts.CrisisChance > 1:
		return nil, fmt.Errorf("simulation.NewEngine: crisis chance must be in [0,1], got %v", opts.CrisisChance)
	}
	if _, err := deps.Environments.Get(opts.StartEnvironment); err != nil {
		return nil, fmt.Errorf("simulation.NewEngine: %w", err)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	e := &Engine{
		opts:   opts,
		deps:   deps,
		src:    deps.Roller.Source(),
		planet: opts.StartEnvironment,
		stable: make(map[string]int),
		stopCh: make(chan struct{}),
	}
	deps.Population.OnDeath(e.recordDeath)
	return e, nil
}

// Planet returns the environment the planet is currently in.
func (e *Engine) Planet() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.planet
}

// Ticks returns the number of completed steps.
func (e *Engine) Ticks() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// Populate spawns n first-generation creatures on the current planet.
//
// Postcondition: Returns the spawned snapshots or the first spawn error.
func (e *Engine) Populate(n int) ([]population.Snapshot, error) {
	planet := e.Planet()
	out := make([]population.Snapshot, 0, n)
	for i := 1; i <= n; i++ {
		s, err := e.deps.Population.Spawn(fmt.Sprintf("Specimen-%03d", i), planet, 1, e.deps.Now())
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Step advances simulated time by elapsed. Every living creature ages one
// tick and regenerates. Each whole mutation interval is one generation:
// mutation checks, stability healing and, when enabled, a competition round.
// Hazard rolls fire once per whole hazard interval. Deaths are fossilised and
// removed, and a checkpoint is written when its interval has passed.
//
// Postcondition: Returns a report of the step. A non-nil error reports
// recorder or store failures; the step itself is always applied.
func (e *Engine) Step(ctx context.Context, elapsed time.Duration) (StepReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tick++
	rep := StepReport{Tick: e.tick}

	for _, s := range e.deps.Population.Living() {
		if _, _, err := e.deps.Population.Advance(s.ID, elapsed); err != nil && !errors.Is(err, population.ErrCreatureNotFound) {
			e.deps.Logger.Warn("advancing creature", zap.String("id", s.ID), zap.Error(err))
		}
	}

	e.mutationAcc += elapsed
	for e.mutationAcc >= e.opts.MutationInterval {
		e.mutationAcc -= e.opts.MutationInterval
		rep.Mutations += e.mutationRound()
		e.stabilityRound()
		if e.opts.Competition {
			rep.Duels += e.competitionRound()
		}
	}

	e.hazardAcc += elapsed
	for e.hazardAcc >= e.opts.HazardInterval {
		e.hazardAcc -= e.opts.HazardInterval
		rep.HazardHits += e.hazardRound()
		if dice.Chance(e.src, e.opts.CrisisChance) {
			rep.Crisis = e.crisisLocked()
		}
	}

	var errs []error
	n, err := e.flushDeaths(ctx)
	rep.Deaths = n
	if err != nil {
		errs = append(errs, err)
	}

	if e.opts.CheckpointInterval > 0 && e.deps.Store != nil {
		e.checkpointAcc += elapsed
		if e.checkpointAcc >= e.opts.CheckpointInterval {
			e.checkpointAcc = 0
			if err := e.Checkpoint(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return rep, errors.Join(errs...)
}

// mutationRound gives every living creature one chance to mutate and returns
// the number of accepted mutations.
func (e *Engine) mutationRound() int {
	accepted := 0
	for _, s := range e.deps.Population.Living() {
		env, err := e.deps.Environments.Get(s.EnvironmentID)
		if err != nil {
			e.deps.Logger.Warn("creature in unknown environment", zap.String("id", s.ID), zap.Error(err))
			continue
		}
		if !dice.Chance(e.src, env.EffectiveMutationChance(s.Record.Traits)) {
			continue
		}
		out, err := e.deps.Population.Mutate(s.ID, e.candidates(env, s), e.src)
		if errors.Is(err, population.ErrCreatureDead) {
			continue
		}
		if err != nil {
			e.deps.Logger.Warn("mutation failed", zap.String("id", s.ID), zap.Error(err))
			continue
		}
		if out.Kind == creature.MutationAccepted {
			accepted++
		}
	}
	return accepted
}

// candidates picks the trait pool for one mutation attempt: a scripted pool
// when a hook supplies one, otherwise the missing vital traits most of the
// time, otherwise the environment's full pool.
func (e *Engine) candidates(env *environment.Environment, s population.Snapshot) []string {
	if e.deps.Hooks != nil {
		if pool, ok := e.deps.Hooks.MutationCandidates(env.ID, creatureInfo(s)); ok {
			return pool
		}
	}
	if missing := env.MissingVital(s.Record.Traits); len(missing) > 0 && dice.Chance(e.src, vitalPreference) {
		return missing
	}
	return env.Traits
}

// hazardRound rolls every hazard of each living creature's environment and
// returns the number of hits.
func (e *Engine) hazardRound() int {
	hits := 0
	for _, s := range e.deps.Population.Living() {
		env, err := e.deps.Environments.Get(s.EnvironmentID)
		if err != nil {
			continue
		}
		for _, h := range env.Hazards {
			if !dice.Chance(e.src, h.Chance) {
				continue
			}
			roll, err := e.deps.Roller.RollExpr(h.Damage)
			if err != nil {
				e.deps.Logger.Error("hazard dice", zap.String("hazard", h.Name), zap.Error(err))
				continue
			}
			hits++
			out, err := e.deps.Population.Damage(s.ID, float64(roll.Total()), h.Name)
			if err != nil {
				e.deps.Logger.Warn("hazard damage", zap.String("id", s.ID), zap.Error(err))
				break
			}
			if out.Kind == creature.DamageDead {
				break
			}
		}
	}
	return hits
}

// Crisis forces a planet crisis immediately and returns the new environment,
// or "" when no other environment is registered.
func (e *Engine) Crisis() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.crisisLocked()
}

// crisisLocked shifts the planet to a random other environment, moves every
// living creature there and damages those lacking its vital traits.
// Caller must hold e.mu.
func (e *Engine) crisisLocked() string {
	var options []string
	for _, id := range e.deps.Environments.IDs() {
		if id != e.planet {
			options = append(options, id)
		}
	}
	if len(options) == 0 {
		return ""
	}
	next := options[e.src.Intn(len(options))]
	env, err := e.deps.Environments.Get(next)
	if err != nil {
		return ""
	}
	e.deps.Logger.Info("planet crisis",
		zap.String("from", e.planet),
		zap.String("to", next),
		zap.String("atmosphere", env.Atmosphere),
	)
	e.planet = next
	clear(e.stable)

	for _, s := range e.deps.Population.Living() {
		if err := e.deps.Population.Move(s.ID, next); err != nil {
			continue
		}
		missing := env.MissingVital(s.Record.Traits)
		if len(missing) == 0 {
			continue
		}
		dmg := CrisisDamagePerMissingVital * float64(len(missing))
		if _, err := e.deps.Population.Damage(s.ID, dmg, CauseCrisis); err != nil {
			e.deps.Logger.Warn("crisis damage", zap.String("id", s.ID), zap.Error(err))
		}
	}
	return next
}

func (e *Engine) recordDeath(s population.Snapshot, cause string) {
	e.deathMu.Lock()
	e.deaths = append(e.deaths, death{snap: s, cause: cause})
	e.deathMu.Unlock()
}

// flushDeaths fossilises pending deaths, hands the fossils to every recorder,
// saves the final state of each dead creature, stops tracking it and starts
// replacement lineages. Caller must hold e.mu.
func (e *Engine) flushDeaths(ctx context.Context) (int, error) {
	e.deathMu.Lock()
	pending := e.deaths
	e.deaths = nil
	e.deathMu.Unlock()

	var errs []error
	for _, d := range pending {
		env, _ := e.deps.Environments.Get(d.snap.EnvironmentID)
		if f, err := fossil.New(d.snap, env, d.cause, e.deps.Now()); err != nil {
			errs = append(errs, err)
		} else {
			for _, r := range e.deps.Recorders {
				if err := r.Record(ctx, f); err != nil {
					errs = append(errs, fmt.Errorf("recording fossil %q: %w", f.CreatureID, err))
				}
			}
		}
		if err := e.retire(ctx, d.snap); err != nil {
			errs = append(errs, err)
		}
		if !e.opts.Respawn {
			continue
		}
		gen := d.snap.Record.Generation + 1
		child, err := e.deps.Population.Spawn(offspringName(d.snap.Name, gen), e.planet, gen, e.deps.Now())
		if err != nil {
			errs = append(errs, fmt.Errorf("respawning lineage of %q: %w", d.snap.ID, err))
			continue
		}
		e.deps.Logger.Info("new lineage",
			zap.String("parent", d.snap.ID),
			zap.String("id", child.ID),
			zap.Int("generation", child.Record.Generation),
		)
	}
	return len(pending), errors.Join(errs...)
}

// retire writes the dead creature's final row, when a store is configured,
// and drops it from the population.
func (e *Engine) retire(ctx context.Context, s population.Snapshot) error {
	delete(e.stable, s.ID)
	if latest, err := e.deps.Population.Get(s.ID); err == nil {
		s = latest
	}
	var errs []error
	if e.deps.Store != nil {
		if err := e.deps.Store.SaveAll(ctx, []population.Snapshot{s}); err != nil {
			errs = append(errs, fmt.Errorf("saving dead creature %q: %w", s.ID, err))
		}
	}
	if err := e.deps.Population.Remove(s.ID); err != nil && !errors.Is(err, population.ErrCreatureNotFound) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// offspringName names a child after its lineage root, so names stay bounded
// however long the lineage runs: "Specimen-004" and "Specimen-004/g7" both
// give "Specimen-004/g8".
func offspringName(parent string, generation int) string {
	root, _, _ := strings.Cut(parent, "/")
	return fmt.Sprintf("%s/g%d", root, generation)
}

// Checkpoint saves every tracked creature through the store. It is a no-op
// without a store.
func (e *Engine) Checkpoint(ctx context.Context) error {
	if e.deps.Store == nil {
		return nil
	}
	snaps := e.deps.Population.All()
	start := time.Now()
	if err := e.deps.Store.SaveAll(ctx, snaps); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	e.deps.Logger.Debug("checkpoint written",
		zap.Int("creatures", len(snaps)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// RunSteps performs n steps back to back, each advancing TickInterval of
// simulated time, without waiting on the wall clock.
//
// Postcondition: Returns the reports of completed steps; stops early when ctx
// is cancelled.
func (e *Engine) RunSteps(ctx context.Context, n int) ([]StepReport, error) {
	reports := make([]StepReport, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		rep, err := e.Step(ctx, e.opts.TickInterval)
		reports = append(reports, rep)
		if err != nil {
			e.deps.Logger.Error("step failed", zap.Int64("tick", rep.Tick), zap.Error(err))
		}
	}
	return reports, nil
}

// Run steps the simulation every TickInterval until ctx is cancelled or Stop
// is called, then writes a final checkpoint.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()
	defer e.finalCheckpoint(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.stopCh:
			return nil
		case <-ticker.C:
			rep, err := e.Step(ctx, e.opts.TickInterval)
			if err != nil {
				e.deps.Logger.Error("step failed", zap.Int64("tick", rep.Tick), zap.Error(err))
			}
			if rep.Deaths > 0 || rep.Crisis != "" {
				e.deps.Logger.Info("tick",
					zap.Int64("tick", rep.Tick),
					zap.Int("mutations", rep.Mutations),
					zap.Int("hazard_hits", rep.HazardHits),
					zap.Int("duels", rep.Duels),
					zap.Int("deaths", rep.Deaths),
					zap.String("crisis", rep.Crisis),
				)
			}
		}
	}
}

// Stop makes Run return. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

func (e *Engine) finalCheckpoint(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalCheckpointTimeout)
	defer cancel()
	if err := e.Checkpoint(ctx); err != nil {
		e.deps.Logger.Error("final checkpoint", zap.Error(err))
	}
}

func creatureInfo(s population.Snapshot) scripting.CreatureInfo {
	return scripting.CreatureInfo{
		ID:              s.ID,
		Name:            s.Name,
		EnvironmentID:   s.EnvironmentID,
		Generation:      s.Record.Generation,
		Health:          s.Record.Health,
		MutationCount:   s.Record.MutationCount,
		AdaptiveCharges: s.Record.AdaptiveCharges,
		Age:             s.Age,
		Traits:          s.Record.Traits,
	}
}

package simulation_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/planeta/internal/game/creature"
	"github.com/cory-johannsen/planeta/internal/game/environment"
	"github.com/cory-johannsen/planeta/internal/game/population"
	"github.com/cory-johannsen/planeta/internal/scripting"
	"github.com/cory-johannsen/planeta/internal/simulation"
)

// noMutations keeps the trait sets fixed so scores stay predictable.
var noMutations = hookFunc(func(string, scripting.CreatureInfo) ([]string, bool) {
	return []string{}, true
})

func competitionOptions() simulation.Options {
	opts := quietOptions()
	opts.MutationInterval = time.Second
	opts.Competition = true
	return opts
}

func TestCompetitionScore(t *testing.T) {
	env := &environment.Environment{ID: "alpha", Vital: []string{"VITAL", "GILLS"}}
	cases := []struct {
		name   string
		health float64
		traits []string
		want   int
	}{
		{"bare", 100, nil, 100},
		{"rounded health", 72.4, nil, 72},
		{"one vital", 80, []string{"VITAL"}, 80 + 50 + 2},
		{"both vitals", 50, []string{"GILLS", "VITAL"}, 50 + 100 + 4},
		{"agility counted once", 60, []string{"AGILE", "QUICKLEARNER"}, 60 + 4 + 10},
		{"sense", 60, []string{"STRONGSENSE"}, 60 + 2 + 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := population.Snapshot{Record: creature.Record{
				Generation: 1, Health: tc.health, Traits: tc.traits, MutationCount: len(tc.traits),
			}}
			assert.Equal(t, tc.want, simulation.CompetitionScore(s, env))
		})
	}

	s := population.Snapshot{Record: creature.Record{Health: 40, Traits: []string{"VITAL"}, MutationCount: 1}}
	assert.Equal(t, 42, simulation.CompetitionScore(s, nil), "unknown environment has no vitals")
}

func TestStep_CompetitionDuelAndWinnerHeal(t *testing.T) {
	f := newFixture(t, competitionOptions(), fixedSource{}, testRegistry(t), noMutations)
	snaps, err := f.engine.Populate(2)
	require.NoError(t, err)
	strong, weak := snaps[0].ID, snaps[1].ID

	out, err := f.pop.Mutate(strong, []string{"VITAL"}, fixedSource{})
	require.NoError(t, err)
	require.Equal(t, creature.MutationAccepted, out.Kind)
	_, err = f.pop.Damage(strong, 15, "test")
	require.NoError(t, err)

	rep, err := f.engine.Step(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Duels)
	assert.Zero(t, rep.Deaths)

	// Scores 137 vs 100: the loser takes 37 + 137/5 = 64, mitigated by a charge.
	loser, _ := f.pop.Get(weak)
	assert.Equal(t, 68.0, loser.Record.Health)
	assert.Equal(t, 1, loser.Record.AdaptiveCharges)
	// The best survivor heals 10 + 2 per other survivor.
	winner, _ := f.pop.Get(strong)
	assert.Equal(t, 97.0, winner.Record.Health)
}

func TestStep_CompetitionDraw(t *testing.T) {
	f := newFixture(t, competitionOptions(), fixedSource{}, testRegistry(t), noMutations)
	_, err := f.engine.Populate(2)
	require.NoError(t, err)

	rep, err := f.engine.Step(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Duels)

	var hp []float64
	for _, s := range f.pop.Living() {
		hp = append(hp, s.Record.Health)
	}
	sort.Float64s(hp)
	assert.Equal(t, []float64{97, 100}, hp, "both take 3, one is then healed")
}

func TestStep_CompetitionDeathFossilised(t *testing.T) {
	f := newFixture(t, competitionOptions(), fixedSource{}, testRegistry(t), noMutations)
	snaps, err := f.engine.Populate(2)
	require.NoError(t, err)
	for _, hit := range []float64{20, 20, 20, 20, 10} {
		_, err := f.pop.Damage(snaps[1].ID, hit, "test")
		require.NoError(t, err)
	}

	rep, err := f.engine.Step(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Duels)
	assert.Equal(t, 1, rep.Deaths)

	require.Equal(t, 1, f.recorder.count())
	assert.Equal(t, snaps[1].ID, f.recorder.fossils[0].CreatureID)
	assert.Equal(t, simulation.CauseDuel, f.recorder.fossils[0].Cause)
	assert.Equal(t, 1, f.pop.Len())
}

func TestStep_CompetitionDisabled(t *testing.T) {
	opts := competitionOptions()
	opts.Competition = false
	f := newFixture(t, opts, fixedSource{}, testRegistry(t), noMutations)
	_, err := f.engine.Populate(3)
	require.NoError(t, err)

	rep, err := f.engine.Step(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Zero(t, rep.Duels)
	for _, s := range f.pop.Living() {
		assert.Equal(t, creature.MaxHealth, s.Record.Health)
	}
}

func TestStep_StabilityHealAndCrisisReset(t *testing.T) {
	opts := quietOptions()
	opts.MutationInterval = time.Second
	f := newFixture(t, opts, fixedSource{}, testRegistry(t), noMutations)
	snaps, err := f.engine.Populate(1)
	require.NoError(t, err)
	id := snaps[0].ID
	_, err = f.pop.Damage(id, 20, "test")
	require.NoError(t, err)

	health := func() float64 {
		s, err := f.pop.Get(id)
		require.NoError(t, err)
		return s.Record.Health
	}

	for i := 0; i < simulation.StableGenerations-1; i++ {
		_, err := f.engine.Step(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, 80.0, health(), "generation %d", i+1)
	}
	_, err = f.engine.Step(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 80+simulation.StableHealAmount, health())

	// Crisis: 30 damage for the missing COLD vital, mitigated by half.
	require.Equal(t, "beta", f.engine.Crisis())
	assert.Equal(t, 82.0, health())

	_, err = f.engine.Step(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 82.0, health(), "stability counter restarts after a crisis")
}

package creature_test

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/planeta/internal/game/creature"
	"github.com/cory-johannsen/planeta/internal/game/dice"
)

// indexSource always selects index val (mod n).
type indexSource struct{ val int }

func (s indexSource) Intn(n int) int { return s.val % n }

func TestNew_Defaults(t *testing.T) {
	v := creature.New()
	assert.Equal(t, 1, v.Generation())
	assert.Equal(t, 0, v.Adaptability())
	assert.Equal(t, 0, v.MutationCount())
	assert.Equal(t, 0.0, v.TotalDamage())
	assert.Equal(t, 100.0, v.Health())
	assert.Equal(t, 2, v.AdaptiveCharges())
	assert.Empty(t, v.Traits())
	assert.Equal(t, creature.Alive, v.Liveness())
	assert.Equal(t, "G1-A0-M0-D0-H100-AC2", v.CompactCode())
}

func TestNewGeneration(t *testing.T) {
	v, err := creature.NewGeneration(4)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Generation())

	_, err = creature.NewGeneration(0)
	assert.True(t, errors.Is(err, creature.ErrInvalidArgument))
}

func TestApplyDamage_MitigatedHit(t *testing.T) {
	v := creature.New()
	out, err := v.ApplyDamage(30)
	require.NoError(t, err)
	assert.Equal(t, creature.DamageAdapted, out.Kind)
	assert.Equal(t, 1, out.ChargesRemaining)
	assert.Equal(t, 85.0, v.Health())
	assert.True(t, strings.HasPrefix(v.CompactCode(), "G1-A0-M0-D30-H85-AC1"))
}

func TestApplyDamage_LethalHit(t *testing.T) {
	v := creature.New()
	out, err := v.ApplyDamage(150)
	require.NoError(t, err)
	assert.Equal(t, creature.DamageDead, out.Kind)
	assert.Equal(t, 0.0, v.Health())
	assert.Equal(t, 150.0, v.TotalDamage())
	assert.Equal(t, 2, v.AdaptiveCharges(), "lethal hit must not consume a charge")
	assert.True(t, v.IsDead())
}

func TestApplyDamage_SmallHitNotMitigated(t *testing.T) {
	v := creature.New()
	out, err := v.ApplyDamage(20)
	require.NoError(t, err)
	assert.Equal(t, creature.DamageTaken, out.Kind)
	assert.Equal(t, 80.0, out.HealthRemaining)
	assert.Equal(t, 2, v.AdaptiveCharges())
}

func TestApplyDamage_ChargesExhausted(t *testing.T) {
	v := creature.New()
	for i := 0; i < 2; i++ {
		out, err := v.ApplyDamage(25)
		require.NoError(t, err)
		require.Equal(t, creature.DamageAdapted, out.Kind)
	}
	out, err := v.ApplyDamage(25)
	require.NoError(t, err)
	assert.Equal(t, creature.DamageTaken, out.Kind)
	assert.Equal(t, 0, v.AdaptiveCharges())
	assert.InDelta(t, 100-12.5-12.5-25, v.Health(), 1e-9)
}

func TestApplyDamage_RejectsInvalidAmounts(t *testing.T) {
	for _, amount := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		v := creature.New()
		_, err := v.ApplyDamage(amount)
		require.Error(t, err)
		assert.True(t, errors.Is(err, creature.ErrInvalidArgument))
		assert.Equal(t, creature.New().Record(), v.Record(), "state must be untouched")
	}
}

func TestApplyDamage_DeadStaysDead(t *testing.T) {
	v := creature.New()
	_, err := v.ApplyDamage(100)
	require.NoError(t, err)
	out, err := v.ApplyDamage(10)
	require.NoError(t, err)
	assert.Equal(t, creature.DamageDead, out.Kind)
	assert.Equal(t, 110.0, v.TotalDamage())
	assert.Equal(t, 0.0, v.Health())
}

func TestApplyDamage_TotalDamageAccumulates_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		v := creature.New()
		hits := rapid.SliceOf(rapid.Float64Range(0, 200)).Draw(rt, "hits")
		for _, amount := range hits {
			before := v.TotalDamage()
			_, err := v.ApplyDamage(amount)
			require.NoError(rt, err)
			assert.Equal(rt, before+amount, v.TotalDamage())
		}
	})
}

func TestApplyDamage_MitigationRule_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		v := creature.New()
		warmup := rapid.SliceOfN(rapid.Float64Range(0, 40), 0, 4).Draw(rt, "warmup")
		for _, w := range warmup {
			_, _ = v.ApplyDamage(w)
		}
		if v.IsDead() {
			return
		}
		amount := rapid.Float64Range(0, 150).Draw(rt, "amount")
		healthBefore := v.Health()
		chargesBefore := v.AdaptiveCharges()

		out, err := v.ApplyDamage(amount)
		require.NoError(rt, err)

		lethal := healthBefore-amount <= 0
		mitigates := !lethal && chargesBefore > 0 && amount > creature.MitigationThreshold
		switch {
		case lethal:
			assert.Equal(rt, creature.DamageDead, out.Kind)
			assert.Equal(rt, chargesBefore, v.AdaptiveCharges())
		case mitigates:
			assert.Equal(rt, creature.DamageAdapted, out.Kind)
			assert.Equal(rt, chargesBefore-1, v.AdaptiveCharges())
			assert.Equal(rt, v.AdaptiveCharges(), out.ChargesRemaining)
		default:
			assert.Equal(rt, creature.DamageTaken, out.Kind)
			assert.Equal(rt, chargesBefore, v.AdaptiveCharges())
		}
	})
}

func TestHealthBounds_Property(t *testing.T) {
	pool := []string{"GILLS", "SWIMMING", "SALTTOL", "FURRED"}
	rapid.Check(t, func(rt *rapid.T) {
		v := creature.New()
		src := dice.NewSeededSource(rapid.Uint64().Draw(rt, "seed"))
		charges := v.AdaptiveCharges()
		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				_, err := v.ApplyDamage(rapid.Float64Range(0, 60).Draw(rt, "amount"))
				require.NoError(rt, err)
			case 1:
				before := len(v.Traits())
				_, err := v.ApplyMutation(pool, src)
				require.NoError(rt, err)
				assert.LessOrEqual(rt, len(v.Traits())-before, 1)
			case 2:
				v.Regenerate()
			}
			assert.GreaterOrEqual(rt, v.Health(), 0.0)
			assert.LessOrEqual(rt, v.Health(), creature.MaxHealth)
			assert.LessOrEqual(rt, v.AdaptiveCharges(), charges)
			charges = v.AdaptiveCharges()
			assertUnique(rt, v.Traits())
		}
	})
}

func assertUnique(t assert.TestingT, traits []string) {
	seen := map[string]bool{}
	for _, tr := range traits {
		assert.False(t, seen[tr], "duplicate trait %q", tr)
		seen[tr] = true
	}
}

func TestApplyMutation_Accepted(t *testing.T) {
	v := creature.New()
	out, err := v.ApplyMutation([]string{"GILLS", "SWIMMING"}, indexSource{val: 1})
	require.NoError(t, err)
	assert.Equal(t, creature.MutationOutcome{Kind: creature.MutationAccepted, Trait: "SWIMMING"}, out)
	assert.Equal(t, 1, v.MutationCount())
	assert.Equal(t, 1, v.Adaptability())
	assert.Equal(t, []string{"SWIMMING"}, v.Traits())
	assert.Equal(t, "G1-A1-M1-D0-H100-AC2-SWIMMING", v.CompactCode())
}

func TestApplyMutation_DuplicateRejected(t *testing.T) {
	v := creature.New()
	_, err := v.ApplyMutation([]string{"GILLS"}, indexSource{})
	require.NoError(t, err)
	out, err := v.ApplyMutation([]string{"GILLS"}, indexSource{})
	require.NoError(t, err)
	assert.Equal(t, creature.MutationRejected, out.Kind)
	assert.Equal(t, "GILLS", out.Trait)
	assert.Equal(t, 1, v.MutationCount())
	assert.Equal(t, 1, v.Adaptability())
}

func TestApplyMutation_NoCandidates(t *testing.T) {
	v := creature.New()
	out, err := v.ApplyMutation(nil, indexSource{})
	require.NoError(t, err)
	assert.Equal(t, creature.MutationNoCandidates, out.Kind)
	assert.Equal(t, 0, v.MutationCount())
	assert.Equal(t, 0, v.Adaptability())
	assert.Empty(t, v.Traits())
}

func TestApplyMutation_InvalidCandidate(t *testing.T) {
	v := creature.New()
	_, err := v.ApplyMutation([]string{"GILLS", "SALT-TOL"}, indexSource{})
	assert.True(t, errors.Is(err, creature.ErrInvalidArgument))
	assert.Empty(t, v.Traits())
}

func TestApplyMutation_OrderPreserved(t *testing.T) {
	v := creature.New()
	pool := []string{"C", "A", "B"}
	for i := range pool {
		_, err := v.ApplyMutation(pool, indexSource{val: i})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"C", "A", "B"}, v.Traits())
	assert.Equal(t, "G1-A3-M3-D0-H100-AC2-C-A-B", v.CompactCode())
}

func TestRegenerate(t *testing.T) {
	v := creature.New()
	assert.Equal(t, 100.0, v.Regenerate(), "idempotent at full health")
	assert.Equal(t, creature.New().Record(), v.Record())

	_, err := v.ApplyDamage(3)
	require.NoError(t, err)
	assert.Equal(t, 100.0, v.Regenerate(), "capped at MaxHealth")

	_, err = v.ApplyDamage(12)
	require.NoError(t, err)
	assert.Equal(t, 93.0, v.Regenerate())
}

func TestRegenerate_DeadNoOp(t *testing.T) {
	v := creature.New()
	_, err := v.ApplyDamage(120)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.Regenerate())
	assert.True(t, v.IsDead())
}

func TestHeal(t *testing.T) {
	v := creature.New()
	_, err := v.ApplyDamage(18)
	require.NoError(t, err)

	hp, err := v.Heal(10)
	require.NoError(t, err)
	assert.Equal(t, 92.0, hp)
	hp, err = v.Heal(17)
	require.NoError(t, err)
	assert.Equal(t, 100.0, hp)
	assert.Equal(t, 18.0, v.TotalDamage(), "healing never erases damage history")

	for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := v.Heal(bad)
		assert.ErrorIs(t, err, creature.ErrInvalidArgument)
	}

	_, err = v.ApplyDamage(150)
	require.NoError(t, err)
	hp, err = v.Heal(40)
	require.NoError(t, err)
	assert.Equal(t, 0.0, hp)
	assert.True(t, v.IsDead())
}

func TestRegenerator_Advance(t *testing.T) {
	v := creature.New()
	_, err := v.ApplyDamage(18)
	require.NoError(t, err)

	r := creature.NewRegenerator(5 * time.Second)
	pulses, hp := r.Advance(v, 4*time.Second)
	assert.Equal(t, 0, pulses)
	assert.Equal(t, 82.0, hp)

	pulses, hp = r.Advance(v, 7*time.Second)
	assert.Equal(t, 2, pulses, "carry of 4s plus 7s yields two pulses")
	assert.Equal(t, 92.0, hp)

	pulses, _ = r.Advance(v, -time.Minute)
	assert.Equal(t, 0, pulses)
}

func TestNewRegenerator_DefaultInterval(t *testing.T) {
	assert.Equal(t, creature.DefaultRegenInterval, creature.NewRegenerator(0).Interval())
}

func TestParseCompactCode(t *testing.T) {
	v, err := creature.ParseCompactCode("G3-A2-M2-D40-H65-AC1-GILLS-SWIMMI")
	require.NoError(t, err)
	assert.Equal(t, 3, v.Generation())
	assert.Equal(t, 2, v.Adaptability())
	assert.Equal(t, 2, v.MutationCount())
	assert.Equal(t, 40.0, v.TotalDamage())
	assert.Equal(t, 65.0, v.Health())
	assert.Equal(t, 1, v.AdaptiveCharges())
	assert.Equal(t, []string{"GILLS", "SWIMMI"}, v.Traits())
	assert.False(t, v.IsDead())
}

func TestParseCompactCode_Dead(t *testing.T) {
	v, err := creature.ParseCompactCode("G1-A0-M0-D150-H0-AC2")
	require.NoError(t, err)
	assert.True(t, v.IsDead())
}

func TestParseCompactCode_Invalid(t *testing.T) {
	for _, code := range []string{
		"",
		"G1-A0-M0-D0-H100",
		"X1-A0-M0-D0-H100-AC2",
		"G0-A0-M0-D0-H100-AC2",
		"G1-A0-M0-D0-H101-AC2",
		"G1-A0-M0-D0-H100-AC3",
		"G1-A0-M0-D0-H100-AC2-GILLS-GILLS",
		"G1-A0-M0-D0-H100-AC2-",
		"G1-A-M0-D0-H100-AC2",
		"G1-A0-M0-D0.5-H100-AC2",
	} {
		_, err := creature.ParseCompactCode(code)
		assert.True(t, errors.Is(err, creature.ErrInvalidArgument), "expected invalid argument for %q", code)
	}
}

func TestCompactCode_RoundTrip_Property(t *testing.T) {
	pool := []string{"GILLS", "SWIMMING", "HEATRES", "COLDRES", "FURRED"}
	rapid.Check(t, func(rt *rapid.T) {
		v := creature.New()
		src := dice.NewSeededSource(rapid.Uint64().Draw(rt, "seed"))
		for i := rapid.IntRange(0, 8).Draw(rt, "mutations"); i > 0; i-- {
			_, _ = v.ApplyMutation(pool, src)
		}
		for _, hit := range rapid.SliceOfN(rapid.IntRange(0, 40), 0, 5).Draw(rt, "hits") {
			_, _ = v.ApplyDamage(float64(hit))
		}

		parsed, err := creature.ParseCompactCode(v.CompactCode())
		require.NoError(rt, err)
		assert.Equal(rt, v.CompactCode(), parsed.CompactCode())
	})
}

func TestRecord_RoundTrip(t *testing.T) {
	v := creature.New()
	_, _ = v.ApplyDamage(33.3)
	_, _ = v.ApplyMutation([]string{"GILLS"}, indexSource{})

	restored, err := creature.FromRecord(v.Record())
	require.NoError(t, err)
	assert.Equal(t, v.Record(), restored.Record())
	assert.InDelta(t, 83.35, restored.Health(), 1e-9)
}

func TestRecord_YAMLRoundTrip(t *testing.T) {
	v := creature.New()
	_, _ = v.ApplyDamage(12.75)
	_, _ = v.ApplyMutation([]string{"SWIMMING"}, indexSource{})

	data, err := creature.MarshalRecord(v)
	require.NoError(t, err)
	restored, err := creature.ParseRecord(data)
	require.NoError(t, err)
	assert.Equal(t, v.Record(), restored.Record())
}

func TestParseRecord_JSON(t *testing.T) {
	v, err := creature.ParseRecord([]byte(`{"generation":2,"adaptability":1,"mutation_count":1,
		"total_damage":10.5,"health":89.5,"adaptive_charges":2,"traits":["GILLS"],"dead":false}`))
	require.NoError(t, err)
	assert.Equal(t, 89.5, v.Health())
	assert.Equal(t, 2, v.Generation())
}

func TestParseRecord_RejectsUnknownFields(t *testing.T) {
	_, err := creature.ParseRecord([]byte("generation: 1\nhealth: 100\nadaptive_charges: 2\nmana: 4\n"))
	assert.True(t, errors.Is(err, creature.ErrInvalidArgument))
}

func TestFromRecord_FailsClosed(t *testing.T) {
	valid := creature.New().Record()
	cases := map[string]func(r *creature.Record){
		"generation":      func(r *creature.Record) { r.Generation = 0 },
		"negative damage": func(r *creature.Record) { r.TotalDamage = -1 },
		"health high":     func(r *creature.Record) { r.Health = 100.5 },
		"health nan":      func(r *creature.Record) { r.Health = math.NaN() },
		"charges":         func(r *creature.Record) { r.AdaptiveCharges = 5 },
		"dead mismatch":   func(r *creature.Record) { r.Dead = true },
		"alive at zero":   func(r *creature.Record) { r.Health = 0 },
		"dup trait":       func(r *creature.Record) { r.Traits = []string{"A", "A"} },
		"bad trait":       func(r *creature.Record) { r.Traits = []string{"has space"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := valid
			mutate(&r)
			_, err := creature.FromRecord(r)
			assert.True(t, errors.Is(err, creature.ErrInvalidArgument))
		})
	}
}

func TestClone_Independent(t *testing.T) {
	v := creature.New()
	_, _ = v.ApplyMutation([]string{"GILLS"}, indexSource{})
	c := v.Clone()
	_, _ = c.ApplyMutation([]string{"FURRED"}, indexSource{})
	assert.Equal(t, []string{"GILLS"}, v.Traits())
	assert.Equal(t, []string{"GILLS", "FURRED"}, c.Traits())
}

func TestOutcomeStrings(t *testing.T) {
	assert.Equal(t, "adapted (charges=1 health=85.0)",
		creature.DamageOutcome{Kind: creature.DamageAdapted, ChargesRemaining: 1, HealthRemaining: 85}.String())
	assert.Equal(t, "dead", creature.DamageOutcome{Kind: creature.DamageDead}.String())
	assert.Equal(t, "rejected", creature.MutationRejected.String())
	assert.Equal(t, "dead", creature.Dead.String())
}

package simulation

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/cory-johannsen/planeta/internal/game/environment"
	"github.com/cory-johannsen/planeta/internal/game/population"
)

const (
	// CauseDuel is the death cause recorded for competition losses.
	CauseDuel = "duel"

	// StableGenerations is how many consecutive generations without a planet
	// crisis a creature must survive before it starts healing.
	StableGenerations = 3
	// StableHealAmount is healed each generation once a creature is stable.
	StableHealAmount = 17.0

	scorePerVital       = 50
	scorePerMutation    = 2
	scorePerEdgeTrait   = 10
	drawDamage          = 3
	minDuelDamage       = 5
	winnerHealBase      = 10.0
	winnerHealPerRunner = 2.0
)

// CompetitionScore ranks a creature for the competition round: its health,
// 50 per vital trait of env it carries, 2 per mutation, and 10 each for
// agility (AGILE or QUICKLEARNER) and STRONGSENSE.
func CompetitionScore(s population.Snapshot, env *environment.Environment) int {
	score := int(math.Round(s.Record.Health))
	has := make(map[string]bool, len(s.Record.Traits))
	for _, t := range s.Record.Traits {
		has[t] = true
	}
	if env != nil {
		for _, v := range env.Vital {
			if has[v] {
				score += scorePerVital
			}
		}
	}
	score += s.Record.MutationCount * scorePerMutation
	if has["AGILE"] || has["QUICKLEARNER"] {
		score += scorePerEdgeTrait
	}
	if has["STRONGSENSE"] {
		score += scorePerEdgeTrait
	}
	return score
}

// DuelResult describes one duel. Winner and Loser are empty on a draw, in
// which case both sides took Damage.
type DuelResult struct {
	ScoreA, ScoreB int
	Draw           bool
	Winner, Loser  string
	Damage         float64
}

// resolveDuel decides a duel from two scored snapshots. Equal scores fall
// back to health; equal health is a draw.
func resolveDuel(a, b population.Snapshot, sa, sb int) DuelResult {
	res := DuelResult{ScoreA: sa, ScoreB: sb}
	var ws, ls int
	switch {
	case sa > sb || (sa == sb && a.Record.Health > b.Record.Health):
		res.Winner, res.Loser, ws, ls = a.ID, b.ID, sa, sb
	case sb > sa || (sa == sb && b.Record.Health > a.Record.Health):
		res.Winner, res.Loser, ws, ls = b.ID, a.ID, sb, sa
	default:
		res.Draw = true
		res.Damage = drawDamage
		return res
	}
	gap := max(1, ws-ls)
	res.Damage = float64(max(minDuelDamage, gap+ws/5))
	return res
}

// scored pairs a snapshot with its environment for ranking.
type scored struct {
	snap  population.Snapshot
	env   *environment.Environment
	score int
}

func (e *Engine) rank(snaps []population.Snapshot) []scored {
	out := make([]scored, 0, len(snaps))
	for _, s := range snaps {
		env, _ := e.deps.Environments.Get(s.EnvironmentID)
		out = append(out, scored{snap: s, env: env, score: CompetitionScore(s, env)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// competitionRound ranks living creatures, lets every pair fight once and
// heals the best survivor. It returns the number of duels fought.
// Caller must hold e.mu.
func (e *Engine) competitionRound() int {
	pool := e.rank(e.deps.Population.Living())
	if len(pool) < 2 {
		return 0
	}

	duels := 0
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			a, errA := e.deps.Population.Get(pool[i].snap.ID)
			b, errB := e.deps.Population.Get(pool[j].snap.ID)
			if errA != nil || errB != nil || a.IsDead() || b.IsDead() {
				continue
			}
			res := resolveDuel(a, b, CompetitionScore(a, pool[i].env), CompetitionScore(b, pool[j].env))
			duels++
			if res.Draw {
				e.duelDamage(a.ID, res.Damage)
				e.duelDamage(b.ID, res.Damage)
				continue
			}
			e.duelDamage(res.Loser, res.Damage)
			e.deps.Logger.Debug("duel",
				zap.String("winner", res.Winner),
				zap.String("loser", res.Loser),
				zap.Float64("damage", res.Damage),
			)
		}
	}

	survivors := e.rank(e.deps.Population.Living())
	if len(survivors) == 0 {
		return duels
	}
	top := survivors[0]
	heal := winnerHealBase + winnerHealPerRunner*float64(len(survivors)-1)
	if _, err := e.deps.Population.Heal(top.snap.ID, heal); err != nil {
		e.deps.Logger.Warn("competition heal", zap.String("id", top.snap.ID), zap.Error(err))
	}
	e.deps.Logger.Info("competition winner",
		zap.String("id", top.snap.ID),
		zap.String("name", top.snap.Name),
		zap.Int("score", top.score),
		zap.Float64("heal", heal),
	)
	return duels
}

func (e *Engine) duelDamage(id string, amount float64) {
	if _, err := e.deps.Population.Damage(id, amount, CauseDuel); err != nil {
		e.deps.Logger.Warn("duel damage", zap.String("id", id), zap.Error(err))
	}
}

// stabilityRound counts one more crisis-free generation for every living
// creature and heals those stable for StableGenerations or more.
// Caller must hold e.mu.
func (e *Engine) stabilityRound() {
	for _, s := range e.deps.Population.Living() {
		e.stable[s.ID]++
		if e.stable[s.ID] < StableGenerations {
			continue
		}
		if _, err := e.deps.Population.Heal(s.ID, StableHealAmount); err != nil {
			e.deps.Logger.Warn("stability heal", zap.String("id", s.ID), zap.Error(err))
		}
	}
}

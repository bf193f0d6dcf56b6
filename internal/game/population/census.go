package population

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// TraitCount is how many living creatures carry a trait.
type TraitCount struct {
	Trait string
	Count int
}

// CensusReport summarises a population.
type CensusReport struct {
	Total         int
	Alive         int
	Dead          int
	MeanHealth    float64 // living creatures only
	StdDevHealth  float64 // living creatures only
	MeanMutations float64 // every creature
	MaxGeneration int
	TopTraits     []TraitCount // most common first, ties alphabetical
}

// Census computes population statistics from snapshots.
//
// Postcondition: Alive+Dead == Total; statistics over an empty set are zero.
func Census(snaps []Snapshot) CensusReport {
	r := CensusReport{Total: len(snaps)}
	if len(snaps) == 0 {
		return r
	}

	var health, mutations []float64
	counts := make(map[string]int)
	for _, s := range snaps {
		mutations = append(mutations, float64(s.Record.MutationCount))
		if s.Record.Generation > r.MaxGeneration {
			r.MaxGeneration = s.Record.Generation
		}
		if s.IsDead() {
			r.Dead++
			continue
		}
		r.Alive++
		health = append(health, s.Record.Health)
		for _, t := range s.Record.Traits {
			counts[t]++
		}
	}

	r.MeanMutations = stat.Mean(mutations, nil)
	switch len(health) {
	case 0:
	case 1:
		r.MeanHealth = health[0]
	default:
		r.MeanHealth, r.StdDevHealth = stat.MeanStdDev(health, nil)
	}

	for t, n := range counts {
		r.TopTraits = append(r.TopTraits, TraitCount{Trait: t, Count: n})
	}
	sort.Slice(r.TopTraits, func(i, j int) bool {
		if r.TopTraits[i].Count != r.TopTraits[j].Count {
			return r.TopTraits[i].Count > r.TopTraits[j].Count
		}
		return r.TopTraits[i].Trait < r.TopTraits[j].Trait
	})
	return r
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/planeta/internal/game/fossil"
)

// FossilRepository stores the fossil record. It implements fossil.Recorder.
type FossilRepository struct {
	db *pgxpool.Pool
}

var _ fossil.Recorder = (*FossilRepository)(nil)

// NewFossilRepository creates a FossilRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewFossilRepository(db *pgxpool.Pool) *FossilRepository {
	return &FossilRepository{db: db}
}

// Record inserts f. Recording the same fossil ID twice is a no-op.
func (r *FossilRepository) Record(ctx context.Context, f fossil.Fossil) error {
	traits := f.TraitList()
	if traits == nil {
		traits = []string{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO fossils
			(id, recorded_at, creature_id, name, environment, atmosphere,
			 generation, age, cause, genetic_code, traits, damage, mutations)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO NOTHING`,
		f.ID, f.RecordedAt.Time, f.CreatureID, f.Name, f.Environment, f.Atmosphere,
		f.Generation, f.Age, f.Cause, f.GeneticCode, traits, f.Damage, f.Mutations,
	)
	if err != nil {
		return fmt.Errorf("recording fossil for %q: %w", f.CreatureID, err)
	}
	return nil
}

// Top returns the hall of fame: the limit longest-lived fossils, ties broken
// by mutation count then recording time.
//
// Precondition: limit must be > 0.
// Postcondition: Returns at most limit fossils or a non-nil error.
func (r *FossilRepository) Top(ctx context.Context, limit int) ([]fossil.Fossil, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("fossil limit must be > 0, got %d", limit)
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, recorded_at, creature_id, name, environment, atmosphere,
		       generation, age, cause, genetic_code, traits, damage, mutations
		FROM fossils
		ORDER BY age DESC, mutations DESC, recorded_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing fossils: %w", err)
	}
	defer rows.Close()

	var out []fossil.Fossil
	for rows.Next() {
		var (
			f      fossil.Fossil
			traits []string
		)
		if err := rows.Scan(
			&f.ID, &f.RecordedAt.Time, &f.CreatureID, &f.Name, &f.Environment, &f.Atmosphere,
			&f.Generation, &f.Age, &f.Cause, &f.GeneticCode, &traits, &f.Damage, &f.Mutations,
		); err != nil {
			return nil, fmt.Errorf("scanning fossil: %w", err)
		}
		f.Traits = fossil.JoinTraits(traits)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing fossils: %w", err)
	}
	return out, nil
}

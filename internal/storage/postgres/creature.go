package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/planeta/internal/game/creature"
	"github.com/cory-johannsen/planeta/internal/game/population"
)

// ErrCreatureNotFound is returned when a creature lookup yields no results.
var ErrCreatureNotFound = errors.New("creature not found")

// StoredCreature is a creature row.
type StoredCreature struct {
	ID            string
	Name          string
	EnvironmentID string
	Age           int
	BornAt        time.Time
	Record        creature.Record
	UpdatedAt     time.Time
}

// CreatureRepository persists full-precision creature records.
type CreatureRepository struct {
	db *pgxpool.Pool
}

// NewCreatureRepository creates a CreatureRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewCreatureRepository(db *pgxpool.Pool) *CreatureRepository {
	return &CreatureRepository{db: db}
}

const creatureColumns = `id, name, environment_id, age, born_at,
	generation, adaptability, mutation_count, total_damage, health,
	adaptive_charges, traits, dead, updated_at`

// Save inserts or fully replaces the creature row for s.
//
// Precondition: s.Record must pass creature.Record.Validate.
// Postcondition: The stored row equals s; updated_at is refreshed.
func (r *CreatureRepository) Save(ctx context.Context, s population.Snapshot) error {
	return saveCreature(ctx, r.db, s)
}

// SaveAll saves every snapshot in one transaction.
//
// Postcondition: Either every row is written or none is.
func (r *CreatureRepository) SaveAll(ctx context.Context, snaps []population.Snapshot) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning checkpoint: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, s := range snaps {
		if err := saveCreature(ctx, tx, s); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing checkpoint: %w", err)
	}
	return nil
}

// Get loads one creature.
//
// Postcondition: Returns the row or ErrCreatureNotFound.
func (r *CreatureRepository) Get(ctx context.Context, id string) (StoredCreature, error) {
	row := r.db.QueryRow(ctx, `SELECT `+creatureColumns+` FROM creatures WHERE id = $1`, id)
	sc, err := scanCreature(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredCreature{}, fmt.Errorf("%w: %q", ErrCreatureNotFound, id)
	}
	if err != nil {
		return StoredCreature{}, fmt.Errorf("loading creature %q: %w", id, err)
	}
	return sc, nil
}

// ListLiving returns every living creature ordered by birth.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *CreatureRepository) ListLiving(ctx context.Context) ([]StoredCreature, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+creatureColumns+` FROM creatures WHERE NOT dead ORDER BY born_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing creatures: %w", err)
	}
	defer rows.Close()

	var out []StoredCreature
	for rows.Next() {
		sc, err := scanCreature(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning creature: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing creatures: %w", err)
	}
	return out, nil
}

// Delete removes a creature row.
//
// Postcondition: Returns nil or ErrCreatureNotFound.
func (r *CreatureRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM creatures WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting creature %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrCreatureNotFound, id)
	}
	return nil
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func saveCreature(ctx context.Context, db execer, s population.Snapshot) error {
	if err := s.Record.Validate(); err != nil {
		return fmt.Errorf("saving creature %q: %w", s.ID, err)
	}
	traits := s.Record.Traits
	if traits == nil {
		traits = []string{}
	}
	_, err := db.Exec(ctx, `
		INSERT INTO creatures
			(id, name, environment_id, age, born_at,
			 generation, adaptability, mutation_count, total_damage, health,
			 adaptive_charges, traits, dead)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			environment_id = EXCLUDED.environment_id,
			age = EXCLUDED.age,
			adaptability = EXCLUDED.adaptability,
			mutation_count = EXCLUDED.mutation_count,
			total_damage = EXCLUDED.total_damage,
			health = EXCLUDED.health,
			adaptive_charges = EXCLUDED.adaptive_charges,
			traits = EXCLUDED.traits,
			dead = EXCLUDED.dead,
			updated_at = NOW()`,
		s.ID, s.Name, s.EnvironmentID, s.Age, s.BornAt,
		s.Record.Generation, s.Record.Adaptability, s.Record.MutationCount,
		s.Record.TotalDamage, s.Record.Health, s.Record.AdaptiveCharges,
		traits, s.Record.Dead,
	)
	if err != nil {
		return fmt.Errorf("saving creature %q: %w", s.ID, err)
	}
	return nil
}

func scanCreature(row pgx.Row) (StoredCreature, error) {
	var sc StoredCreature
	err := row.Scan(
		&sc.ID, &sc.Name, &sc.EnvironmentID, &sc.Age, &sc.BornAt,
		&sc.Record.Generation, &sc.Record.Adaptability, &sc.Record.MutationCount,
		&sc.Record.TotalDamage, &sc.Record.Health, &sc.Record.AdaptiveCharges,
		&sc.Record.Traits, &sc.Record.Dead, &sc.UpdatedAt,
	)
	if err != nil {
		return StoredCreature{}, err
	}
	if len(sc.Record.Traits) == 0 {
		sc.Record.Traits = nil
	}
	return sc, nil
}

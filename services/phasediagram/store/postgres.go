// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// DefaultCalcType labels calculations written through UpsertPhase.
const DefaultCalcType = "GGA"

// PostgresStore reads phases from the materials schema created by Migrate.
type PostgresStore struct {
	db *sqlx.DB
}

var _ Store = (*PostgresStore)(nil)

// PostgresConfig holds connection pool settings.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres connects with lib/pq and verifies the connection.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return NewPostgresStore(db), nil
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DB returns the underlying handle.
func (s *PostgresStore) DB() *sqlx.DB { return s.db }

type phaseRow struct {
	ID              int64           `db:"id"`
	MaterialID      string          `db:"material_id"`
	Formula         string          `db:"formula"`
	Chemsys         string          `db:"chemsys"`
	FormationEnergy sql.NullFloat64 `db:"formation_energy_per_atom"`
}

type compositionRow struct {
	MaterialID int64   `db:"material_id"`
	Element    string  `db:"element"`
	Amount     float64 `db:"amount"`
}

// One row per material: the calculation with the lowest formation energy.
const selectPhases = `
	SELECT DISTINCT ON (m.material_id)
	       m.id, m.material_id, m.formula, m.chemsys, c.formation_energy_per_atom
	FROM materials m
	JOIN calculations c ON c.material_id = m.id
	WHERE m.chemsys = ANY($1)
	  AND c.formation_energy_per_atom IS NOT NULL
	ORDER BY m.material_id, c.formation_energy_per_atom ASC, c.id ASC`

const selectCompositions = `
	SELECT material_id, element, amount
	FROM compositions
	WHERE material_id = ANY($1)
	ORDER BY material_id, element`

// PhasesInSystems implements Reader.
func (s *PostgresStore) PhasesInSystems(ctx context.Context, chemsys []string) ([]Phase, error) {
	var rows []phaseRow
	if err := s.db.SelectContext(ctx, &rows, selectPhases, pq.Array(chemsys)); err != nil {
		return nil, fmt.Errorf("select phases: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	var comps []compositionRow
	if err := s.db.SelectContext(ctx, &comps, selectCompositions, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("select compositions: %w", err)
	}
	byMaterial := make(map[int64]map[string]float64)
	for _, c := range comps {
		if byMaterial[c.MaterialID] == nil {
			byMaterial[c.MaterialID] = make(map[string]float64)
		}
		byMaterial[c.MaterialID][c.Element] = c.Amount
	}

	phases := make([]Phase, 0, len(rows))
	for _, r := range rows {
		p := Phase{
			PhaseID:     r.MaterialID,
			Formula:     r.Formula,
			Chemsys:     r.Chemsys,
			Composition: byMaterial[r.ID],
		}
		if r.FormationEnergy.Valid {
			e := r.FormationEnergy.Float64
			p.FormationEnergyPerAtom = &e
		}
		phases = append(phases, p)
	}
	return phases, nil
}

// ListSystems implements Reader.
func (s *PostgresStore) ListSystems(ctx context.Context, limit int) ([]SystemSummary, error) {
	var out []SystemSummary
	err := s.db.SelectContext(ctx, &out, `
		SELECT chemsys, COUNT(*) AS phase_count
		FROM materials
		GROUP BY chemsys
		ORDER BY chemsys
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}
	return out, nil
}

// UpsertPhase implements Writer. The material row, its composition and
// its DefaultCalcType calculation are replaced in one transaction.
func (s *PostgresStore) UpsertPhase(ctx context.Context, phase Phase) (res UpsertResult, err error) {
	phase, err = phase.Normalize()
	if err != nil {
		return UpsertResult{}, err
	}
	amounts, err := phase.Amounts()
	if err != nil {
		return UpsertResult{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var previous string
	err = tx.GetContext(ctx, &previous, `SELECT chemsys FROM materials WHERE material_id = $1 FOR UPDATE`, phase.PhaseID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return UpsertResult{}, fmt.Errorf("lock material: %w", err)
	}

	var id int64
	err = tx.GetContext(ctx, &id, `
		INSERT INTO materials (material_id, formula, formula_pretty, chemsys, nelements)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (material_id) DO UPDATE
		SET formula = EXCLUDED.formula,
		    formula_pretty = EXCLUDED.formula_pretty,
		    chemsys = EXCLUDED.chemsys,
		    nelements = EXCLUDED.nelements,
		    updated_at = now()
		RETURNING id`,
		phase.PhaseID, phase.Formula, amounts.ReducedString(), phase.Chemsys, len(amounts))
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert material: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM compositions WHERE material_id = $1`, id); err != nil {
		return UpsertResult{}, fmt.Errorf("clear composition: %w", err)
	}
	for _, el := range amounts.Elements() {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO compositions (material_id, element, amount) VALUES ($1, $2, $3)`,
			id, el, amounts[el])
		if err != nil {
			return UpsertResult{}, fmt.Errorf("insert composition %s: %w", el, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO calculations (material_id, calc_type, formation_energy_per_atom)
		VALUES ($1, $2, $3)
		ON CONFLICT (material_id, calc_type) DO UPDATE
		SET formation_energy_per_atom = EXCLUDED.formation_energy_per_atom`,
		id, DefaultCalcType, nullableFloat(phase.FormationEnergyPerAtom))
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert calculation: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("commit: %w", err)
	}
	phase.Composition = amounts.Clone()
	return UpsertResult{Phase: phase, PreviousChemsys: previous}, nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error { return s.db.Close() }

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

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
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresStore_PhasesInSystems(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT DISTINCT ON \(m.material_id\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "material_id", "formula", "chemsys", "formation_energy_per_atom"}).
			AddRow(int64(1), "mp-13", "Fe", "Fe", 0.0).
			AddRow(int64(2), "mp-19770", "Fe2O3", "Fe-O", -1.7))
	mock.ExpectQuery(`FROM compositions`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"material_id", "element", "amount"}).
			AddRow(int64(2), "Fe", 2.0).
			AddRow(int64(2), "O", 3.0))

	phases, err := s.PhasesInSystems(context.Background(), []string{"Fe", "O", "Fe-O"})
	require.NoError(t, err)
	require.Len(t, phases, 2)

	assert.Equal(t, "mp-13", phases[0].PhaseID)
	assert.Nil(t, phases[0].Composition, "formula is parsed when no composition rows exist")
	assert.Equal(t, 0.0, *phases[0].FormationEnergyPerAtom)
	assert.Equal(t, map[string]float64{"Fe": 2, "O": 3}, phases[1].Composition)
	assert.Equal(t, -1.7, *phases[1].FormationEnergyPerAtom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PhasesInSystemsEmpty(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT DISTINCT ON`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "material_id", "formula", "chemsys", "formation_energy_per_atom"}))

	phases, err := s.PhasesInSystems(context.Background(), []string{"Xe-Kr"})
	require.NoError(t, err)
	assert.Empty(t, phases)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PhasesInSystemsError(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery(`SELECT DISTINCT ON`).WillReturnError(boom)

	_, err := s.PhasesInSystems(context.Background(), []string{"Fe-O"})
	assert.ErrorIs(t, err, boom)
}

func TestPostgresStore_ListSystems(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT chemsys, COUNT\(\*\) AS phase_count`).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"chemsys", "phase_count"}).
			AddRow("Fe-O", 4).
			AddRow("Li-O", 2))

	got, err := s.ListSystems(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, []SystemSummary{{"Fe-O", 4}, {"Li-O", 2}}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPhase(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT chemsys FROM materials WHERE material_id = \$1 FOR UPDATE`).
		WithArgs("mp-19770").
		WillReturnRows(sqlmock.NewRows([]string{"chemsys"}).AddRow("Fe-O"))
	mock.ExpectQuery(`INSERT INTO materials`).
		WithArgs("mp-19770", "Fe2O3", "Fe2O3", "Fe-O", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(`DELETE FROM compositions`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO compositions`).
		WithArgs(int64(7), "Fe", 2.0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO compositions`).
		WithArgs(int64(7), "O", 3.0).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(`INSERT INTO calculations`).
		WithArgs(int64(7), DefaultCalcType, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := s.UpsertPhase(context.Background(), Phase{
		PhaseID:                "mp-19770",
		Formula:                "Fe2O3",
		FormationEnergyPerAtom: energy(-1.7),
	})
	require.NoError(t, err)
	assert.Equal(t, "Fe-O", res.PreviousChemsys)
	assert.Equal(t, "Fe-O", res.Phase.Chemsys)
	assert.Equal(t, map[string]float64{"Fe": 2, "O": 3}, res.Phase.Composition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPhaseRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT chemsys FROM materials`).
		WithArgs("mp-new").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO materials`).
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	_, err := s.UpsertPhase(context.Background(), Phase{PhaseID: "mp-new", Formula: "FeO"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert material")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPhaseRejectsInvalid(t *testing.T) {
	s, mock := newMockStore(t)

	_, err := s.UpsertPhase(context.Background(), Phase{PhaseID: "mp-1", Formula: "Fe(O"})
	assert.ErrorIs(t, err, ErrInvalidPhase)
	assert.NoError(t, mock.ExpectationsWereMet(), "no statements for invalid input")
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	names, err := Migrations()
	require.NoError(t, err)
	require.Len(t, names, 3)
	assert.Equal(t, "migrations/0001_materials.sql", names[0])

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS materials`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS compositions`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS calculations`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), sqlx.NewDb(db, "postgres")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

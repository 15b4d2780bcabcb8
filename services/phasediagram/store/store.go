// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store supplies phase records to the phase-diagram service.
//
// Two implementations exist: MemoryStore for tests, seeds and offline
// computation, and PostgresStore for the materials database.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianMaterials/pkg/validation"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/composition"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/formula"
)

// ErrInvalidPhase is returned when a phase record cannot be normalized.
var ErrInvalidPhase = errors.New("invalid phase record")

// Phase is one persisted compound with its formation energy.
type Phase struct {
	PhaseID string `json:"phase_id" yaml:"phase_id"`
	Formula string `json:"formula" yaml:"formula"`
	Chemsys string `json:"chemsys" yaml:"chemsys,omitempty"`

	// Composition is the structured element->amount record. When empty,
	// the formula is parsed instead.
	Composition map[string]float64 `json:"composition,omitempty" yaml:"composition,omitempty"`

	// FormationEnergyPerAtom is nil when no calculation reports it.
	FormationEnergyPerAtom *float64 `json:"formation_energy_per_atom,omitempty" yaml:"formation_energy_per_atom,omitempty"`
}

// Amounts returns the phase's element amounts, preferring the structured
// composition over the formula string.
func (p Phase) Amounts() (formula.Amounts, error) {
	if len(p.Composition) > 0 {
		return formula.FromMap(p.Composition)
	}
	return formula.Parse(p.Formula)
}

// Normalize fills Chemsys from the phase's amounts and canonicalizes the
// formula. It fails with ErrInvalidPhase for a missing or malformed id
// and for an unparseable composition.
func (p Phase) Normalize() (Phase, error) {
	id, err := validation.SanitizeMaterialID(p.PhaseID)
	if err != nil {
		return Phase{}, fmt.Errorf("%w: %w", ErrInvalidPhase, err)
	}
	p.PhaseID = id
	amounts, err := p.Amounts()
	if err != nil {
		return Phase{}, fmt.Errorf("%w: %s: %w", ErrInvalidPhase, p.PhaseID, err)
	}
	sys, err := composition.SystemOf(amounts)
	if err != nil {
		return Phase{}, fmt.Errorf("%w: %s: %w", ErrInvalidPhase, p.PhaseID, err)
	}
	if strings.TrimSpace(p.Formula) == "" {
		p.Formula = amounts.ReducedString()
	}
	p.Chemsys = sys.String()
	return p, nil
}

// SystemSummary is one chemical system with data.
type SystemSummary struct {
	Chemsys    string `json:"chemsys" db:"chemsys"`
	PhaseCount int    `json:"phase_count" db:"phase_count"`
}

// UpsertResult reports what an upsert replaced.
type UpsertResult struct {
	Phase Phase

	// PreviousChemsys is the chemical system the record had before the
	// write, or empty for a new record.
	PreviousChemsys string
}

// Reader fetches phases for the phase-diagram service.
type Reader interface {
	// PhasesInSystems returns phases whose chemical system is one of
	// chemsys and that have a formation energy, ordered by phase id.
	PhasesInSystems(ctx context.Context, chemsys []string) ([]Phase, error)

	// ListSystems returns distinct chemical systems, ordered by name.
	ListSystems(ctx context.Context, limit int) ([]SystemSummary, error)
}

// Writer persists phases.
type Writer interface {
	// UpsertPhase inserts or replaces the phase with the same id. The
	// phase must already be normalized.
	UpsertPhase(ctx context.Context, phase Phase) (UpsertResult, error)
}

// Store reads and writes phases.
type Store interface {
	Reader
	Writer
	Close() error
}

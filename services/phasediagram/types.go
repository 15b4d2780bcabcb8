// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phasediagram

import "github.com/AleutianAI/AleutianMaterials/services/phasediagram/store"

// Entry is one phase in an assembled diagram.
type Entry struct {
	PhaseID string `json:"phase_id"`
	Formula string `json:"formula"`

	// Composition maps element to atom fraction.
	Composition map[string]float64 `json:"composition"`

	FormationEnergyPerAtom float64 `json:"formation_energy_per_atom"`
	EnergyAboveHull        float64 `json:"energy_above_hull"`
	IsStable               bool    `json:"is_stable"`

	// IsReference marks a synthesized elemental reference.
	IsReference bool `json:"is_reference,omitempty"`

	// ShadowedBy names the phase preferred at the same composition.
	ShadowedBy string `json:"shadowed_by,omitempty"`
}

// Diagram is the phase diagram of one chemical system.
type Diagram struct {
	Chemsys  string   `json:"chemsys"`
	Elements []string `json:"elements"`
	Entries  []Entry  `json:"entries"`

	// StableEntries lists the ids of stable entries in entry order.
	StableEntries []string `json:"stable_entries"`
}

// HullVertex is a stable phase formatted for plotting.
type HullVertex struct {
	PhaseID                string             `json:"phase_id"`
	Formula                string             `json:"formula"`
	Composition            map[string]float64 `json:"composition"`
	FormationEnergyPerAtom float64            `json:"formation_energy_per_atom"`
}

// HullResponse is the body of GET /v1/phase-diagram/:chemsys/hull.
type HullResponse struct {
	Chemsys      string       `json:"chemsys"`
	Elements     []string     `json:"elements"`
	HullVertices []HullVertex `json:"hull_vertices"`
	NumStable    int          `json:"num_stable"`
}

// SystemsResponse is the body of GET /v1/phase-diagram.
type SystemsResponse struct {
	Systems []store.SystemSummary `json:"systems"`
	Count   int                   `json:"count"`
}

// InvalidateResponse is the body of DELETE /v1/phase-diagram/:chemsys/cache.
type InvalidateResponse struct {
	Chemsys     string `json:"chemsys"`
	Invalidated int    `json:"invalidated"`
}

// UpsertMaterialRequest is the body of POST /v1/materials.
type UpsertMaterialRequest struct {
	MaterialID             string             `json:"material_id" binding:"required,max=64"`
	Formula                string             `json:"formula" binding:"required_without=Composition,max=128"`
	Composition            map[string]float64 `json:"composition" binding:"omitempty,max=10,dive,keys,min=1,max=2,endkeys,gt=0"`
	FormationEnergyPerAtom *float64           `json:"formation_energy_per_atom" binding:"omitempty,gte=-50,lte=50"`
}

// Phase converts the request into a store record.
func (r UpsertMaterialRequest) Phase() store.Phase {
	return store.Phase{
		PhaseID:                r.MaterialID,
		Formula:                r.Formula,
		Composition:            r.Composition,
		FormationEnergyPerAtom: r.FormationEnergyPerAtom,
	}
}

// UpsertMaterialResponse is the body returned by POST /v1/materials.
type UpsertMaterialResponse struct {
	MaterialID  string   `json:"material_id"`
	Formula     string   `json:"formula"`
	Chemsys     string   `json:"chemsys"`
	Invalidated []string `json:"invalidated_systems"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

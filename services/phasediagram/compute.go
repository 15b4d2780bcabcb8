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

import (
	"fmt"
	"sort"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/composition"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/formula"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/hull"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/stability"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/store"
)

// ComputeOptions controls one diagram computation.
type ComputeOptions struct {
	// IncludeUnstable keeps phases above the hull in the output.
	IncludeUnstable bool

	// Tolerance is the on-hull tolerance in eV/atom.
	Tolerance float64
}

// Computation is a diagram together with the points it was built from.
type Computation struct {
	Diagram Diagram

	// Points holds every point fed to the hull, references included, in
	// entry order.
	Points []composition.Point

	// Vertices holds the hull vertex ids.
	Vertices []string
}

type mapped struct {
	point   composition.Point
	formula string
	ref     bool
}

// Compute assembles the phase diagram of sys from phases. It performs no
// I/O and is safe for concurrent use.
//
// # Description
//
// Phases without a formation energy are skipped. Every element of sys
// lacking a real pure-element phase at or below zero energy gets a
// synthesized reference at zero energy. The hull is built over all
// points and every point is classified.
//
// Entries are ordered references first, in element order, then real
// phases by id. Unless opts.IncludeUnstable, unstable entries are
// dropped.
//
// # Outputs
//
//	*Computation - The diagram plus the hull input.
//	error        - ErrNoDataForSystem when no real phase remains;
//	               composition, hull and stability errors wrapped with
//	               the offending phase id.
func Compute(sys composition.ChemicalSystem, phases []store.Phase, opts ComputeOptions) (*Computation, error) {
	space := composition.NewSpace(sys)

	found := make([]mapped, 0, len(phases))
	pure := make(map[string]float64)
	for _, ph := range phases {
		if ph.FormationEnergyPerAtom == nil {
			continue
		}
		amounts, err := ph.Amounts()
		if err != nil {
			return nil, fmt.Errorf("phase %s: %w", ph.PhaseID, err)
		}
		p, err := space.Map(ph.PhaseID, amounts, *ph.FormationEnergyPerAtom)
		if err != nil {
			return nil, err
		}
		if el, ok := space.PureElement(p); ok {
			if cur, seen := pure[el]; !seen || p.Energy < cur {
				pure[el] = p.Energy
			}
		}
		found = append(found, mapped{point: p, formula: displayFormula(ph, amounts)})
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDataForSystem, sys)
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].point.ID < found[j].point.ID })

	var all []mapped
	for _, el := range sys.Elements() {
		if e, ok := pure[el]; ok && e <= 0 {
			continue
		}
		ref, err := space.Reference(el)
		if err != nil {
			return nil, err
		}
		all = append(all, mapped{point: ref, formula: el, ref: true})
	}
	all = append(all, found...)

	points := make([]composition.Point, len(all))
	for i, m := range all {
		points[i] = m.point
	}

	h, err := hull.Build(points, hull.WithTolerance(opts.Tolerance))
	if err != nil {
		return nil, fmt.Errorf("build hull for %s: %w", sys, err)
	}
	results, err := stability.Evaluate(h, points, opts.Tolerance)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", sys, err)
	}

	d := Diagram{
		Chemsys:       sys.String(),
		Elements:      sys.Elements(),
		Entries:       make([]Entry, 0, len(results)),
		StableEntries: []string{},
	}
	for i, r := range results {
		if !r.IsStable && !opts.IncludeUnstable {
			continue
		}
		m := all[i]
		d.Entries = append(d.Entries, Entry{
			PhaseID:                r.ID,
			Formula:                m.formula,
			Composition:            space.Composition(m.point),
			FormationEnergyPerAtom: m.point.Energy,
			EnergyAboveHull:        r.EnergyAboveHull,
			IsStable:               r.IsStable,
			IsReference:            m.ref,
			ShadowedBy:             r.ShadowedBy,
		})
		if r.IsStable {
			d.StableEntries = append(d.StableEntries, r.ID)
		}
	}

	return &Computation{Diagram: d, Points: points, Vertices: h.Vertices()}, nil
}

func displayFormula(ph store.Phase, amounts formula.Amounts) string {
	if ph.Formula != "" {
		return ph.Formula
	}
	return amounts.ReducedString()
}

// Hull formats the stable entries of d for plotting.
func (d Diagram) Hull() HullResponse {
	resp := HullResponse{
		Chemsys:      d.Chemsys,
		Elements:     d.Elements,
		HullVertices: []HullVertex{},
	}
	for _, e := range d.Entries {
		if !e.IsStable {
			continue
		}
		resp.HullVertices = append(resp.HullVertices, HullVertex{
			PhaseID:                e.PhaseID,
			Formula:                e.Formula,
			Composition:            e.Composition,
			FormationEnergyPerAtom: e.FormationEnergyPerAtom,
		})
	}
	resp.NumStable = len(resp.HullVertices)
	return resp
}

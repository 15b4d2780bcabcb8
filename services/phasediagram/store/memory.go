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
	"sort"
	"sync"
)

// MemoryStore keeps phases in a map. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	phases map[string]Phase
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store holding phases. Phases are normalized
// on insert.
func NewMemoryStore(phases ...Phase) (*MemoryStore, error) {
	s := &MemoryStore{phases: make(map[string]Phase, len(phases))}
	for _, p := range phases {
		n, err := p.Normalize()
		if err != nil {
			return nil, err
		}
		s.phases[n.PhaseID] = n
	}
	return s, nil
}

// PhasesInSystems implements Reader.
func (s *MemoryStore) PhasesInSystems(ctx context.Context, chemsys []string) ([]Phase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(chemsys))
	for _, c := range chemsys {
		want[c] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Phase
	for _, p := range s.phases {
		if want[p.Chemsys] && p.FormationEnergyPerAtom != nil {
			out = append(out, clonePhase(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhaseID < out[j].PhaseID })
	return out, nil
}

// ListSystems implements Reader.
func (s *MemoryStore) ListSystems(ctx context.Context, limit int) ([]SystemSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	counts := make(map[string]int)
	for _, p := range s.phases {
		counts[p.Chemsys]++
	}
	s.mu.RUnlock()

	out := make([]SystemSummary, 0, len(counts))
	for c, n := range counts {
		out = append(out, SystemSummary{Chemsys: c, PhaseCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chemsys < out[j].Chemsys })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertPhase implements Writer.
func (s *MemoryStore) UpsertPhase(ctx context.Context, phase Phase) (UpsertResult, error) {
	if err := ctx.Err(); err != nil {
		return UpsertResult{}, err
	}
	n, err := phase.Normalize()
	if err != nil {
		return UpsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res := UpsertResult{Phase: n}
	if prev, ok := s.phases[n.PhaseID]; ok {
		res.PreviousChemsys = prev.Chemsys
	}
	s.phases[n.PhaseID] = clonePhase(n)
	return res, nil
}

// Len returns the number of stored phases.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.phases)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func clonePhase(p Phase) Phase {
	if p.Composition != nil {
		c := make(map[string]float64, len(p.Composition))
		for k, v := range p.Composition {
			c[k] = v
		}
		p.Composition = c
	}
	if p.FormationEnergyPerAtom != nil {
		e := *p.FormationEnergyPerAtom
		p.FormationEnergyPerAtom = &e
	}
	return p
}

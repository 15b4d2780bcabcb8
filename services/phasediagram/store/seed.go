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
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML document read by LoadSeed:
//
//	phases:
//	  - phase_id: mp-19770
//	    formula: Fe2O3
//	    formation_energy_per_atom: -1.7
type SeedFile struct {
	Phases []Phase `yaml:"phases"`
}

// LoadSeed decodes and normalizes a seed document.
func LoadSeed(r io.Reader) ([]Phase, error) {
	var doc SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	seen := make(map[string]bool, len(doc.Phases))
	out := make([]Phase, 0, len(doc.Phases))
	for i, p := range doc.Phases {
		n, err := p.Normalize()
		if err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
		if seen[n.PhaseID] {
			return nil, fmt.Errorf("seed entry %d: %w: duplicate phase id %s", i, ErrInvalidPhase, n.PhaseID)
		}
		seen[n.PhaseID] = true
		out = append(out, n)
	}
	return out, nil
}

// LoadSeedFile reads a seed document from path.
func LoadSeedFile(path string) ([]Phase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadSeed(f)
}

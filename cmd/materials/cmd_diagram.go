// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/store"
)

type diagramOptions struct {
	file            string
	includeUnstable bool
	hullOnly        bool
	tolerance       float64
}

func newDiagramCmd() *cobra.Command {
	opts := &diagramOptions{}
	cmd := &cobra.Command{
		Use:   "diagram [chemsys]",
		Short: "Compute a phase diagram offline from a phases file",
		Long: `Reads phases from a YAML seed file, computes the diagram of chemsys and
prints it as JSON. No database or cache is used.`,
		Example: "  materials diagram --file phases.yaml Fe-O --include-unstable",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagram(cmd, opts, args[0])
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "YAML file of phases (required)")
	cmd.Flags().BoolVar(&opts.includeUnstable, "include-unstable", false, "include phases above the hull")
	cmd.Flags().BoolVar(&opts.hullOnly, "hull", false, "print only the hull vertices")
	cmd.Flags().Float64Var(&opts.tolerance, "tolerance", 0, "on-hull tolerance in eV/atom (0 uses the default)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runDiagram(cmd *cobra.Command, opts *diagramOptions, chemsys string) error {
	phases, err := store.LoadSeedFile(opts.file)
	if err != nil {
		return err
	}
	st, err := store.NewMemoryStore(phases...)
	if err != nil {
		return err
	}

	svcOpts := []phasediagram.ServiceOption{}
	if opts.tolerance > 0 {
		svcOpts = append(svcOpts, phasediagram.WithTolerance(opts.tolerance))
	}
	svc := phasediagram.NewService(st, svcOpts...)
	defer svc.Close()

	ctx := commandContext(cmd)
	var out any
	if opts.hullOnly {
		out, err = svc.Hull(ctx, chemsys)
	} else {
		out, err = svc.PhaseDiagram(ctx, chemsys, opts.includeUnstable)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", chemsys, err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

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
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianMaterials/pkg/logging"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/config"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "materials",
		Short: "Serve and inspect phase diagrams",
		Long: `materials computes thermodynamic phase diagrams: the lower convex hull
of formation energy over composition, and each phase's energy above it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	// --- Server ---
	root.AddCommand(newServeCmd(opts))

	// --- Offline ---
	root.AddCommand(newDiagramCmd())

	// --- Administration ---
	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newSeedCmd(opts))
	root.AddCommand(newInvalidateCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// setup loads the configuration and builds the process logger. Callers
// close the returned logger.
func (o *rootOptions) setup(cmd *cobra.Command) (config.Config, *logging.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "materials",
		JSON:    cfg.Log.JSON,
		Console: cmd.ErrOrStderr(),
	})
	slog.SetDefault(logger.Slog())
	return cfg, logger, nil
}

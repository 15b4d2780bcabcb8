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
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/config"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/server"
	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/store"
)

// =============================================================================
// Database
// =============================================================================

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema to the configured postgres store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Close()
			if cfg.Store.Backend != config.StorePostgres {
				return fmt.Errorf("migrate needs store.backend %q, got %q", config.StorePostgres, cfg.Store.Backend)
			}

			ctx := commandContext(cmd)
			pg, err := store.OpenPostgres(ctx, store.PostgresConfig{DSN: cfg.Store.PostgresDSN})
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := store.Migrate(ctx, pg.DB()); err != nil {
				return err
			}
			logger.Slog().Info("Migrations applied")
			return nil
		},
	}
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert every phase in a YAML file into the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Close()

			phases, err := store.LoadSeedFile(file)
			if err != nil {
				return err
			}
			// The seed file is the input here, not a preload.
			cfg.Store.SeedFile = ""

			ctx := commandContext(cmd)
			st, err := server.OpenStore(ctx, cfg.Store, logger.Slog())
			if err != nil {
				return err
			}
			defer st.Close()

			systems := make(map[string]bool)
			for _, p := range phases {
				res, err := st.UpsertPhase(ctx, p)
				if err != nil {
					return fmt.Errorf("upsert %s: %w", p.PhaseID, err)
				}
				systems[res.Phase.Chemsys] = true
			}
			logger.Slog().Info("Seed complete", "phases", len(phases), "systems", len(systems))
			fmt.Fprintf(cmd.OutOrStdout(), "upserted %d phase(s) across %d system(s)\n", len(phases), len(systems))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file of phases (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// =============================================================================
// Cache
// =============================================================================

func newInvalidateCmd() *cobra.Command {
	var serverURL string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "invalidate [chemsys]",
		Short: "Drop cached diagrams of chemsys and every system containing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: timeout}
			res, err := requestInvalidate(cmd, client, serverURL, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invalidated %d cached diagram(s) for %s\n", res.Invalidated, res.Chemsys)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:12220", "base URL of a running materials server")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func requestInvalidate(cmd *cobra.Command, client *http.Client, base, chemsys string) (*phasediagram.InvalidateResponse, error) {
	endpoint := strings.TrimRight(base, "/") + "/v1/phase-diagram/" + url.PathEscape(chemsys) + "/cache"
	req, err := http.NewRequestWithContext(commandContext(cmd), http.MethodDelete, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contact server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr phasediagram.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d %s: %s", resp.StatusCode, apiErr.Code, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var out phasediagram.InvalidateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// =============================================================================
// Configuration
// =============================================================================

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the materials configuration file",
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return errors.New("--output must not be empty")
			}
			if err := config.WriteDefault(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "materials.yaml", "destination path")
	cmd.AddCommand(initCmd)
	return cmd
}

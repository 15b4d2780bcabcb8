// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "MATERIALS_"

type lookupFunc func(string) (string, bool)

// loadDotEnv exports variables from path without overriding ones already
// set. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func applyEnv(cfg *Config, lookup lookupFunc) error {
	strs := map[string]*string{
		"HOST":           &cfg.Server.Host,
		"STORE":          &cfg.Store.Backend,
		"SEED_FILE":      &cfg.Store.SeedFile,
		"POSTGRES_DSN":   &cfg.Store.PostgresDSN,
		"CACHE":          &cfg.Cache.Backend,
		"BADGER_DIR":     &cfg.Cache.BadgerDir,
		"REDIS_URL":      &cfg.Cache.RedisURL,
		"LOG_LEVEL":      &cfg.Log.Level,
		"LOG_DIR":        &cfg.Log.Dir,
		"OTLP_ENDPOINT":  &cfg.Tracing.OTLPEndpoint,
		"TRACE_EXPORTER": &cfg.Tracing.Exporter,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":              &cfg.Server.Port,
		"CACHE_MAX_ENTRIES": &cfg.Cache.MaxEntries,
		"RATE_LIMIT_BURST":  &cfg.RateLimit.Burst,
	}
	for name, dst := range ints {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"STABILITY_TOLERANCE": &cfg.StabilityTol,
		"RATE_LIMIT_WRITES":   &cfg.RateLimit.WritesPerSecond,
		"TRACE_SAMPLE_RATIO":  &cfg.Tracing.SampleRatio,
	}
	for name, dst := range floats {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = f
		}
	}

	bools := map[string]*bool{
		"LOG_JSON":      &cfg.Log.JSON,
		"AUTO_MIGRATE":  &cfg.Store.AutoMigrate,
		"OTLP_INSECURE": &cfg.Tracing.Insecure,
		"WATCH_SEED":    &cfg.Store.WatchSeed,
	}
	for name, dst := range bools {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}

	if v, ok := lookup(EnvPrefix + "CACHE_TTL_SECONDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sCACHE_TTL_SECONDS: %w", EnvPrefix, err)
		}
		cfg.Cache.TTL = time.Duration(n) * time.Second
	}
	return nil
}

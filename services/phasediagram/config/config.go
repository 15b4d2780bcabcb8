// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the materials service configuration.
//
// Sources, later ones winning:
//
//  1. Default()
//  2. A YAML file, when a path is given
//  3. A .env file in the working directory, if present
//  4. MATERIALS_* environment variables
//
// The result is checked with go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheBadger = "badger"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config is the service configuration.
type Config struct {
	Server       ServerConfig    `yaml:"server"`
	Store        StoreConfig     `yaml:"store"`
	Cache        CacheConfig     `yaml:"cache"`
	Log          LogConfig       `yaml:"log"`
	Tracing      TracingConfig   `yaml:"tracing"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	StabilityTol float64         `yaml:"stability_tolerance" validate:"gte=0,lte=1"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	RequestTimeout  time.Duration `yaml:"request_timeout" validate:"gte=0"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory postgres"`

	// SeedFile preloads the memory store.
	SeedFile string `yaml:"seed_file"`

	// WatchSeed reloads SeedFile into the store whenever it changes.
	WatchSeed bool `yaml:"watch_seed"`

	PostgresDSN     string        `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" validate:"gte=0"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type CacheConfig struct {
	Backend    string        `yaml:"backend" validate:"oneof=memory badger redis none"`
	TTL        time.Duration `yaml:"ttl" validate:"gt=0"`
	MaxEntries int           `yaml:"max_entries" validate:"gte=0"`

	// BadgerDir is empty for an in-memory badger instance.
	BadgerDir string `yaml:"badger_dir"`

	RedisURL string `yaml:"redis_url" validate:"required_if=Backend redis"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

type TracingConfig struct {
	// Exporter is "otlp" or "stdout".
	Exporter string `yaml:"exporter" validate:"oneof=otlp stdout"`

	// OTLPEndpoint is a gRPC host:port. Empty disables the otlp exporter.
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SampleRatio  float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// Tracing exporters.
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

// Enabled reports whether spans are exported at all.
func (t TracingConfig) Enabled() bool {
	return t.Exporter == ExporterStdout || t.OTLPEndpoint != ""
}

type RateLimitConfig struct {
	// WritesPerSecond is per client. Zero disables limiting.
	WritesPerSecond float64 `yaml:"writes_per_second" validate:"gte=0"`
	Burst           int     `yaml:"burst" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            12220,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Store: StoreConfig{
			Backend:         StoreMemory,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Cache: CacheConfig{
			Backend:    CacheMemory,
			TTL:        time.Hour,
			MaxEntries: 256,
		},
		Log: LogConfig{Level: "info"},
		Tracing: TracingConfig{
			Exporter:    ExporterOTLP,
			Insecure:    true,
			SampleRatio: 1,
		},
		RateLimit: RateLimitConfig{
			WritesPerSecond: 5,
			Burst:           10,
		},
		StabilityTol: 0.001,
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Address returns host:port for the HTTP listener.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// WriteDefault writes Default() as YAML to path, creating directories.
// An existing file is left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache stores assembled phase diagrams keyed by chemical system
// and the include_unstable flag.
//
// # Description
//
// A Backend is a byte store with per-key TTL. Three exist: an in-process
// LRU, the embedded BadgerDB and Redis. The Loader sits in front of a
// backend, coalesces concurrent misses for one key into a single load and
// implements invalidation: a write to a chemical system drops the cached
// diagram of every system containing it.
//
// # Thread Safety
//
// All backends and the Loader are safe for concurrent use.
package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// KeyPrefix starts every phase-diagram cache key.
const KeyPrefix = "phase_diagram:"

// DefaultTTL is the lifetime of a cached diagram.
const DefaultTTL = time.Hour

// Key identifies one cached diagram.
type Key struct {
	Chemsys         string
	IncludeUnstable bool
}

// String renders the key as "phase_diagram:{chemsys}:{include_unstable}".
func (k Key) String() string {
	return KeyPrefix + k.Chemsys + ":" + strconv.FormatBool(k.IncludeUnstable)
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	rest, ok := strings.CutPrefix(s, KeyPrefix)
	if !ok {
		return Key{}, fmt.Errorf("cache key %q lacks prefix %q", s, KeyPrefix)
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 {
		return Key{}, fmt.Errorf("cache key %q lacks include_unstable", s)
	}
	flag, err := strconv.ParseBool(rest[i+1:])
	if err != nil {
		return Key{}, fmt.Errorf("cache key %q: %w", s, err)
	}
	return Key{Chemsys: rest[:i], IncludeUnstable: flag}, nil
}

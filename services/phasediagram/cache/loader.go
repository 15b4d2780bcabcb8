// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/composition"
)

// LoadFunc produces the serialized diagram on a miss.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Observer receives cache events. observability.Metrics implements it.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheInvalidated(keys int)
}

// DefaultLoadTimeout bounds a shared load once it no longer follows the
// context of the caller that started it.
const DefaultLoadTimeout = time.Minute

// Options configures a Loader.
type Options struct {
	TTL         time.Duration
	LoadTimeout time.Duration
	Logger      *slog.Logger
	Observer    Observer
}

// Option mutates Options.
type Option func(*Options)

// WithTTL sets the lifetime of stored entries.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) { o.TTL = ttl }
}

// WithLoadTimeout bounds each shared load. Non-positive values keep the
// default.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.LoadTimeout = d
		}
	}
}

// WithLogger sets the logger for backend failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithObserver registers an event observer.
func WithObserver(obs Observer) Option {
	return func(o *Options) { o.Observer = obs }
}

// Stats is a snapshot of Loader counters.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Loads         int64 `json:"loads"`
	LoadErrors    int64 `json:"load_errors"`
	BackendErrors int64 `json:"backend_errors"`
	Invalidated   int64 `json:"invalidated"`
}

// Loader is a read-through cache over a Backend.
//
// Thread Safety:
//
//	Safe for concurrent use. Concurrent misses on one key within one
//	invalidation generation share a single LoadFunc call. The shared
//	call does not inherit cancellation from any one caller.
type Loader struct {
	backend Backend
	options Options
	flight  singleflight.Group

	// generation advances on every invalidation. A load that started
	// before an invalidation does not store its result.
	generation atomic.Uint64

	hits          atomic.Int64
	misses        atomic.Int64
	loads         atomic.Int64
	loadErrors    atomic.Int64
	backendErrors atomic.Int64
	invalidated   atomic.Int64
}

// NewLoader returns a Loader over backend.
func NewLoader(backend Backend, opts ...Option) *Loader {
	options := Options{TTL: DefaultTTL, LoadTimeout: DefaultLoadTimeout, Logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Loader{backend: backend, options: options}
}

// GetOrLoad returns the cached value for key, calling load on a miss.
//
// # Outputs
//
//	[]byte - The value.
//	bool   - True when served from the backend.
//	error  - The error from load, or ctx.Err() when the caller gives up
//	         first. Backend failures are logged and treated as misses;
//	         failed loads are not cached.
func (l *Loader) GetOrLoad(ctx context.Context, key Key, load LoadFunc) ([]byte, bool, error) {
	k := key.String()

	v, ok, err := l.backend.Get(ctx, k)
	if err != nil {
		l.backendErrors.Add(1)
		l.options.Logger.Warn("cache get failed", "key", k, "error", err)
	}
	if ok {
		l.hits.Add(1)
		if l.options.Observer != nil {
			l.options.Observer.CacheHit()
		}
		return v, true, nil
	}

	l.misses.Add(1)
	if l.options.Observer != nil {
		l.options.Observer.CacheMiss()
	}

	// Keying the flight by generation keeps reads issued after an
	// invalidation from joining a load that started before it.
	gen := l.generation.Load()
	flightKey := fmt.Sprintf("%s#%d", k, gen)

	ch := l.flight.DoChan(flightKey, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.options.LoadTimeout)
		defer cancel()

		l.loads.Add(1)
		out, err := load(loadCtx)
		if err != nil {
			l.loadErrors.Add(1)
			return nil, err
		}
		if l.generation.Load() == gen {
			if err := l.backend.Set(loadCtx, k, out, l.options.TTL); err != nil {
				l.backendErrors.Add(1)
				l.options.Logger.Warn("cache set failed", "key", k, "error", err)
			}
		}
		return out, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]byte), false, nil
	}
}

// Invalidate removes the cached diagram of every system that contains
// all elements of sys, sys itself included, and returns how many keys
// were removed.
func (l *Loader) Invalidate(ctx context.Context, sys composition.ChemicalSystem) (int, error) {
	l.generation.Add(1)

	keys, err := l.backend.Keys(ctx, KeyPrefix)
	if err != nil {
		l.backendErrors.Add(1)
		return 0, err
	}

	var doomed []string
	for _, k := range keys {
		parsed, err := ParseKey(k)
		if err != nil {
			continue
		}
		cached, err := composition.ParseChemicalSystem(parsed.Chemsys)
		if err != nil {
			// Unparseable entries cannot be served either.
			doomed = append(doomed, k)
			continue
		}
		if sys.IsSubsetOf(cached) {
			doomed = append(doomed, k)
		}
	}
	if err := l.backend.Delete(ctx, doomed...); err != nil {
		l.backendErrors.Add(1)
		return 0, err
	}

	l.invalidated.Add(int64(len(doomed)))
	if l.options.Observer != nil {
		l.options.Observer.CacheInvalidated(len(doomed))
	}
	l.options.Logger.Info("phase diagram cache invalidated", "chemsys", sys.String(), "keys", len(doomed))
	return len(doomed), nil
}

// Stats returns a snapshot of the counters.
func (l *Loader) Stats() Stats {
	return Stats{
		Hits:          l.hits.Load(),
		Misses:        l.misses.Load(),
		Loads:         l.loads.Load(),
		LoadErrors:    l.loadErrors.Load(),
		BackendErrors: l.backendErrors.Load(),
		Invalidated:   l.invalidated.Load(),
	}
}

// Close closes the backend.
func (l *Loader) Close() error { return l.backend.Close() }

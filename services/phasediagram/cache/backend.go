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
	"container/list"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/storage/badger"
)

// Backend is a byte store with per-key expiry.
type Backend interface {
	// Get returns the value and true, or false for a missing or expired key.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. A non-positive ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Keys lists live keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	Close() error
}

// DefaultMaxEntries bounds the memory backend.
const DefaultMaxEntries = 256

// MemoryBackend is an in-process LRU with TTL.
type MemoryBackend struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element
	lru        *list.List // front is most recently used
	now        func() time.Time
}

type memoryEntry struct {
	key     string
	value   []byte
	expires time.Time // zero means never
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an LRU holding at most maxEntries values.
// maxEntries <= 0 selects DefaultMaxEntries.
func NewMemoryBackend(maxEntries int) *MemoryBackend {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryBackend{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		now:        time.Now,
	}
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	e := el.Value.(*memoryEntry)
	if m.expired(e) {
		m.remove(el)
		return nil, false, nil
	}
	m.lru.MoveToFront(el)
	return append([]byte(nil), e.value...), true, nil
}

// Set implements Backend.
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &memoryEntry{key: key, value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	if el, ok := m.entries[key]; ok {
		el.Value = e
		m.lru.MoveToFront(el)
		return nil
	}
	m.entries[key] = m.lru.PushFront(e)
	for m.lru.Len() > m.maxEntries {
		m.remove(m.lru.Back())
	}
	return nil
}

// Keys implements Backend.
func (m *MemoryBackend) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for k, el := range m.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if m.expired(el.Value.(*memoryEntry)) {
			m.remove(el)
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if el, ok := m.entries[k]; ok {
			m.remove(el)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) expired(e *memoryEntry) bool {
	return !e.expires.IsZero() && !m.now().Before(e.expires)
}

func (m *MemoryBackend) remove(el *list.Element) {
	m.lru.Remove(el)
	delete(m.entries, el.Value.(*memoryEntry).key)
}

// BadgerBackend stores diagrams in the embedded database.
type BadgerBackend struct {
	db *badger.DB
}

var _ Backend = (*BadgerBackend)(nil)

// NewBadgerBackend wraps an open database. Close closes it.
func NewBadgerBackend(db *badger.DB) *BadgerBackend {
	return &BadgerBackend{db: db}
}

// Get implements Backend.
func (b *BadgerBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := b.db.Get(ctx, []byte(key))
	if errors.Is(err, badger.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set implements Backend.
func (b *BadgerBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.db.Set(ctx, []byte(key), value, ttl)
}

// Keys implements Backend.
func (b *BadgerBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	raw, err := b.db.Keys(ctx, []byte(prefix))
	if err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, k := range raw {
		out[i] = string(k)
	}
	return out, nil
}

// Delete implements Backend.
func (b *BadgerBackend) Delete(ctx context.Context, keys ...string) error {
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		raw[i] = []byte(k)
	}
	return b.db.Delete(ctx, raw...)
}

// Close implements Backend.
func (b *BadgerBackend) Close() error { return b.db.Close() }

// redisScanCount is the COUNT hint for SCAN.
const redisScanCount = 100

// RedisBackend stores diagrams in Redis.
type RedisBackend struct {
	client redis.UniversalClient
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend wraps an existing client. Close closes it.
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

// OpenRedis connects to url ("redis://host:port/db") and pings it.
func OpenRedis(ctx context.Context, url string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewRedisBackend(client), nil
}

// Get implements Backend.
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set implements Backend.
func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Keys implements Backend using SCAN.
func (r *RedisBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, prefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

// Delete implements Backend.
func (r *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Close implements Backend.
func (r *RedisBackend) Close() error { return r.client.Close() }

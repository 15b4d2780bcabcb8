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
	"os"
	"sort"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMaterials/services/phasediagram/storage/badger"
)

func TestKey_RoundTrip(t *testing.T) {
	k := Key{Chemsys: "Fe-Li-O", IncludeUnstable: true}
	assert.Equal(t, "phase_diagram:Fe-Li-O:true", k.String())

	parsed, err := ParseKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	for _, bad := range []string{"Fe-O:true", "phase_diagram:Fe-O", "phase_diagram::true", "phase_diagram:Fe-O:maybe"} {
		_, err := ParseKey(bad)
		assert.Error(t, err, bad)
	}
}

// exerciseBackend runs the behavior every Backend shares.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := b.Get(ctx, "phase_diagram:Fe-O:false")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "phase_diagram:Fe-O:false", []byte("a"), time.Minute))
	require.NoError(t, b.Set(ctx, "phase_diagram:Fe-O:true", []byte("b"), 0))
	require.NoError(t, b.Set(ctx, "unrelated", []byte("c"), 0))

	v, ok, err := b.Get(ctx, "phase_diagram:Fe-O:false")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", string(v))

	keys, err := b.Keys(ctx, KeyPrefix)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"phase_diagram:Fe-O:false", "phase_diagram:Fe-O:true"}, keys)

	require.NoError(t, b.Delete(ctx, keys...))
	require.NoError(t, b.Delete(ctx))
	keys, err = b.Keys(ctx, KeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, ok, err = b.Get(ctx, "unrelated")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Delete(ctx, "unrelated"))
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemoryBackend(0))
}

func TestMemoryBackend_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(2)

	require.NoError(t, b.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, b.Set(ctx, "b", []byte("2"), 0))
	_, _, _ = b.Get(ctx, "a")
	require.NoError(t, b.Set(ctx, "c", []byte("3"), 0))

	assert.Equal(t, 2, b.Len())
	_, ok, _ := b.Get(ctx, "b")
	assert.False(t, ok, "b was least recently used")
	_, ok, _ = b.Get(ctx, "a")
	assert.True(t, ok)
}

func TestMemoryBackend_Expiry(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(10)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "phase_diagram:Fe-O:false", []byte("x"), time.Hour))
	now = now.Add(59 * time.Minute)
	_, ok, _ := b.Get(ctx, "phase_diagram:Fe-O:false")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = b.Get(ctx, "phase_diagram:Fe-O:false")
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())
}

func TestMemoryBackend_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(1)
	value := []byte("abc")
	require.NoError(t, b.Set(ctx, "k", value, 0))
	value[0] = 'z'

	got, _, _ := b.Get(ctx, "k")
	assert.Equal(t, "abc", string(got))
	got[0] = 'y'
	again, _, _ := b.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestBadgerBackend(t *testing.T) {
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	b := NewBadgerBackend(db)
	defer b.Close()

	exerciseBackend(t, b)
}

func TestRedisBackend(t *testing.T) {
	url := os.Getenv("MATERIALS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MATERIALS_TEST_REDIS_URL not set; skipping redis integration test")
	}
	ctx := context.Background()
	b, err := OpenRedis(ctx, url)
	require.NoError(t, err)
	defer b.Close()

	stale, err := b.Keys(ctx, KeyPrefix)
	require.NoError(t, err)
	require.NoError(t, b.Delete(ctx, stale...))

	exerciseBackend(t, b)
}

func TestOpenRedis_BadURL(t *testing.T) {
	_, err := OpenRedis(context.Background(), "not-a-url")
	assert.Error(t, err)

	// A wrapped client is not contacted until used.
	b := NewRedisBackend(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))
	assert.NoError(t, b.Close())
}

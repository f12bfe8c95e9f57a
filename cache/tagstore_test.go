package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTagStoreInvalidate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTagStore(nil)

	require.NoError(t, s.Set(ctx, "list:category:phim-le", json.RawMessage(`1`), time.Hour, "categories", "category:phim-le"))
	require.NoError(t, s.Set(ctx, "list:country:han-quoc", json.RawMessage(`2`), time.Hour, "countries"))

	_, ok, err := s.Get(ctx, "list:category:phim-le")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.InvalidateTag(ctx, "categories"))

	_, ok, _ = s.Get(ctx, "list:category:phim-le")
	assert.False(t, ok, "entry tagged categories must be stale")

	_, ok, _ = s.Get(ctx, "list:country:han-quoc")
	assert.True(t, ok, "other tags are untouched")

	// Entries written after the invalidation are fresh again.
	require.NoError(t, s.Set(ctx, "list:category:phim-le", json.RawMessage(`3`), time.Hour, "categories"))
	got, ok, _ := s.Get(ctx, "list:category:phim-le")
	require.True(t, ok)
	assert.Equal(t, "3", string(got))
}

func TestMemoryTagStoreSetAtOldSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTagStore(nil)

	gens, err := s.Snapshot(ctx, "catalog", "categories", "")
	require.NoError(t, err)
	assert.Equal(t, Generations{"catalog": 0, "categories": 0}, gens)

	// Invalidated while the value was being loaded.
	require.NoError(t, s.InvalidateTag(ctx, "categories"))
	require.NoError(t, s.SetAt(ctx, "k", json.RawMessage(`"old"`), time.Hour, gens))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "value loaded before the invalidation must not be served")

	fresh, err := s.Snapshot(ctx, "catalog", "categories")
	require.NoError(t, err)
	require.NoError(t, s.SetAt(ctx, "k", json.RawMessage(`"new"`), time.Hour, fresh))
	got, ok, _ := s.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, `"new"`, string(got))
}

func TestGenerationsFingerprint(t *testing.T) {
	a := Generations{"categories": 2, "catalog": 0}
	b := Generations{"catalog": 0, "categories": 2}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), Generations{"catalog": 0, "categories": 3}.Fingerprint())
}

func TestMemoryTagStoreUnknownTag(t *testing.T) {
	s := NewMemoryTagStore(nil)
	assert.NoError(t, s.InvalidateTag(context.Background(), "nobody-uses-this"))
	assert.ErrorIs(t, s.InvalidateTag(context.Background(), ""), ErrEmptyTag)
}

func TestMemoryTagStoreExpiry(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryTagStore(clock.Now)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", json.RawMessage(`1`), time.Minute))
	clock.Advance(61 * time.Second)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTTLs(t *testing.T) {
	ttl := DefaultTTLs()
	assert.Equal(t, 24*time.Hour, ttl.For(ClassTaxonomy))
	assert.Equal(t, time.Hour, ttl.For(ClassMovies))
	assert.Equal(t, 2*time.Hour, ttl.For(ClassBatch))
}

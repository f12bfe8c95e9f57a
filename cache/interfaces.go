// Package cache provides the TTL caches used on both sides of phimhub: an
// in-process client cache with lazy expiry, and a server-side store whose
// entries can be invalidated in bulk by tag.
package cache

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Entry represents a cached payload with its expiry.
type Entry struct {
	Key       string          `json:"key"`
	Body      json.RawMessage `json:"body"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the entry must be treated as absent at now.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Reader defines the interface for reading cache entries
type Reader interface {
	// Get returns a copy of the stored body, or false when the key was never
	// set or has expired.
	Get(key string) (json.RawMessage, bool)
}

// Writer defines the interface for writing cache entries
type Writer interface {
	// Set stores body under key for ttl, replacing any previous entry.
	Set(key string, body json.RawMessage, ttl time.Duration)
}

// ReadWriter combines both cache operations
type ReadWriter interface {
	Reader
	Writer
}

// TagStore is the server-side cache. Entries carry tags and InvalidateTag
// marks every entry carrying a tag as stale without enumerating them.
type TagStore interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	// Set stores body under the current generations of tags.
	Set(ctx context.Context, key string, body json.RawMessage, ttl time.Duration, tags ...string) error
	// Snapshot returns the current generation of every tag.
	Snapshot(ctx context.Context, tags ...string) (Generations, error)
	// SetAt stores body under gens. Take gens before loading the value: an
	// invalidation that lands during the load then leaves the entry stale.
	SetAt(ctx context.Context, key string, body json.RawMessage, ttl time.Duration, gens Generations) error
	InvalidateTag(ctx context.Context, tag string) error
}

// Generations maps tags to their invalidation counters.
type Generations map[string]int64

// Fingerprint is a stable string form of g, equal for equal snapshots.
func (g Generations) Fingerprint() string {
	tags := make([]string, 0, len(g))
	for t := range g {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	var b strings.Builder
	for _, t := range tags {
		b.WriteString(t)
		b.WriteByte('=')
		b.WriteString(strconv.FormatInt(g[t], 10))
		b.WriteByte(';')
	}
	return b.String()
}

func cloneBody(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}

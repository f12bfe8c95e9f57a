package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrEmptyTag is returned when invalidating an empty tag.
var ErrEmptyTag = errors.New("cache: empty tag")

type taggedEntry struct {
	body      json.RawMessage
	expiresAt time.Time
	gens      Generations
}

// MemoryTagStore is a process-local TagStore. Every tag has a generation
// counter; an entry remembers the generations of its tags when written and is
// stale once any of them has moved on.
type MemoryTagStore struct {
	mu      sync.Mutex
	entries map[string]taggedEntry
	gens    map[string]int64
	now     func() time.Time
}

// NewMemoryTagStore creates an empty store. now may be nil.
func NewMemoryTagStore(now func() time.Time) *MemoryTagStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryTagStore{
		entries: make(map[string]taggedEntry),
		gens:    make(map[string]int64),
		now:     now,
	}
}

func (s *MemoryTagStore) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	for tag, gen := range e.gens {
		if s.gens[tag] != gen {
			delete(s.entries, key)
			return nil, false, nil
		}
	}
	return cloneBody(e.body), true, nil
}

func (s *MemoryTagStore) Set(_ context.Context, key string, body json.RawMessage, ttl time.Duration, tags ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, body, ttl, s.snapshotLocked(tags))
	return nil
}

func (s *MemoryTagStore) Snapshot(_ context.Context, tags ...string) (Generations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(tags), nil
}

func (s *MemoryTagStore) SetAt(_ context.Context, key string, body json.RawMessage, ttl time.Duration, gens Generations) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, body, ttl, gens)
	return nil
}

func (s *MemoryTagStore) snapshotLocked(tags []string) Generations {
	gens := make(Generations, len(tags))
	for _, t := range tags {
		if t != "" {
			gens[t] = s.gens[t]
		}
	}
	return gens
}

func (s *MemoryTagStore) setLocked(key string, body json.RawMessage, ttl time.Duration, gens Generations) {
	if ttl <= 0 {
		delete(s.entries, key)
		return
	}
	own := make(Generations, len(gens))
	for t, g := range gens {
		own[t] = g
	}
	s.entries[key] = taggedEntry{
		body:      cloneBody(body),
		expiresAt: s.now().Add(ttl),
		gens:      own,
	}
}

func (s *MemoryTagStore) InvalidateTag(_ context.Context, tag string) error {
	if tag == "" {
		return ErrEmptyTag
	}
	s.mu.Lock()
	s.gens[tag]++
	s.mu.Unlock()
	return nil
}

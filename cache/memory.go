package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// Memory is the client cache: a key/value store with per-entry expiry.
// Expired entries are dropped when read; there is no background sweep.
// Memory is safe for concurrent use.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	now        func() time.Time
	maxEntries int
}

type MemoryOption func(*Memory)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithMaxEntries bounds the number of stored entries. When full, expired
// entries are dropped first, then the entry closest to expiry.
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) { m.maxEntries = n }
}

// NewMemory creates an empty client cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Get implements Reader
func (m *Memory) Get(key string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if e.Expired(m.now()) {
		delete(m.entries, key)
		return nil, false
	}
	return cloneBody(e.Body), true
}

// Set implements Writer. A non-positive ttl removes the key.
func (m *Memory) Set(key string, body json.RawMessage, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl <= 0 {
		delete(m.entries, key)
		return
	}
	now := m.now()
	if _, exists := m.entries[key]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.evictLocked(now)
	}
	m.entries[key] = &Entry{
		Key:       key,
		Body:      cloneBody(body),
		ExpiresAt: now.Add(ttl),
	}
}

// Delete removes key if present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) evictLocked(now time.Time) {
	for k, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, k)
		}
	}
	if len(m.entries) < m.maxEntries {
		return
	}
	var (
		victim string
		soon   time.Time
	)
	for k, e := range m.entries {
		if victim == "" || e.ExpiresAt.Before(soon) {
			victim, soon = k, e.ExpiresAt
		}
	}
	delete(m.entries, victim)
}

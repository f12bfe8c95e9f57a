package cache

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a cache entry is not found or expired
	ErrNotFound = errors.New("cache entry not found or expired")
)

// ReadJSON decodes the entry stored under key into out. Because entries are
// kept as JSON, every read yields an independent copy.
func ReadJSON(r Reader, key string, out any) error {
	body, ok := r.Get(key)
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(body, out)
}

// WriteJSON encodes v and stores it under key for ttl.
func WriteJSON(w Writer, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Set(key, b, ttl)
	return nil
}

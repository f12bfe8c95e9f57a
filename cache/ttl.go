package cache

import "time"

// Class groups resources that share a time-to-live.
type Class int

const (
	// ClassTaxonomy covers categories, countries, genres and menu data.
	ClassTaxonomy Class = iota
	// ClassMovies covers movie listings, details and search results.
	ClassMovies
	// ClassBatch covers aggregated payloads built from several listings.
	ClassBatch
)

// TTLs holds the configured time-to-live of each class.
type TTLs struct {
	Taxonomy time.Duration
	Movies   time.Duration
	Batch    time.Duration
}

// DefaultTTLs returns 24h / 1h / 2h.
func DefaultTTLs() TTLs {
	return TTLs{
		Taxonomy: 24 * time.Hour,
		Movies:   time.Hour,
		Batch:    2 * time.Hour,
	}
}

// For returns the TTL of class c.
func (t TTLs) For(c Class) time.Duration {
	switch c {
	case ClassTaxonomy:
		return t.Taxonomy
	case ClassBatch:
		return t.Batch
	default:
		return t.Movies
	}
}

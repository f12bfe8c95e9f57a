// Package catalog holds the canonical movie and pagination types every layer
// of phimhub exchanges, independent of the upstream payload shapes.
package catalog

// Type classifies a catalog entry.
type Type string

const (
	TypeMovie  Type = "movie"
	TypeSeries Type = "series"
)

// ParseType maps an upstream type label onto one of the two canonical values.
// Anything that is not an episodic label is treated as a movie.
func ParseType(s string) Type {
	switch s {
	case "series", "tvshows", "tv", "phim-bo":
		return TypeSeries
	default:
		return TypeMovie
	}
}

// Ref is a name/slug pair used for genres and countries.
type Ref struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Movie is a normalized catalog record.
type Movie struct {
	ID           string   `json:"id"`
	Slug         string   `json:"slug"`
	Name         string   `json:"name"`
	OriginalName string   `json:"originalName"`
	PosterURL    string   `json:"posterUrl"`
	ThumbURL     string   `json:"thumbnailUrl"`
	Year         int      `json:"year"`
	Quality      string   `json:"quality"`
	Language     string   `json:"language"`
	Type         Type     `json:"type"`
	Genres       []Ref    `json:"genres"`
	Countries    []Ref    `json:"countries"`
	Actors       []string `json:"actors"`
	Directors    []string `json:"directors"`
	Synopsis     string   `json:"synopsis"`
	Duration     string   `json:"duration"`
}

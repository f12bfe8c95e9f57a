// Package listing maps the site's listing queries onto upstream operations
// and caches their results server-side under revalidation tags.
package listing

import (
	"context"
	"sort"
	"strconv"

	"github.com/phimhub/phimhub/catalog"
)

// Kind names a listing query shape.
type Kind string

const (
	KindCategory Kind = "category"
	KindCountry  Kind = "country"
	KindGenre    Kind = "genre"
	KindYear     Kind = "year"
	KindSearch   Kind = "search"
	KindNew      Kind = "new"
)

// Upstream is the subset of the upstream client the listing layer needs.
type Upstream interface {
	ByCategory(ctx context.Context, slug string, page int, opts catalog.Options) (catalog.Page, error)
	ByCountry(ctx context.Context, slug string, page int, opts catalog.Options) (catalog.Page, error)
	ByGenre(ctx context.Context, slug string, page int, opts catalog.Options) (catalog.Page, error)
	ByYear(ctx context.Context, year int, page int, opts catalog.Options) (catalog.Page, error)
	NewMovies(ctx context.Context, page int) (catalog.Page, error)
	Search(ctx context.Context, keyword string, page int, opts catalog.Options) (catalog.Page, error)
	Movie(ctx context.Context, slug string) (catalog.Movie, error)
	Genres(ctx context.Context) ([]catalog.Ref, error)
	Countries(ctx context.Context) ([]catalog.Ref, error)
}

// Source answers one kind of listing query.
type Source interface {
	// Kind returns the query shape this source serves (e.g. "category")
	Kind() Kind

	// List retrieves one page. slug is the primary dimension: a category,
	// country or genre slug, a year, or a search keyword.
	List(ctx context.Context, slug string, page int, opts catalog.Options) (catalog.Page, error)
}

type sourceFunc struct {
	kind Kind
	fn   func(ctx context.Context, slug string, page int, opts catalog.Options) (catalog.Page, error)
}

func (s sourceFunc) Kind() Kind { return s.kind }

func (s sourceFunc) List(ctx context.Context, slug string, page int, opts catalog.Options) (catalog.Page, error) {
	return s.fn(ctx, slug, page, opts)
}

// NewSource adapts a function to Source.
func NewSource(kind Kind, fn func(ctx context.Context, slug string, page int, opts catalog.Options) (catalog.Page, error)) Source {
	return sourceFunc{kind: kind, fn: fn}
}

// Registry manages the available listing sources
type Registry struct {
	sources map[Kind]Source
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[Kind]Source),
	}
}

// UpstreamRegistry registers one source per query shape of up.
func UpstreamRegistry(up Upstream) *Registry {
	r := NewRegistry()
	r.Register(NewSource(KindCategory, up.ByCategory))
	r.Register(NewSource(KindCountry, up.ByCountry))
	r.Register(NewSource(KindGenre, up.ByGenre))
	r.Register(NewSource(KindSearch, up.Search))
	r.Register(NewSource(KindYear, func(ctx context.Context, slug string, page int, opts catalog.Options) (catalog.Page, error) {
		year, err := strconv.Atoi(slug)
		if err != nil {
			return catalog.Page{}, catalog.Errorf(catalog.KindMissingParameter, "listing.year", "invalid year %q", slug)
		}
		return up.ByYear(ctx, year, page, opts)
	}))
	r.Register(NewSource(KindNew, func(ctx context.Context, _ string, page int, _ catalog.Options) (catalog.Page, error) {
		return up.NewMovies(ctx, page)
	}))
	return r
}

// Register adds a source, replacing any source of the same kind
func (r *Registry) Register(s Source) {
	r.sources[s.Kind()] = s
}

// Get retrieves a source by kind
func (r *Registry) Get(kind Kind) (Source, bool) {
	s, ok := r.sources[kind]
	return s, ok
}

// Kinds returns the registered kinds in sorted order
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.sources))
	for k := range r.sources {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

package listing

import (
	"strconv"

	"github.com/phimhub/phimhub/cache"
	"github.com/phimhub/phimhub/catalog"
)

// Tags shared by every cached listing.
const (
	TagCatalog = "catalog"
	TagMenu    = "menu"
	TagMovies  = "movies"
	TagHome    = "home"
)

// Query is one listing request.
type Query struct {
	Kind    Kind
	Slug    string
	Page    int
	Options catalog.Options
}

// Key is the server cache key of the query. Equal queries share a key
// regardless of parameter order. The slug travels as a parameter so that
// free-text search keywords cannot collide through path rewriting.
func (q Query) Key() string {
	params := q.Options.Params()
	params["page"] = strconv.Itoa(q.Page)
	if q.Kind == KindSearch {
		params["keyword"] = q.Slug
	} else {
		params["slug"] = q.Slug
	}
	return cache.KeyFor("movies/"+string(q.Kind), params)
}

// Tags returns the revalidation tags the query result is stored under: the
// catalog-wide tag, the tag of its kind, and one for the slug.
func (q Query) Tags() []string {
	tags := []string{TagCatalog, KindTag(q.Kind)}
	if q.Slug != "" {
		tags = append(tags, string(q.Kind)+":"+q.Slug)
	}
	return tags
}

// Class is the TTL class of the query result.
func (q Query) Class() cache.Class {
	switch q.Kind {
	case KindSearch, KindNew:
		return cache.ClassMovies
	default:
		return cache.ClassTaxonomy
	}
}

// KindTag names the tag covering every listing of kind k, e.g. "categories".
func KindTag(k Kind) string {
	switch k {
	case KindCategory:
		return "categories"
	case KindCountry:
		return "countries"
	case KindGenre:
		return "genres"
	case KindYear:
		return "years"
	case KindNew:
		return "new-movies"
	default:
		return string(k)
	}
}

func (q Query) normalized(defLimit, maxLimit int) Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Kind == KindNew {
		q.Slug = ""
		q.Options = catalog.Options{}
	}
	q.Options = q.Options.WithDefaultLimit(defLimit, maxLimit)
	return q
}

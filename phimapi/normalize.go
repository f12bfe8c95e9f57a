package phimapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	unidecode "github.com/mozillazg/go-unidecode"

	"github.com/phimhub/phimhub/catalog"
)

// shape identifies one of the known upstream listing layouts.
type shape int

const (
	shapeUnknown shape = iota
	// {items, pagination}: "new movies".
	shapeTopLevel
	// {data:{items, params:{pagination}}}: v1 category, genre, country, year, search.
	shapeDataParams
	// {data:{items, pagination}}
	shapeDataPagination
	// {items} or {data:{items}} with no pagination at all.
	shapeItemsOnly
	// a bare JSON array of items.
	shapeBareList
)

func (s shape) String() string {
	switch s {
	case shapeTopLevel:
		return "top-level"
	case shapeDataParams:
		return "data-params"
	case shapeDataPagination:
		return "data-pagination"
	case shapeItemsOnly:
		return "items-only"
	case shapeBareList:
		return "bare-list"
	default:
		return "unknown"
	}
}

// detected is the result of shape detection: where the items and the
// pagination block were found.
type detected struct {
	shape      shape
	items      json.RawMessage
	pagination *rawPagination
	cdnImage   string
}

var errNoItems = errors.New("payload has no item list")

func detectShape(raw []byte) (detected, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return detected{}, errors.New("empty payload")
	}
	if trimmed[0] == '[' {
		return detected{shape: shapeBareList, items: trimmed}, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return detected{}, fmt.Errorf("decode payload: %w", err)
	}

	d := env.Data
	switch {
	case d != nil && d.Params != nil && d.Params.Pagination != nil && isList(d.Items):
		return detected{shape: shapeDataParams, items: d.Items, pagination: d.Params.Pagination, cdnImage: d.CDNImage}, nil
	case d != nil && d.Pagination != nil && isList(d.Items):
		return detected{shape: shapeDataPagination, items: d.Items, pagination: d.Pagination, cdnImage: d.CDNImage}, nil
	case env.Pagination != nil && isList(env.Items):
		return detected{shape: shapeTopLevel, items: env.Items, pagination: env.Pagination, cdnImage: env.CDNImage}, nil
	case d != nil && isArray(d.Items):
		return detected{shape: shapeItemsOnly, items: d.Items, cdnImage: d.CDNImage}, nil
	case isArray(env.Items):
		return detected{shape: shapeItemsOnly, items: env.Items, cdnImage: env.CDNImage}, nil
	default:
		return detected{shape: shapeUnknown}, errNoItems
	}
}

func isArray(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '['
}

// isList also accepts null, which the upstream sends for empty pages.
func isList(b json.RawMessage) bool {
	return isArray(b) || bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}

// Normalize converts a raw listing payload into a catalog.Page. Relative
// image paths are resolved against the payload's CDN or DefaultImageCDN.
func Normalize(raw []byte, requestedPage, requestedLimit int) (catalog.Page, error) {
	return normalize(raw, requestedPage, requestedLimit, DefaultImageCDN)
}

func normalize(raw []byte, requestedPage, requestedLimit int, cdn string) (catalog.Page, error) {
	const op = "phimapi.Normalize"

	d, err := detectShape(raw)
	if err != nil {
		return catalog.Page{}, catalog.E(catalog.KindInvalidShape, op, err)
	}

	var items []rawMovie
	if isArray(d.items) {
		if err := json.Unmarshal(d.items, &items); err != nil {
			return catalog.Page{}, catalog.Errorf(catalog.KindInvalidShape, op, "decode %s items: %w", d.shape, err)
		}
	}
	if d.cdnImage != "" {
		cdn = d.cdnImage
	}

	movies := make([]catalog.Movie, 0, len(items))
	for _, it := range items {
		movies = append(movies, toMovie(it, cdn))
	}
	return catalog.Page{
		Data:       movies,
		Pagination: buildPagination(d.pagination, len(movies), requestedPage, requestedLimit),
	}, nil
}

// buildPagination flattens whatever the upstream reported. With no block at
// all it synthesizes one describing a single page holding every item.
func buildPagination(p *rawPagination, n, page, limit int) catalog.Pagination {
	if p == nil {
		per := limit
		if n > per {
			per = n
		}
		return catalog.NewPagination(n, per, page)
	}

	per := firstPositive(int(p.TotalItemsPerPage), int(p.ItemsPerPage), int(p.Limit), limit, n)
	current := firstPositive(int(p.CurrentPage), page)
	total := int(p.TotalItems)
	if total <= 0 && p.TotalPages > 0 {
		// Only a page count was reported: use its upper bound so the
		// page count survives the ceil invariant.
		total = int(p.TotalPages) * per
	}
	return catalog.NewPagination(total, per, current)
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func toMovie(r rawMovie, cdn string) catalog.Movie {
	return catalog.Movie{
		ID:           r.ID,
		Slug:         safeSlug(r.Slug, r.Name),
		Name:         strings.TrimSpace(r.Name),
		OriginalName: strings.TrimSpace(r.OriginName),
		PosterURL:    imageURL(cdn, r.PosterURL),
		ThumbURL:     imageURL(cdn, r.ThumbURL),
		Year:         int(r.Year),
		Quality:      r.Quality,
		Language:     r.Lang,
		Type:         catalog.ParseType(r.Type),
		Genres:       toRefs(r.Category),
		Countries:    toRefs(r.Country),
		Actors:       cleanStrings(r.Actor),
		Directors:    cleanStrings(r.Director),
		Synopsis:     strings.TrimSpace(r.Content),
		Duration:     r.Time,
	}
}

func toRefs(in []rawRef) []catalog.Ref {
	out := make([]catalog.Ref, 0, len(in))
	for _, r := range in {
		if r.Name == "" && r.Slug == "" {
			continue
		}
		out = append(out, catalog.Ref{Name: r.Name, Slug: safeSlug(r.Slug, r.Name)})
	}
	return out
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func imageURL(cdn, p string) string {
	p = strings.TrimSpace(p)
	switch {
	case p == "":
		return ""
	case strings.HasPrefix(p, "http://"), strings.HasPrefix(p, "https://"):
		return p
	case strings.HasPrefix(p, "//"):
		return "https:" + p
	case cdn == "":
		return p
	default:
		return strings.TrimRight(cdn, "/") + "/" + strings.TrimLeft(p, "/")
	}
}

var (
	slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	slugUnsafe  = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify transliterates s to ASCII and reduces it to lowercase words joined
// by single dashes: "Phim Hàn Quốc" becomes "phim-han-quoc".
func Slugify(s string) string {
	s = strings.ToLower(unidecode.Unidecode(s))
	s = slugUnsafe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func safeSlug(slug, name string) string {
	if slugPattern.MatchString(slug) {
		return slug
	}
	if s := Slugify(slug); s != "" {
		return s
	}
	return Slugify(name)
}

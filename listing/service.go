package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"

	"github.com/phimhub/phimhub/cache"
	"github.com/phimhub/phimhub/catalog"
)

// MenuKind selects one of the navigation lists.
type MenuKind string

const (
	MenuGenres    MenuKind = "genres"
	MenuCountries MenuKind = "countries"
)

// HomeSection is one block of the home page.
type HomeSection struct {
	Title string       `json:"title"`
	Query string       `json:"query"`
	Page  catalog.Page `json:"page"`
}

// Home aggregates several first pages into one payload.
type Home struct {
	Sections []HomeSection `json:"sections"`
}

type homeEntry struct {
	title string
	q     Query
}

var defaultHome = []homeEntry{
	{"Phim mới cập nhật", Query{Kind: KindNew}},
	{"Phim bộ", Query{Kind: KindCategory, Slug: "phim-bo"}},
	{"Phim lẻ", Query{Kind: KindCategory, Slug: "phim-le"}},
	{"Hoạt hình", Query{Kind: KindCategory, Slug: "hoat-hinh"}},
	{"TV Shows", Query{Kind: KindCategory, Slug: "tv-shows"}},
}

// Service serves listings from the tagged server cache, falling back to the
// registered sources on a miss. Concurrent misses for one key share a single
// upstream call.
type Service struct {
	upstream     Upstream
	registry     *Registry
	store        cache.TagStore
	ttls         cache.TTLs
	defaultLimit int
	maxLimit     int
	loadTimeout  time.Duration
	log          zerolog.Logger

	group singleflight.Group
}

const defaultLoadTimeout = 30 * time.Second

type ServiceOption func(*Service)

func WithRegistry(r *Registry) ServiceOption {
	return func(s *Service) { s.registry = r }
}

func WithTTLs(t cache.TTLs) ServiceOption {
	return func(s *Service) { s.ttls = t }
}

func WithLimits(def, maxLimit int) ServiceOption {
	return func(s *Service) { s.defaultLimit, s.maxLimit = def, maxLimit }
}

// WithLoadTimeout bounds one shared upstream load. The load outlives the
// request that started it, so it is not tied to any caller's context.
func WithLoadTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.loadTimeout = d }
}

func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

func NewService(up Upstream, store cache.TagStore, opts ...ServiceOption) *Service {
	s := &Service{
		upstream:     up,
		store:        store,
		ttls:         cache.DefaultTTLs(),
		defaultLimit: 15,
		maxLimit:     64,
		loadTimeout:  defaultLoadTimeout,
		log:          zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.registry == nil {
		s.registry = UpstreamRegistry(up)
	}
	return s
}

// DefaultLimit is the page size used when a query gives none.
func (s *Service) DefaultLimit() int { return s.defaultLimit }

// List returns one page of q, from the cache when possible.
func (s *Service) List(ctx context.Context, q Query) (catalog.Page, error) {
	q = q.normalized(s.defaultLimit, s.maxLimit)
	src, ok := s.registry.Get(q.Kind)
	if !ok {
		return catalog.Page{}, catalog.Errorf(catalog.KindMissingParameter, "listing.List", "unknown listing kind %q", q.Kind)
	}
	return cached(ctx, s, q.Key(), s.ttls.For(q.Class()), q.Tags(), func(ctx context.Context) (catalog.Page, error) {
		return src.List(ctx, q.Slug, q.Page, q.Options)
	})
}

// Menu returns the genre or country navigation list.
func (s *Service) Menu(ctx context.Context, kind MenuKind) ([]catalog.Ref, error) {
	var load func(context.Context) ([]catalog.Ref, error)
	switch kind {
	case MenuGenres:
		load = s.upstream.Genres
	case MenuCountries:
		load = s.upstream.Countries
	default:
		return nil, catalog.Errorf(catalog.KindMissingParameter, "listing.Menu", "unknown menu %q", kind)
	}
	return cached(ctx, s, "menu:"+string(kind), s.ttls.For(cache.ClassTaxonomy), []string{TagCatalog, TagMenu}, load)
}

// Movie returns a single title.
func (s *Service) Movie(ctx context.Context, slug string) (catalog.Movie, error) {
	slug = strings.TrimSpace(slug)
	return cached(ctx, s, "movie:"+slug, s.ttls.For(cache.ClassMovies), []string{TagCatalog, TagMovies, "movie:" + slug},
		func(ctx context.Context) (catalog.Movie, error) {
			return s.upstream.Movie(ctx, slug)
		})
}

// Home loads the home page sections concurrently. A failing section is
// rendered empty rather than failing the page.
func (s *Service) Home(ctx context.Context) (Home, error) {
	return cached(ctx, s, "home", s.ttls.For(cache.ClassBatch), s.homeTags(), func(ctx context.Context) (Home, error) {
		type indexed struct {
			i int
			HomeSection
		}
		p := pool.NewWithResults[indexed]().WithContext(ctx).WithMaxGoroutines(len(defaultHome))
		for i, sec := range defaultHome {
			p.Go(func(ctx context.Context) (indexed, error) {
				q := sec.q.normalized(s.defaultLimit, s.maxLimit)
				page, err := s.List(ctx, q)
				if err != nil {
					s.log.Warn().Err(err).Str("kind", string(q.Kind)).Str("slug", q.Slug).Msg("home section failed")
					page = catalog.EmptyPage(q.Page, q.Options.Limit)
				}
				return indexed{i, HomeSection{Title: sec.title, Query: q.Key(), Page: page}}, nil
			})
		}
		results, err := p.Wait()
		if err != nil {
			return Home{}, err
		}
		sections := make([]HomeSection, len(results))
		for _, r := range results {
			sections[r.i] = r.HomeSection
		}
		return Home{Sections: sections}, nil
	})
}

// homeTags covers the home entry and every listing embedded in it, so
// revalidating any section also drops the aggregate.
func (s *Service) homeTags() []string {
	seen := map[string]bool{}
	var tags []string
	add := func(ts ...string) {
		for _, t := range ts {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	add(TagCatalog, TagHome)
	for _, sec := range defaultHome {
		add(sec.q.normalized(s.defaultLimit, s.maxLimit).Tags()...)
	}
	return tags
}

// cached serves key from the tag store or loads, stores and returns it.
// Tag generations are read before the load, so a revalidation that lands
// while the load runs leaves the stored value stale. Concurrent misses under
// the same generations share one load. Store failures are logged and never
// fail the request.
func cached[T any](ctx context.Context, s *Service, key string, ttl time.Duration, tags []string, load func(context.Context) (T, error)) (T, error) {
	var zero T

	gens, err := s.store.Snapshot(ctx, tags...)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		gens = nil
	} else if body, ok, err := s.store.Get(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if ok {
		var v T
		if err := json.Unmarshal(body, &v); err == nil {
			return v, nil
		}
		s.log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	}

	flight := key + "#" + gens.Fingerprint()
	ch := s.group.DoChan(flight, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()

		v, err := load(lctx)
		if err != nil {
			return nil, err
		}
		if gens == nil {
			return v, nil
		}
		body, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		if err := s.store.SetAt(lctx, key, body, ttl, gens); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		if r.Shared {
			s.log.Debug().Str("key", key).Msg("shared in-flight upstream call")
		}
		return r.Val.(T), nil
	}
}

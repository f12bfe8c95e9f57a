package listing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phimhub/phimhub/cache"
	"github.com/phimhub/phimhub/catalog"
)

type fakeUpstream struct {
	mu      sync.Mutex
	counts  map[string]int
	version int
	fail    map[string]bool
	delay   time.Duration

	// When gate is set, a call reads the version, signals entered and
	// then blocks until gate is closed.
	entered chan string
	gate    chan struct{}
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{counts: make(map[string]int), fail: make(map[string]bool)}
}

func (f *fakeUpstream) calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key]
}

func (f *fakeUpstream) bump() {
	f.mu.Lock()
	f.version++
	f.mu.Unlock()
}

func (f *fakeUpstream) page(key string, page int, opts catalog.Options) (catalog.Page, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.counts[key]++
	version, fail, gate := f.version, f.fail[key], f.gate
	f.mu.Unlock()

	if gate != nil {
		f.entered <- key
		<-gate
	}
	if fail {
		return catalog.Page{}, catalog.E(catalog.KindNetwork, "fake", errors.New("upstream down"))
	}
	limit := opts.Limit
	if limit == 0 {
		limit = 15
	}
	return catalog.Page{
		Data:       []catalog.Movie{{Slug: fmt.Sprintf("%s-v%d", key, version), Type: catalog.TypeMovie}},
		Pagination: catalog.NewPagination(42, limit, page),
	}, nil
}

// hold makes upstream calls block until the returned release is called.
func (f *fakeUpstream) hold() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entered = make(chan string, 16)
	f.gate = make(chan struct{})
	gate := f.gate
	return func() {
		f.mu.Lock()
		f.gate = nil
		f.mu.Unlock()
		close(gate)
	}
}

func (f *fakeUpstream) ByCategory(_ context.Context, slug string, page int, opts catalog.Options) (catalog.Page, error) {
	return f.page("category:"+slug, page, opts)
}

func (f *fakeUpstream) ByCountry(_ context.Context, slug string, page int, opts catalog.Options) (catalog.Page, error) {
	return f.page("country:"+slug, page, opts)
}

func (f *fakeUpstream) ByGenre(_ context.Context, slug string, page int, opts catalog.Options) (catalog.Page, error) {
	return f.page("genre:"+slug, page, opts)
}

func (f *fakeUpstream) ByYear(_ context.Context, year int, page int, opts catalog.Options) (catalog.Page, error) {
	return f.page("year:"+strconv.Itoa(year), page, opts)
}

func (f *fakeUpstream) NewMovies(_ context.Context, page int) (catalog.Page, error) {
	return f.page("new", page, catalog.Options{})
}

func (f *fakeUpstream) Search(_ context.Context, keyword string, page int, opts catalog.Options) (catalog.Page, error) {
	return f.page("search:"+keyword, page, opts)
}

func (f *fakeUpstream) Movie(_ context.Context, slug string) (catalog.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts["movie:"+slug]++
	return catalog.Movie{Slug: slug, Name: fmt.Sprintf("v%d", f.version), Type: catalog.TypeSeries}, nil
}

func (f *fakeUpstream) Genres(context.Context) ([]catalog.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts["genres"]++
	return []catalog.Ref{{Name: "Hành Động", Slug: "hanh-dong"}}, nil
}

func (f *fakeUpstream) Countries(context.Context) ([]catalog.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts["countries"]++
	return []catalog.Ref{{Name: "Hàn Quốc", Slug: "han-quoc"}}, nil
}

func newTestService(up *fakeUpstream) (*Service, *cache.MemoryTagStore) {
	store := cache.NewMemoryTagStore(nil)
	return NewService(up, store), store
}

func TestListCachesResult(t *testing.T) {
	up := newFakeUpstream()
	svc, _ := newTestService(up)
	ctx := context.Background()
	q := Query{Kind: KindCategory, Slug: "phim-le", Page: 1}

	first, err := svc.List(ctx, q)
	require.NoError(t, err)
	second, err := svc.List(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, up.calls("category:phim-le"))
	assert.Equal(t, 15, first.Pagination.ItemsPerPage)
	assert.Equal(t, 3, first.Pagination.TotalPages)
}

func TestListRevalidatedTagBypassesCache(t *testing.T) {
	up := newFakeUpstream()
	svc, store := newTestService(up)
	ctx := context.Background()
	q := Query{Kind: KindCategory, Slug: "phim-le", Page: 1}

	before, err := svc.List(ctx, q)
	require.NoError(t, err)

	up.bump()
	require.NoError(t, store.InvalidateTag(ctx, "categories"))

	after, err := svc.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, up.calls("category:phim-le"))
	assert.NotEqual(t, before.Data[0].Slug, after.Data[0].Slug)

	// Other kinds keep their entries.
	_, err = svc.List(ctx, Query{Kind: KindCountry, Slug: "han-quoc", Page: 1})
	require.NoError(t, err)
	require.NoError(t, store.InvalidateTag(ctx, "categories"))
	_, err = svc.List(ctx, Query{Kind: KindCountry, Slug: "han-quoc", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, up.calls("country:han-quoc"))
}

func TestListCollapsesConcurrentMisses(t *testing.T) {
	up := newFakeUpstream()
	up.delay = 50 * time.Millisecond
	svc, _ := newTestService(up)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.List(context.Background(), Query{Kind: KindGenre, Slug: "hanh-dong", Page: 2})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, up.calls("genre:hanh-dong"))
}

func TestListErrors(t *testing.T) {
	up := newFakeUpstream()
	up.fail["category:phim-bo"] = true
	svc, _ := newTestService(up)
	ctx := context.Background()

	_, err := svc.List(ctx, Query{Kind: KindCategory, Slug: "phim-bo", Page: 1})
	assert.True(t, catalog.IsKind(err, catalog.KindNetwork))

	// Failures are not cached.
	_, _ = svc.List(ctx, Query{Kind: KindCategory, Slug: "phim-bo", Page: 1})
	assert.Equal(t, 2, up.calls("category:phim-bo"))

	_, err = svc.List(ctx, Query{Kind: "bogus", Slug: "x"})
	assert.True(t, catalog.IsKind(err, catalog.KindMissingParameter))
}

func TestQueryKeyAndTags(t *testing.T) {
	a := Query{Kind: KindCategory, Slug: "phim-le", Page: 1, Options: catalog.Options{SortField: "year", Limit: 15}}
	b := Query{Kind: KindCategory, Slug: "phim-le", Page: 1, Options: catalog.Options{Limit: 15, SortField: "year"}}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), Query{Kind: KindCategory, Slug: "phim-le", Page: 2}.Key())

	assert.NotEqual(t,
		Query{Kind: KindSearch, Slug: "a/b", Page: 1}.Key(),
		Query{Kind: KindSearch, Slug: "a:b", Page: 1}.Key(),
		"keywords differing only in / and : must not share an entry")

	assert.Equal(t, []string{"catalog", "categories", "category:phim-le"}, a.Tags())
	assert.Equal(t, []string{"catalog", "new-movies"}, Query{Kind: KindNew}.Tags())

	assert.Equal(t, cache.ClassTaxonomy, a.Class())
	assert.Equal(t, cache.ClassMovies, Query{Kind: KindSearch}.Class())

	n := Query{Kind: KindYear, Slug: "2024", Page: -3}.normalized(15, 64)
	assert.Equal(t, 1, n.Page)
	assert.Equal(t, 15, n.Options.Limit)
}

func TestMenuAndMovie(t *testing.T) {
	up := newFakeUpstream()
	svc, store := newTestService(up)
	ctx := context.Background()

	genres, err := svc.Menu(ctx, MenuGenres)
	require.NoError(t, err)
	assert.Equal(t, []catalog.Ref{{Name: "Hành Động", Slug: "hanh-dong"}}, genres)
	_, err = svc.Menu(ctx, MenuGenres)
	require.NoError(t, err)
	assert.Equal(t, 1, up.calls("genres"))

	_, err = svc.Menu(ctx, "studios")
	assert.True(t, catalog.IsKind(err, catalog.KindMissingParameter))

	m, err := svc.Movie(ctx, "ngoi-truong-xac-song")
	require.NoError(t, err)
	assert.Equal(t, "v0", m.Name)

	up.bump()
	require.NoError(t, store.InvalidateTag(ctx, "movie:ngoi-truong-xac-song"))
	m, err = svc.Movie(ctx, "ngoi-truong-xac-song")
	require.NoError(t, err)
	assert.Equal(t, "v1", m.Name)
	assert.Equal(t, 2, up.calls("movie:ngoi-truong-xac-song"))
}

func TestHome(t *testing.T) {
	up := newFakeUpstream()
	up.fail["category:hoat-hinh"] = true
	svc, store := newTestService(up)
	ctx := context.Background()

	home, err := svc.Home(ctx)
	require.NoError(t, err)
	require.Len(t, home.Sections, len(defaultHome))
	for i, sec := range home.Sections {
		assert.Equal(t, defaultHome[i].title, sec.Title)
	}
	assert.Empty(t, home.Sections[3].Page.Data, "failed section degrades to empty")
	assert.NotEmpty(t, home.Sections[0].Page.Data)

	_, err = svc.Home(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, up.calls("new"))

	require.NoError(t, store.InvalidateTag(ctx, TagHome))
	_, err = svc.Home(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, up.calls("new"), "sections stay cached under their own keys")
}

func TestListRevalidationDuringLoadIsNotLost(t *testing.T) {
	up := newFakeUpstream()
	svc, store := newTestService(up)
	ctx := context.Background()
	q := Query{Kind: KindCategory, Slug: "phim-le", Page: 1}

	release := up.hold()
	type result struct {
		page catalog.Page
		err  error
	}
	early := make(chan result, 1)
	go func() {
		p, err := svc.List(ctx, q)
		early <- result{p, err}
	}()
	<-up.entered // the load has read version 0 and is still running

	up.bump()
	require.NoError(t, store.InvalidateTag(ctx, "categories"))

	// A request arriving after the revalidation must not join the old load.
	late := make(chan result, 1)
	go func() {
		p, err := svc.List(ctx, q)
		late <- result{p, err}
	}()
	<-up.entered
	release()

	r := <-early
	require.NoError(t, r.err)
	assert.Equal(t, "category:phim-le-v0", r.page.Data[0].Slug)

	r = <-late
	require.NoError(t, r.err)
	assert.Equal(t, "category:phim-le-v1", r.page.Data[0].Slug)

	after, err := svc.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, "category:phim-le-v1", after.Data[0].Slug, "pre-revalidation payload must not be served")
	assert.Equal(t, 2, up.calls("category:phim-le"))
}

func TestListSharedLoadSurvivesCanceledCaller(t *testing.T) {
	up := newFakeUpstream()
	svc, _ := newTestService(up)
	q := Query{Kind: KindGenre, Slug: "hanh-dong", Page: 1}

	release := up.hold()
	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.List(ctx, q)
		first <- err
	}()
	<-up.entered

	second := make(chan error, 1)
	go func() {
		_, err := svc.List(context.Background(), q)
		second <- err
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)
	release()

	require.NoError(t, <-second)
	assert.Equal(t, 1, up.calls("genre:hanh-dong"))
}

func TestHomeDroppedBySectionTag(t *testing.T) {
	up := newFakeUpstream()
	svc, store := newTestService(up)
	ctx := context.Background()

	before, err := svc.Home(ctx)
	require.NoError(t, err)
	assert.Equal(t, "category:phim-le-v0", before.Sections[2].Page.Data[0].Slug)

	up.bump()
	require.NoError(t, store.InvalidateTag(ctx, "category:phim-le"))

	after, err := svc.Home(ctx)
	require.NoError(t, err)
	assert.Equal(t, "category:phim-le-v1", after.Sections[2].Page.Data[0].Slug)
	assert.Equal(t, "new-v0", after.Sections[0].Page.Data[0].Slug, "untouched sections stay cached")

	up.bump()
	require.NoError(t, store.InvalidateTag(ctx, "new-movies"))
	after, err = svc.Home(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-v2", after.Sections[0].Page.Data[0].Slug)
}

package phimapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/phimhub/phimhub/catalog"
)

const (
	DefaultBaseURL  = "https://phimapi.com"
	DefaultImageCDN = "https://phimimg.com"

	defaultLimit = 15
	maxLimit     = 64
)

// Client performs one upstream request per operation and normalizes the
// result. It never retries; that belongs to the Fetcher underneath.
type Client struct {
	fetcher      Fetcher
	baseURL      *url.URL
	imageCDN     string
	defaultLimit int
	maxLimit     int
}

type Option func(*Client)

// WithFetcher routes every request through f, usually the proxy gateway.
func WithFetcher(f Fetcher) Option {
	return func(c *Client) { c.fetcher = f }
}

func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			c.baseURL = u
		}
	}
}

func WithImageCDN(cdn string) Option {
	return func(c *Client) { c.imageCDN = cdn }
}

// WithDefaultLimit sets the page size used when a request gives none, and
// the largest page size the client will ask for.
func WithDefaultLimit(def, maxLimit int) Option {
	return func(c *Client) {
		if def > 0 {
			c.defaultLimit = def
		}
		if maxLimit >= c.defaultLimit {
			c.maxLimit = maxLimit
		}
	}
}

func New(opts ...Option) (*Client, error) {
	u, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		baseURL:      u,
		imageCDN:     DefaultImageCDN,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
	for _, o := range opts {
		o(c)
	}
	if c.fetcher == nil {
		c.fetcher = NewTransport()
	}
	if c.maxLimit < c.defaultLimit {
		return nil, errors.New("phimapi: max limit below default limit")
	}
	return c, nil
}

// BaseURL is the upstream root every request is built from.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// DefaultLimit is the page size used when options carry none.
func (c *Client) DefaultLimit() int { return c.defaultLimit }

func (c *Client) endpoint(p string, q url.Values) string {
	u := *c.baseURL
	u.Path = path.Join(u.Path, p)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) ByCategory(ctx context.Context, slug string, page int, opts catalog.Options) (catalog.Page, error) {
	return c.listing(ctx, "phimapi.ByCategory", "/v1/api/danh-sach", slug, page, opts)
}

func (c *Client) ByCountry(ctx context.Context, slug string, page int, opts catalog.Options) (catalog.Page, error) {
	return c.listing(ctx, "phimapi.ByCountry", "/v1/api/quoc-gia", slug, page, opts)
}

func (c *Client) ByGenre(ctx context.Context, slug string, page int, opts catalog.Options) (catalog.Page, error) {
	return c.listing(ctx, "phimapi.ByGenre", "/v1/api/the-loai", slug, page, opts)
}

func (c *Client) ByYear(ctx context.Context, year int, page int, opts catalog.Options) (catalog.Page, error) {
	if year <= 0 {
		return catalog.Page{}, catalog.Errorf(catalog.KindMissingParameter, "phimapi.ByYear", "invalid year %d", year)
	}
	return c.listing(ctx, "phimapi.ByYear", "/v1/api/nam", strconv.Itoa(year), page, opts)
}

// NewMovies lists recently updated titles. The endpoint ignores every
// option except the page.
func (c *Client) NewMovies(ctx context.Context, page int) (catalog.Page, error) {
	const op = "phimapi.NewMovies"
	q := url.Values{}
	q.Set("page", strconv.Itoa(pageOrFirst(page)))
	return c.fetchPage(ctx, op, c.endpoint("/danh-sach/phim-moi-cap-nhat", q), page, c.defaultLimit)
}

func (c *Client) Search(ctx context.Context, keyword string, page int, opts catalog.Options) (catalog.Page, error) {
	const op = "phimapi.Search"
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return catalog.Page{}, catalog.Errorf(catalog.KindMissingParameter, op, "keyword is required")
	}
	opts = opts.WithDefaultLimit(c.defaultLimit, c.maxLimit)
	q := opts.Values()
	q.Set("keyword", keyword)
	q.Set("page", strconv.Itoa(pageOrFirst(page)))
	return c.fetchPage(ctx, op, c.endpoint("/v1/api/tim-kiem", q), page, opts.Limit)
}

func (c *Client) listing(ctx context.Context, op, base, slug string, page int, opts catalog.Options) (catalog.Page, error) {
	slug, err := cleanSlug(slug)
	if err != nil {
		return catalog.Page{}, catalog.E(catalog.KindMissingParameter, op, err)
	}
	opts = opts.WithDefaultLimit(c.defaultLimit, c.maxLimit)
	q := opts.Values()
	q.Set("page", strconv.Itoa(pageOrFirst(page)))
	return c.fetchPage(ctx, op, c.endpoint(path.Join(base, slug), q), page, opts.Limit)
}

func (c *Client) fetchPage(ctx context.Context, op, target string, page, limit int) (catalog.Page, error) {
	raw, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		return catalog.Page{}, wrapOp(op, err)
	}
	p, err := normalize(raw, pageOrFirst(page), limit, c.imageCDN)
	if err != nil {
		return catalog.Page{}, wrapOp(op, err)
	}
	return p, nil
}

// Movie fetches a single title by slug.
func (c *Client) Movie(ctx context.Context, slug string) (catalog.Movie, error) {
	const op = "phimapi.Movie"
	slug, err := cleanSlug(slug)
	if err != nil {
		return catalog.Movie{}, catalog.E(catalog.KindMissingParameter, op, err)
	}
	raw, err := c.fetcher.Fetch(ctx, c.endpoint(path.Join("/phim", slug), nil))
	if err != nil {
		return catalog.Movie{}, wrapOp(op, err)
	}
	var d rawDetail
	if err := json.Unmarshal(raw, &d); err != nil {
		return catalog.Movie{}, catalog.Errorf(catalog.KindInvalidShape, op, "decode detail: %w", err)
	}
	if d.Movie == nil || (d.Movie.Slug == "" && d.Movie.Name == "") {
		msg := d.Msg
		if msg == "" {
			msg = "detail has no movie"
		}
		return catalog.Movie{}, catalog.Errorf(catalog.KindInvalidShape, op, "%s", msg)
	}
	return toMovie(*d.Movie, c.imageCDN), nil
}

func (c *Client) Genres(ctx context.Context) ([]catalog.Ref, error) {
	return c.refs(ctx, "phimapi.Genres", "/the-loai")
}

func (c *Client) Countries(ctx context.Context) ([]catalog.Ref, error) {
	return c.refs(ctx, "phimapi.Countries", "/quoc-gia")
}

func (c *Client) refs(ctx context.Context, op, p string) ([]catalog.Ref, error) {
	raw, err := c.fetcher.Fetch(ctx, c.endpoint(p, nil))
	if err != nil {
		return nil, wrapOp(op, err)
	}
	var in []rawRef
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, catalog.Errorf(catalog.KindInvalidShape, op, "decode list: %w", err)
	}
	return toRefs(in), nil
}

// wrapOp keeps the kind of an already classified error and tags the
// operation; anything unclassified is treated as a network failure.
func wrapOp(op string, err error) error {
	var ce *catalog.Error
	if errors.As(err, &ce) {
		return catalog.E(ce.Kind, op, err)
	}
	return catalog.E(catalog.KindNetwork, op, err)
}

// cleanSlug rejects anything that could step outside the endpoint path.
func cleanSlug(slug string) (string, error) {
	slug = strings.TrimSpace(slug)
	switch {
	case slug == "":
		return "", errors.New("slug is required")
	case slug == "." || slug == ".." || strings.ContainsAny(slug, "/?#\\"):
		return "", fmt.Errorf("invalid slug %q", slug)
	}
	return slug, nil
}

func pageOrFirst(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

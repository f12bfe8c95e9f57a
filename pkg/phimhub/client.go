// Package phimhub is a Go client for the phimhub site API. Listing pages are
// kept in an in-process cache and the next page can be prefetched.
package phimhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/rs/zerolog"

	"github.com/phimhub/phimhub/cache"
	"github.com/phimhub/phimhub/catalog"
	"github.com/phimhub/phimhub/listing"
)

const (
	DefaultTTL     = time.Hour
	defaultTimeout = 20 * time.Second
)

type Client struct {
	http    *http.Client
	baseURL *url.URL
	cache   *cache.Memory
	ttl     time.Duration
	delay   time.Duration
	log     zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCache shares a client cache between several clients.
func WithCache(m *cache.Memory) Option {
	return func(c *Client) { c.cache = m }
}

// WithTTL sets how long fetched pages stay in the client cache.
func WithTTL(d time.Duration) Option {
	return func(c *Client) { c.ttl = d }
}

// WithPrefetchDelay sets the pause before the next page is prefetched.
func WithPrefetchDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for the site at baseURL. Without WithHTTPClient,
// responses are also cached per their Cache-Control headers by httpcache.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("phimhub: invalid base url %q", baseURL)
	}
	c := &Client{
		baseURL: u,
		ttl:     DefaultTTL,
		delay:   time.Second,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{Transport: httpcache.NewMemoryCacheTransport(), Timeout: defaultTimeout}
	}
	if c.cache == nil {
		c.cache = cache.NewMemory()
	}
	return c, nil
}

// Cache exposes the client cache.
func (c *Client) Cache() *cache.Memory { return c.cache }

// KeyPrefix is the cache key prefix of a listing; pages are stored under
// "{prefix}_{page}".
func KeyPrefix(kind listing.Kind, slug string) string {
	if slug == "" {
		return string(kind)
	}
	return string(kind) + "_" + slug
}

// Listing returns one page, from the client cache when it is still fresh.
func (c *Client) Listing(ctx context.Context, kind listing.Kind, slug string, page int) (catalog.Page, error) {
	key := cache.PageKey(KeyPrefix(kind, slug), page)

	var p catalog.Page
	if err := cache.ReadJSON(c.cache, key, &p); err == nil {
		return p, nil
	}
	p, err := c.fetchListing(ctx, kind, slug, page)
	if err != nil {
		return catalog.Page{}, err
	}
	if err := cache.WriteJSON(c.cache, key, p, c.ttl); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("page not cached")
	}
	return p, nil
}

func (c *Client) fetchListing(ctx context.Context, kind listing.Kind, slug string, page int) (catalog.Page, error) {
	const op = "phimhub.Listing"

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	var p string
	switch kind {
	case listing.KindNew:
		p = "/api/movies/new"
	case listing.KindSearch:
		p = "/api/movies/search"
		q.Set("keyword", slug)
	default:
		if slug == "" {
			return catalog.Page{}, catalog.Errorf(catalog.KindMissingParameter, op, "slug is required")
		}
		p = path.Join("/api/movies", string(kind), slug)
	}

	var out catalog.Page
	if err := c.getJSON(ctx, op, p, q, &out); err != nil {
		return catalog.Page{}, err
	}
	return out, nil
}

// Movie returns a single title. Details are not kept in the client cache.
func (c *Client) Movie(ctx context.Context, slug string) (catalog.Movie, error) {
	var m catalog.Movie
	err := c.getJSON(ctx, "phimhub.Movie", path.Join("/api/movie", slug), nil, &m)
	return m, err
}

func (c *Client) getJSON(ctx context.Context, op, p string, q url.Values, out any) error {
	u := *c.baseURL
	u.RawPath = ""
	u.Path = path.Join(u.Path, p)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return catalog.E(catalog.KindNetwork, op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return catalog.E(catalog.KindNetwork, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return catalog.E(catalog.KindNetwork, op, err)
	}
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return catalog.Errorf(catalog.KindMissingParameter, op, "HTTP %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return catalog.Errorf(catalog.KindNetwork, op, "HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return catalog.Errorf(catalog.KindInvalidShape, op, "decode: %w", err)
	}
	return nil
}

// Package proxy is the single path from the server to the upstream host. It
// enforces the domain allow-list, rate limits upstream calls and decides the
// cache directives of proxied responses.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/phimhub/phimhub/catalog"
	"github.com/phimhub/phimhub/phimapi"
)

// ErrFetchFailed is the only upstream failure callers ever see.
var ErrFetchFailed = errors.New("failed to fetch data")

// FetchFailedMessage is the client-facing text of ErrFetchFailed.
const FetchFailedMessage = "Failed to fetch data"

// staticPrefixes are upstream paths whose content changes rarely.
var staticPrefixes = []string{
	"/danh-sach",
	"/the-loai",
	"/quoc-gia",
	"/v1/api/danh-sach",
	"/v1/api/the-loai",
	"/v1/api/quoc-gia",
}

const (
	DefaultStaticMaxAge  = 24 * time.Hour
	staleWhileRevalidate = time.Hour
	noCache              = "no-cache"
	defaultRatePerSecond = 10
	defaultBurst         = 20
)

// Policy is the cache classification of a proxied URL.
type Policy struct {
	Static       bool
	CacheControl string
}

// Gateway forwards allow-listed GETs to the upstream.
type Gateway struct {
	host         string
	port         string
	next         phimapi.Fetcher
	limiter      *rate.Limiter
	staticMaxAge time.Duration
	log          zerolog.Logger
}

type Option func(*Gateway)

// WithRate limits upstream calls to perSecond with the given burst. A
// non-positive rate disables limiting.
func WithRate(perSecond float64, burst int) Option {
	return func(g *Gateway) {
		if perSecond <= 0 {
			g.limiter = nil
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithStaticMaxAge(d time.Duration) Option {
	return func(g *Gateway) { g.staticMaxAge = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// New returns a gateway that only lets requests to the host (and port, if
// any) of baseURL through, forwarding them to next.
func New(baseURL string, next phimapi.Fetcher, opts ...Option) (*Gateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("proxy: invalid upstream base url %q", baseURL)
	}
	if next == nil {
		return nil, errors.New("proxy: nil fetcher")
	}
	g := &Gateway{
		host:         strings.ToLower(u.Hostname()),
		port:         u.Port(),
		next:         next,
		limiter:      rate.NewLimiter(defaultRatePerSecond, defaultBurst),
		staticMaxAge: DefaultStaticMaxAge,
		log:          zerolog.Nop(),
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Host is the approved upstream host.
func (g *Gateway) Host() string { return g.host }

// Validate checks target against the allow-list without any network I/O.
func (g *Gateway) Validate(target string) (*url.URL, error) {
	const op = "proxy.Validate"

	target = strings.TrimSpace(target)
	if target == "" {
		return nil, catalog.Errorf(catalog.KindMissingParameter, op, "url is required")
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, catalog.Errorf(catalog.KindForbiddenDomain, op, "unparsable url")
	}
	switch {
	case u.Scheme != "https" && u.Scheme != "http":
		return nil, catalog.Errorf(catalog.KindForbiddenDomain, op, "scheme %q not allowed", u.Scheme)
	case u.User != nil:
		return nil, catalog.Errorf(catalog.KindForbiddenDomain, op, "credentials not allowed")
	case u.Port() != g.port:
		return nil, catalog.Errorf(catalog.KindForbiddenDomain, op, "port %q not allowed", u.Port())
	case !strings.EqualFold(u.Hostname(), g.host):
		return nil, catalog.Errorf(catalog.KindForbiddenDomain, op, "host %q not allowed", u.Hostname())
	}
	return u, nil
}

// Classify returns the cache policy of target.
func (g *Gateway) Classify(target string) Policy {
	u, err := url.Parse(target)
	if err != nil || !isStaticPath(u.Path) {
		return Policy{CacheControl: noCache}
	}
	return Policy{
		Static: true,
		CacheControl: fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d",
			int(g.staticMaxAge.Seconds()), int(staleWhileRevalidate.Seconds())),
	}
}

func isStaticPath(p string) bool {
	for _, prefix := range staticPrefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// Fetch validates target and forwards it upstream. The response must be JSON.
// Upstream failures are reported as ErrFetchFailed; the cause is only logged.
func (g *Gateway) Fetch(ctx context.Context, target string) ([]byte, error) {
	const op = "proxy.Fetch"

	u, err := g.Validate(target)
	if err != nil {
		return nil, err
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.log.Warn().Err(err).Str("url", u.String()).Msg("upstream rate limit wait aborted")
			return nil, catalog.E(catalog.KindNetwork, op, ErrFetchFailed)
		}
	}

	start := time.Now()
	body, err := g.next.Fetch(ctx, u.String())
	if err == nil && !json.Valid(body) {
		err = errors.New("upstream response is not JSON")
	}
	if err != nil {
		g.log.Error().Err(err).Str("url", u.String()).Dur("elapsed", time.Since(start)).Msg("upstream fetch failed")
		return nil, catalog.E(catalog.KindNetwork, op, ErrFetchFailed)
	}
	g.log.Debug().Str("url", u.String()).Dur("elapsed", time.Since(start)).Int("bytes", len(body)).Msg("upstream fetch")
	return body, nil
}

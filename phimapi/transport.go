package phimapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v4"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/phimhub/phimhub/catalog"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "phimhub/1.0 (+https://github.com/phimhub/phimhub)"
	maxBodyBytes     = 8 << 20
)

// Fetcher performs one upstream GET and returns the raw response body.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, rawURL string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) ([]byte, error) { return f(ctx, rawURL) }

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// Transport is the raw HTTP layer below Client. It retries only failures
// where no response was received; any HTTP status is final.
type Transport struct {
	http      *http.Client
	retryMax  uint
	userAgent string
	log       zerolog.Logger
}

type TransportOption func(*Transport)

func WithHTTPClient(h *http.Client) TransportOption {
	return func(t *Transport) { t.http = h }
}

// WithRetry sets the number of retries after the first attempt.
func WithRetry(n uint) TransportOption {
	return func(t *Transport) { t.retryMax = n }
}

func WithUserAgent(ua string) TransportOption {
	return func(t *Transport) { t.userAgent = ua }
}

func WithTransportLogger(l zerolog.Logger) TransportOption {
	return func(t *Transport) { t.log = l }
}

func NewTransport(opts ...TransportOption) *Transport {
	t := &Transport{
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		log:       zerolog.Nop(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Fetch implements Fetcher.
func (t *Transport) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	const op = "phimapi.Fetch"

	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Accept", "application/json")
			req.Header.Set("User-Agent", t.userAgent)
			req.Header.Set("X-Request-ID", requestID(ctx))

			resp, err := t.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("read body: %w", err))
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return retry.Unrecoverable(&StatusError{URL: rawURL, StatusCode: resp.StatusCode})
			}
			body = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(t.retryMax+1),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			t.log.Debug().Err(err).Uint("attempt", n+1).Str("url", rawURL).Msg("retrying upstream request")
		}),
	)
	if err != nil {
		return nil, catalog.E(catalog.KindNetwork, op, err)
	}
	return body, nil
}

func requestID(ctx context.Context) string {
	if id := chimw.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

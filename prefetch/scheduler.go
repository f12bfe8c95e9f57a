// Package prefetch speculatively loads the page after the one being shown
// and stores it in the client cache.
package prefetch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/phimhub/phimhub/cache"
)

const (
	DefaultDelay   = time.Second
	DefaultTTL     = time.Hour
	defaultTimeout = 30 * time.Second
)

// FetchFunc loads one page. The result is stored as JSON.
type FetchFunc func(ctx context.Context, page int) (any, error)

// Scheduler issues at most one prefetch at a time. A Schedule call made
// while another is pending or running is ignored.
type Scheduler struct {
	cache   cache.ReadWriter
	delay   time.Duration
	ttl     time.Duration
	timeout time.Duration
	log     zerolog.Logger

	mu       sync.Mutex
	timer    *time.Timer
	inFlight bool
	wg       sync.WaitGroup
}

type Option func(*Scheduler)

func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.delay = d }
}

// WithTTL sets how long a prefetched page stays in the cache.
func WithTTL(d time.Duration) Option {
	return func(s *Scheduler) { s.ttl = d }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

func New(c cache.ReadWriter, opts ...Option) *Scheduler {
	s := &Scheduler{
		cache:   c,
		delay:   DefaultDelay,
		ttl:     DefaultTTL,
		timeout: defaultTimeout,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule arms a prefetch of currentPage+1 under keyPrefix after the
// configured delay. It reports whether a prefetch was armed.
func (s *Scheduler) Schedule(fetch FetchFunc, currentPage int, enabled bool, keyPrefix string) bool {
	if !enabled || fetch == nil {
		return false
	}
	next := currentPage + 1
	key := cache.PageKey(keyPrefix, next)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return false
	}
	s.inFlight = true
	s.wg.Add(1)
	s.timer = time.AfterFunc(s.delay, func() {
		defer s.wg.Done()
		defer s.release()
		s.run(fetch, next, key)
	})
	return true
}

func (s *Scheduler) run(fetch FetchFunc, page int, key string) {
	if _, ok := s.cache.Get(key); ok {
		s.log.Debug().Str("key", key).Msg("prefetch skipped, page already cached")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	v, err := fetch(ctx, page)
	if err != nil {
		s.log.Debug().Err(err).Str("key", key).Int("page", page).Msg("prefetch failed")
		return
	}
	if err := cache.WriteJSON(s.cache, key, v, s.ttl); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("prefetch result not cacheable")
		return
	}
	s.log.Debug().Str("key", key).Int("page", page).Msg("prefetched")
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.inFlight = false
	s.timer = nil
	s.mu.Unlock()
}

// Stop cancels a pending prefetch. A fetch that already started runs to
// completion and its result is still cached.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil && s.timer.Stop() {
		s.timer = nil
		s.inFlight = false
		s.wg.Done()
	}
}

// Wait blocks until no prefetch is pending or running.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

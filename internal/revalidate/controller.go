// Package revalidate purges server-side cache partitions on demand.
package revalidate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/phimhub/phimhub/catalog"
)

// Invalidator marks every cached entry carrying tag as stale.
type Invalidator interface {
	InvalidateTag(ctx context.Context, tag string) error
}

// WarmEnqueuer schedules a background reload of the listings behind tags.
type WarmEnqueuer interface {
	EnqueueWarm(ctx context.Context, tags []string) (string, error)
}

// Result reports the outcome of one revalidation.
type Result struct {
	Revalidated bool     `json:"revalidated"`
	Timestamp   int64    `json:"timestamp"`
	Failed      []string `json:"failed,omitempty"`
}

// Controller invalidates tags one by one. A failing tag does not stop the
// remaining ones.
type Controller struct {
	store Invalidator
	warm  WarmEnqueuer
	now   func() time.Time
	log   zerolog.Logger
}

type Option func(*Controller)

// WithWarmEnqueuer enqueues a warm task after each revalidation.
func WithWarmEnqueuer(w WarmEnqueuer) Option {
	return func(c *Controller) { c.warm = w }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

func New(store Invalidator, opts ...Option) *Controller {
	c := &Controller{store: store, now: time.Now, log: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Revalidate invalidates every tag. An empty tag list is a no-op that
// succeeds; when some tags fail it returns the partial result together with
// a KindRevalidationPartial error.
func (c *Controller) Revalidate(ctx context.Context, tags []string) (Result, error) {
	const op = "revalidate.Revalidate"

	if len(tags) == 0 {
		return Result{Revalidated: true, Timestamp: c.now().UnixMilli()}, nil
	}

	var (
		failed []string
		errs   []error
		done   []string
	)
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if err := c.store.InvalidateTag(ctx, tag); err != nil {
			c.log.Warn().Err(err).Str("tag", tag).Msg("tag invalidation failed")
			failed = append(failed, tag)
			errs = append(errs, fmt.Errorf("tag %q: %w", tag, err))
			continue
		}
		done = append(done, tag)
	}

	res := Result{Revalidated: len(failed) == 0, Timestamp: c.now().UnixMilli(), Failed: failed}
	c.log.Info().Strs("tags", done).Strs("failed", failed).Msg("revalidated")

	if c.warm != nil && len(done) > 0 {
		if id, err := c.warm.EnqueueWarm(ctx, done); err != nil {
			c.log.Warn().Err(err).Msg("warm enqueue failed")
		} else {
			c.log.Debug().Str("task_id", id).Msg("warm enqueued")
		}
	}

	if len(errs) > 0 {
		return res, catalog.E(catalog.KindRevalidationPartial, op, errors.Join(errs...))
	}
	return res, nil
}

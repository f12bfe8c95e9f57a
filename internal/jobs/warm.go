package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/phimhub/phimhub/catalog"
	"github.com/phimhub/phimhub/listing"
)

// Lister is the cached listing service.
type Lister interface {
	List(ctx context.Context, q listing.Query) (catalog.Page, error)
}

// ParseTargets parses warm targets written as "kind:slug" ("new" alone for
// the new-movies listing). Every target warms page 1.
func ParseTargets(entries []string) ([]listing.Query, error) {
	out := make([]listing.Query, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		q, ok := parseTarget(entry)
		if !ok {
			return nil, fmt.Errorf("invalid warm target %q", entry)
		}
		out = append(out, q)
	}
	return out, nil
}

func parseTarget(entry string) (listing.Query, bool) {
	kind, slug, _ := strings.Cut(entry, ":")
	q := listing.Query{Kind: listing.Kind(kind), Slug: slug, Page: 1}
	switch q.Kind {
	case listing.KindNew:
		q.Slug = ""
		return q, true
	case listing.KindCategory, listing.KindCountry, listing.KindGenre, listing.KindYear:
		return q, slug != ""
	default:
		return listing.Query{}, false
	}
}

// Plan selects the targets affected by the revalidated tags. A slug tag such
// as "category:phim-le" is warmed even when it is not a configured target.
func Plan(tags []string, targets []listing.Query) []listing.Query {
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}

	seen := make(map[string]bool)
	var out []listing.Query
	add := func(q listing.Query) {
		if k := q.Key(); !seen[k] {
			seen[k] = true
			out = append(out, q)
		}
	}
	for _, q := range targets {
		for _, t := range q.Tags() {
			if want[t] {
				add(q)
				break
			}
		}
	}
	for _, t := range tags {
		if !strings.Contains(t, ":") {
			continue
		}
		if q, ok := parseTarget(t); ok && q.Kind != listing.KindNew {
			add(q)
		}
	}
	return out
}

// Warm loads every query through lister with bounded concurrency and returns
// the joined errors of the failed ones.
func Warm(ctx context.Context, lister Lister, queries []listing.Query, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(concurrency)
	for _, q := range queries {
		p.Go(func(ctx context.Context) error {
			if _, err := lister.List(ctx, q); err != nil {
				return fmt.Errorf("warm %s/%s: %w", q.Kind, q.Slug, err)
			}
			return nil
		})
	}
	return p.Wait()
}

// Retryable reports whether a failed warm is worth retrying: only upstream
// network failures are.
func Retryable(err error) bool {
	return catalog.IsKind(err, catalog.KindNetwork) || errors.Is(err, context.DeadlineExceeded)
}

// NewWarmHandler returns the asynq handler of TaskWarmCatalog.
func NewWarmHandler(lister Lister, targets []listing.Query, concurrency int, log zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p WarmCatalogPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			log.Error().Err(err).Msg("bad warm payload")
			return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
		}

		queries := Plan(p.Tags, targets)
		start := time.Now()
		err := Warm(ctx, lister, queries, concurrency)
		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Strs("tags", p.Tags).Int("queries", len(queries)).Dur("elapsed", time.Since(start)).Msg("catalog warm")

		if err != nil && !Retryable(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
}

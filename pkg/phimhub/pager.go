package phimhub

import (
	"context"

	"github.com/phimhub/phimhub/catalog"
	"github.com/phimhub/phimhub/listing"
	"github.com/phimhub/phimhub/prefetch"
)

// Pager walks one listing. After each page it prefetches the next one into
// the client cache. Close it when done to cancel a pending prefetch.
type Pager struct {
	client   *Client
	kind     listing.Kind
	slug     string
	prefetch bool
	sched    *prefetch.Scheduler
}

// NewPager returns a pager over kind/slug. With prefetch false it never
// loads ahead.
func (c *Client) NewPager(kind listing.Kind, slug string, prefetchNext bool) *Pager {
	return &Pager{
		client:   c,
		kind:     kind,
		slug:     slug,
		prefetch: prefetchNext,
		sched: prefetch.New(c.cache,
			prefetch.WithDelay(c.delay),
			prefetch.WithTTL(c.ttl),
			prefetch.WithLogger(c.log),
		),
	}
}

// Page loads page n and, when there is a next page, schedules its prefetch.
func (p *Pager) Page(ctx context.Context, n int) (catalog.Page, error) {
	page, err := p.client.Listing(ctx, p.kind, p.slug, n)
	if err != nil {
		return catalog.Page{}, err
	}
	p.sched.Schedule(p.fetch, n, p.prefetch && page.Pagination.HasNext(), KeyPrefix(p.kind, p.slug))
	return page, nil
}

func (p *Pager) fetch(ctx context.Context, n int) (any, error) {
	return p.client.fetchListing(ctx, p.kind, p.slug, n)
}

// Wait blocks until a running prefetch has finished.
func (p *Pager) Wait() { p.sched.Wait() }

// Close cancels a pending prefetch.
func (p *Pager) Close() { p.sched.Stop() }

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phimhub/phimhub/catalog"
	"github.com/phimhub/phimhub/listing"
)

type recordingLister struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
}

func (r *recordingLister) List(_ context.Context, q listing.Query) (catalog.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := string(q.Kind) + ":" + q.Slug
	r.seen = append(r.seen, id)
	if err := r.fail[id]; err != nil {
		return catalog.Page{}, err
	}
	return catalog.EmptyPage(q.Page, 15), nil
}

func TestParseTargets(t *testing.T) {
	got, err := ParseTargets([]string{"category:phim-le", " new ", "", "year:2024"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, listing.Query{Kind: listing.KindCategory, Slug: "phim-le", Page: 1}, got[0])
	assert.Equal(t, listing.Query{Kind: listing.KindNew, Page: 1}, got[1])

	for _, bad := range []string{"category:", "studio:ghibli", "search:x"} {
		_, err := ParseTargets([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestPlan(t *testing.T) {
	targets, err := ParseTargets([]string{"category:phim-le", "category:phim-bo", "country:han-quoc", "new"})
	require.NoError(t, err)

	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{"kind tag", []string{"categories"}, []string{"category/phim-le", "category/phim-bo"}},
		{"catalog tag", []string{"catalog"}, []string{"category/phim-le", "category/phim-bo", "country/han-quoc", "new/"}},
		{"slug tag outside targets", []string{"genre:hanh-dong"}, []string{"genre/hanh-dong"}},
		{"slug tag inside targets", []string{"category:phim-bo", "categories"}, []string{"category/phim-le", "category/phim-bo"}},
		{"unrelated tag", []string{"menu"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, q := range Plan(tt.tags, targets) {
				got = append(got, string(q.Kind)+"/"+q.Slug)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWarm(t *testing.T) {
	boom := catalog.E(catalog.KindNetwork, "test", errors.New("down"))
	l := &recordingLister{fail: map[string]error{"genre:bad": boom}}
	queries := []listing.Query{
		{Kind: listing.KindCategory, Slug: "phim-le", Page: 1},
		{Kind: listing.KindGenre, Slug: "bad", Page: 1},
		{Kind: listing.KindNew, Page: 1},
	}

	err := Warm(context.Background(), l, queries, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, Retryable(err))
	assert.Len(t, l.seen, 3, "one failure does not stop the others")
}

func TestWarmHandler(t *testing.T) {
	targets, err := ParseTargets([]string{"category:phim-le"})
	require.NoError(t, err)

	t.Run("ok", func(t *testing.T) {
		l := &recordingLister{}
		h := NewWarmHandler(l, targets, 4, zerolog.Nop())
		task, err := NewWarmTask([]string{"categories"}, time.Now())
		require.NoError(t, err)

		require.NoError(t, h.ProcessTask(context.Background(), task))
		assert.Equal(t, []string{"category:phim-le"}, l.seen)
	})

	t.Run("bad payload is not retried", func(t *testing.T) {
		h := NewWarmHandler(&recordingLister{}, targets, 4, zerolog.Nop())
		err := h.ProcessTask(context.Background(), asynq.NewTask(TaskWarmCatalog, []byte("{")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("shape errors are not retried", func(t *testing.T) {
		l := &recordingLister{fail: map[string]error{
			"category:phim-le": catalog.E(catalog.KindInvalidShape, "test", errors.New("bad")),
		}}
		h := NewWarmHandler(l, targets, 4, zerolog.Nop())
		payload, _ := json.Marshal(WarmCatalogPayload{Tags: []string{"catalog"}})
		err := h.ProcessTask(context.Background(), asynq.NewTask(TaskWarmCatalog, payload))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("network errors are retried", func(t *testing.T) {
		l := &recordingLister{fail: map[string]error{
			"category:phim-le": catalog.E(catalog.KindNetwork, "test", errors.New("down")),
		}}
		h := NewWarmHandler(l, targets, 4, zerolog.Nop())
		payload, _ := json.Marshal(WarmCatalogPayload{Tags: []string{"catalog"}})
		err := h.ProcessTask(context.Background(), asynq.NewTask(TaskWarmCatalog, payload))
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestNewWarmTask(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	task, err := NewWarmTask([]string{"categories", "menu"}, now)
	require.NoError(t, err)
	assert.Equal(t, TaskWarmCatalog, task.Type())

	var p WarmCatalogPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, []string{"categories", "menu"}, p.Tags)
	assert.Equal(t, now.UnixMilli(), p.RequestedAt)
}

package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TaskWarmCatalog = "catalog:warm"
	QueueWarm       = "warm"
)

type WarmCatalogPayload struct {
	Tags        []string `json:"tags"`
	RequestedAt int64    `json:"requested_at,omitempty"`
}

// NewWarmTask builds a warm task for the given revalidated tags.
func NewWarmTask(tags []string, now time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(WarmCatalogPayload{Tags: tags, RequestedAt: now.UnixMilli()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWarmCatalog, payload,
		asynq.TaskID(uuid.NewString()),
		asynq.Queue(QueueWarm),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
	), nil
}

// Enqueuer submits warm tasks to asynq.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(redisAddr string) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

// EnqueueWarm schedules a warm of the listings covered by tags and returns
// the task id.
func (e *Enqueuer) EnqueueWarm(ctx context.Context, tags []string) (string, error) {
	task, err := NewWarmTask(tags, time.Now())
	if err != nil {
		return "", err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}

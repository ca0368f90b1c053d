package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Purger hands a directory that could not be removed to the worker.
type Purger interface {
	Purge(ctx context.Context, p PurgePayload) error
}

// AsynqPurger enqueues purge tasks.
type AsynqPurger struct {
	client *asynq.Client
}

func NewAsynqPurger(client *asynq.Client) *AsynqPurger {
	return &AsynqPurger{client: client}
}

func (a *AsynqPurger) Purge(ctx context.Context, p PurgePayload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = a.client.EnqueueContext(ctx, asynq.NewTask(TaskPurgeWorkspace, b),
		asynq.MaxRetry(5),
		asynq.ProcessIn(30*time.Second),
		asynq.Timeout(2*time.Minute),
	)
	return err
}

// SweepTask builds the periodic sweep task registered with the scheduler.
func SweepTask(maxAge time.Duration) (*asynq.Task, error) {
	b, err := json.Marshal(SweepPayload{MaxAgeSec: int64(maxAge / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSweepWorkspaces, b, asynq.MaxRetry(1)), nil
}

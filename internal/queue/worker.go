package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/postflow/configs"
)

func (w *Worker) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid publish payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ItemID == "" {
		return fmt.Errorf("publish payload has no item id: %w", asynq.SkipRetry)
	}

	return w.ds.PublishScheduledPost(ctx, payload.ItemID, finalAttempt(ctx))
}

// finalAttempt reports whether asynq will not retry this task again.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

// NewServer builds the asynq server that runs publish tasks. Retries use a
// fixed delay.
func NewServer(redisOpt asynq.RedisConnOpt, q config.Queue) *asynq.Server {
	delay := q.TaskRetryDelay
	if delay <= 0 {
		delay = 5 * time.Minute
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: q.Concurrency,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return delay
		},
	})
}

func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePublishPost, w.HandlePublishPostTask)
	return mux
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
)

type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer publishes one asynq task per claimed queue item.
type Enqueuer struct {
	client   taskClient
	maxRetry int
	timeouts config.Timeouts
}

func NewEnqueuer(client *asynq.Client, q config.Queue, timeouts config.Timeouts) *Enqueuer {
	return newEnqueuer(client, q, timeouts)
}

func newEnqueuer(client taskClient, q config.Queue, timeouts config.Timeouts) *Enqueuer {
	return &Enqueuer{
		client:   client,
		maxRetry: q.TaskMaxRetry,
		timeouts: timeouts,
	}
}

// TaskID is unique per item and item-level retry, so a re-queued item gets a
// fresh task while a duplicate dispatch of the same attempt is rejected.
func TaskID(item *models.QueueItem) string {
	return fmt.Sprintf("%s:%d", item.ID, item.RetryCount)
}

func (e *Enqueuer) EnqueuePublish(ctx context.Context, item *models.QueueItem) error {
	payload, err := json.Marshal(PublishPostPayload{ItemID: item.ID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishPost, payload)

	_, err = e.client.EnqueueContext(ctx, task,
		asynq.TaskID(TaskID(item)),
		asynq.MaxRetry(e.maxRetry),
		asynq.Timeout(e.timeouts.For(string(item.Platform))+time.Minute),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		slog.Info("publish task already enqueued", "item_id", item.ID)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("publish task enqueued", "item_id", item.ID, "platform", item.Platform)
	return nil
}

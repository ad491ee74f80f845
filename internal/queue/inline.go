package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
)

// InlineEnqueuer runs publish attempts in-process instead of handing them to
// Redis. Every attempt is final, so transient failures wait for the retry
// sweep.
type InlineEnqueuer struct {
	ds service.DispatchService
	wg sync.WaitGroup
}

func NewInlineEnqueuer() *InlineEnqueuer {
	return &InlineEnqueuer{}
}

// Bind sets the dispatcher that runs the attempts. The dispatcher itself
// takes the enqueuer, so binding happens after both are built.
func (e *InlineEnqueuer) Bind(ds service.DispatchService) {
	e.ds = ds
}

func (e *InlineEnqueuer) EnqueuePublish(ctx context.Context, item *models.QueueItem) error {
	if e.ds == nil {
		return errors.New("inline enqueuer has no dispatcher")
	}

	e.wg.Add(1)
	go func(id string) {
		defer e.wg.Done()
		if err := e.ds.PublishScheduledPost(context.Background(), id, true); err != nil {
			slog.Error("inline publish failed", "item_id", id, "error", err)
		}
	}(item.ID)
	return nil
}

// Wait blocks until every started attempt has returned.
func (e *InlineEnqueuer) Wait() {
	e.wg.Wait()
}

package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postflow/internal/models"
)

type fakeDispatch struct {
	itemID string
	final  bool
	err    error
}

func (f *fakeDispatch) CheckScheduledPosts(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeDispatch) PublishScheduledPost(ctx context.Context, itemID string, finalAttempt bool) error {
	f.itemID = itemID
	f.final = finalAttempt
	return f.err
}

func (f *fakeDispatch) RetryFailedPosts(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeDispatch) CollectPostMetrics(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeDispatch) AttemptHistory(ctx context.Context, itemID string) ([]*models.PostingHistory, error) {
	return nil, nil
}

func TestWorker_HandlePublishPostTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("dispatches the item", func(t *testing.T) {
		t.Parallel()

		ds := &fakeDispatch{}
		w := NewWorker(ds)
		task := asynq.NewTask(TaskTypePublishPost, []byte(`{"item_id":"item-9"}`))

		require.NoError(t, w.HandlePublishPostTask(ctx, task))
		assert.Equal(t, "item-9", ds.itemID)
		assert.True(t, ds.final, "outside a worker the attempt counts as final")
	})

	t.Run("publish errors are returned for retry", func(t *testing.T) {
		t.Parallel()

		ds := &fakeDispatch{err: errors.New("503")}
		w := NewWorker(ds)
		task := asynq.NewTask(TaskTypePublishPost, []byte(`{"item_id":"item-9"}`))

		assert.Error(t, w.HandlePublishPostTask(ctx, task))
	})

	t.Run("bad payloads skip retry", func(t *testing.T) {
		t.Parallel()

		w := NewWorker(&fakeDispatch{})
		for _, payload := range []string{`not json`, `{}`} {
			err := w.HandlePublishPostTask(ctx, asynq.NewTask(TaskTypePublishPost, []byte(payload)))
			assert.ErrorIs(t, err, asynq.SkipRetry, payload)
		}
	})
}

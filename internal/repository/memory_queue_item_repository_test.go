package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

func seedItem(t *testing.T, repo *repository.MemoryQueueItemRepository, id string, status models.QueueStatus, at time.Time) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &models.QueueItem{
		ID:           id,
		Platform:     models.PlatformTiktok,
		Status:       status,
		ScheduledFor: at,
	}))
}

func TestMemoryQueueItemRepository_ClaimDueIsExclusive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryQueueItemRepository()
	now := time.Now()
	for i := 0; i < 50; i++ {
		seedItem(t, repo, fmt.Sprintf("item-%02d", i), models.QueueStatusQueued, now.Add(-time.Duration(i)*time.Minute))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = map[string]int{}
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				items, err := repo.ClaimDue(ctx, now, 5, "")
				if err != nil || len(items) == 0 {
					return
				}
				mu.Lock()
				for _, item := range items {
					claimed[item.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 50)
	for id, n := range claimed {
		assert.Equal(t, 1, n, id)
	}
}

func TestMemoryQueueItemRepository_Guards(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryQueueItemRepository()
	now := time.Now()

	seedItem(t, repo, "queued", models.QueueStatusQueued, now)
	seedItem(t, repo, "published", models.QueueStatusPublished, now)

	ok, err := repo.MarkPublished(ctx, "queued", "p", "u", now)
	require.NoError(t, err)
	assert.False(t, ok, "only processing items can be published")

	ok, err = repo.MarkFailed(ctx, "queued", "boom", models.ErrorKindTransient)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ReleaseClaim(ctx, "queued")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Cancel(ctx, "published")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Reschedule(ctx, "published", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	for _, status := range []models.QueueStatus{models.QueueStatusQueued, models.QueueStatusProcessing, models.QueueStatusCancelled} {
		ok, err = repo.UpdateStatus(ctx, "published", status)
		require.NoError(t, err)
		assert.False(t, ok, "published -> %s", status)
	}

	ok, err = repo.UpdateStatus(ctx, "queued", models.QueueStatusFailed)
	require.NoError(t, err)
	assert.False(t, ok, "queued items must be claimed before failing")

	ok, err = repo.SetSubmission(ctx, "queued", "pub-1")
	require.NoError(t, err)
	assert.False(t, ok, "only processing items carry a submission")

	require.Error(t, repo.Create(ctx, &models.QueueItem{ID: "queued"}))
}

func TestMemoryQueueItemRepository_CreateBatchIsAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryQueueItemRepository()
	seedItem(t, repo, "taken", models.QueueStatusQueued, time.Now())

	err := repo.CreateBatch(ctx, []*models.QueueItem{
		{ID: "fresh", Status: models.QueueStatusQueued},
		{ID: "taken", Status: models.QueueStatusQueued},
	})
	require.Error(t, err)

	item, err := repo.GetByID(ctx, "fresh")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestMemoryQueueItemRepository_FailStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryQueueItemRepository()
	now := time.Now()
	old := now.Add(-time.Hour)
	recent := now.Add(-time.Minute)

	require.NoError(t, repo.Create(ctx, &models.QueueItem{ID: "old", Status: models.QueueStatusProcessing, ClaimedAt: &old}))
	require.NoError(t, repo.Create(ctx, &models.QueueItem{ID: "recent", Status: models.QueueStatusProcessing, ClaimedAt: &recent}))

	n, err := repo.FailStale(ctx, now.Add(-30*time.Minute), "lease expired")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	item, err := repo.GetByID(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, item.Status)
	assert.Equal(t, models.ErrorKindTransient, item.ErrorKind)

	item, err = repo.GetByID(ctx, "recent")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusProcessing, item.Status)
}

func TestMemoryQueueItemRepository_LatestScheduled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryQueueItemRepository()

	latest, err := repo.LatestScheduled(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedItem(t, repo, "a", models.QueueStatusQueued, base)
	seedItem(t, repo, "b", models.QueueStatusQueued, base.Add(time.Hour))
	seedItem(t, repo, "c", models.QueueStatusPublished, base.Add(5*time.Hour))

	latest, err = repo.LatestScheduled(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(base.Add(time.Hour)))
}

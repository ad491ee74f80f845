package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// MemoryQueueItemRepository is a QueueItemRepository kept in process memory.
// It backs `postflow api --memory` and the service tests.
type MemoryQueueItemRepository struct {
	mu    sync.Mutex
	items map[string]*models.QueueItem
	now   func() time.Time
}

func NewMemoryQueueItemRepository() *MemoryQueueItemRepository {
	return &MemoryQueueItemRepository{
		items: make(map[string]*models.QueueItem),
		now:   time.Now,
	}
}

// SetClock overrides the clock used for updated_at stamps.
func (m *MemoryQueueItemRepository) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func clone(item *models.QueueItem) *models.QueueItem {
	c := *item
	c.Hashtags = slices.Clone(item.Hashtags)
	return &c
}

func (m *MemoryQueueItemRepository) Create(ctx context.Context, item *models.QueueItem) error {
	if item == nil {
		return errors.New("queue item cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[item.ID]; exists {
		return fmt.Errorf("queue item %s already exists", item.ID)
	}
	m.items[item.ID] = clone(item)
	return nil
}

func (m *MemoryQueueItemRepository) CreateBatch(ctx context.Context, items []*models.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item == nil {
			return errors.New("queue item cannot be nil")
		}
		if _, exists := m.items[item.ID]; exists {
			return fmt.Errorf("queue item %s already exists", item.ID)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("queue item %s appears twice in batch", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	for _, item := range items {
		m.items[item.ID] = clone(item)
	}
	return nil
}

func (m *MemoryQueueItemRepository) GetByID(ctx context.Context, id string) (*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return clone(item), nil
}

func (m *MemoryQueueItemRepository) due(now time.Time, limit int, platform models.Platform) []*models.QueueItem {
	var out []*models.QueueItem
	for _, item := range m.items {
		if !item.Due(now) {
			continue
		}
		if platform != "" && item.Platform != platform {
			continue
		}
		out = append(out, item)
	}
	SortForDispatch(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemoryQueueItemRepository) ListDue(ctx context.Context, now time.Time, limit int, platform models.Platform) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.QueueItem
	for _, item := range m.due(now, limit, platform) {
		out = append(out, clone(item))
	}
	return out, nil
}

func (m *MemoryQueueItemRepository) ListByStatus(ctx context.Context, status models.QueueStatus, platform models.Platform, limit, offset int) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.QueueItem
	for _, item := range m.items {
		if status != "" && item.Status != status {
			continue
		}
		if platform != "" && item.Platform != platform {
			continue
		}
		out = append(out, clone(item))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ScheduledFor.Before(out[j].ScheduledFor)
		}
		return out[i].ID < out[j].ID
	})

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryQueueItemRepository) ClaimDue(ctx context.Context, now time.Time, limit int, platform models.Platform) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.QueueItem
	for _, item := range m.due(now, limit, platform) {
		claimedAt := now
		item.Status = models.QueueStatusProcessing
		item.ClaimedAt = &claimedAt
		item.UpdatedAt = now
		out = append(out, clone(item))
	}
	return out, nil
}

// update applies fn to the item when it exists and guard accepts it.
func (m *MemoryQueueItemRepository) update(id string, guard func(*models.QueueItem) bool, fn func(*models.QueueItem)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok || (guard != nil && !guard(item)) {
		return false
	}
	fn(item)
	item.UpdatedAt = m.now()
	return true
}

func hasStatus(statuses ...models.QueueStatus) func(*models.QueueItem) bool {
	return func(item *models.QueueItem) bool {
		return slices.Contains(statuses, item.Status)
	}
}

func (m *MemoryQueueItemRepository) UpdateStatus(ctx context.Context, id string, status models.QueueStatus) (bool, error) {
	from := status.DirectPredecessors()
	if len(from) == 0 {
		return false, nil
	}
	return m.update(id, hasStatus(from...), func(item *models.QueueItem) {
		item.Status = status
		if status == models.QueueStatusProcessing {
			now := m.now()
			item.ClaimedAt = &now
		}
	}), nil
}

func (m *MemoryQueueItemRepository) ReleaseClaim(ctx context.Context, id string) (bool, error) {
	return m.update(id, hasStatus(models.QueueStatusProcessing), func(item *models.QueueItem) {
		item.Status = models.QueueStatusQueued
		item.ClaimedAt = nil
	}), nil
}

func (m *MemoryQueueItemRepository) MarkPublished(ctx context.Context, id, platformPostID, platformURL string, at time.Time) (bool, error) {
	return m.update(id, hasStatus(models.QueueStatusProcessing), func(item *models.QueueItem) {
		item.Status = models.QueueStatusPublished
		item.PlatformPostID = platformPostID
		item.PlatformURL = platformURL
		item.PublishedAt = &at
		item.ErrorMessage = ""
		item.ErrorKind = models.ErrorKindNone
	}), nil
}

func (m *MemoryQueueItemRepository) MarkFailed(ctx context.Context, id, message string, kind models.ErrorKind) (bool, error) {
	return m.update(id, hasStatus(models.QueueStatusProcessing), func(item *models.QueueItem) {
		item.Status = models.QueueStatusFailed
		item.ErrorMessage = message
		item.ErrorKind = kind
		if kind == models.ErrorKindPermanent {
			item.SubmissionID = ""
		}
	}), nil
}

func (m *MemoryQueueItemRepository) SetSubmission(ctx context.Context, id, submissionID string) (bool, error) {
	return m.update(id, hasStatus(models.QueueStatusProcessing), func(item *models.QueueItem) {
		item.SubmissionID = submissionID
	}), nil
}

func (m *MemoryQueueItemRepository) Requeue(ctx context.Context, id string, maxRetries int) (bool, error) {
	guard := func(item *models.QueueItem) bool {
		return item.Status == models.QueueStatusFailed && item.RetryCount < maxRetries
	}
	return m.update(id, guard, func(item *models.QueueItem) {
		item.Status = models.QueueStatusQueued
		item.RetryCount++
		item.ErrorMessage = ""
		item.ErrorKind = models.ErrorKindNone
		item.ClaimedAt = nil
	}), nil
}

func (m *MemoryQueueItemRepository) Reschedule(ctx context.Context, id string, at time.Time) (bool, error) {
	return m.update(id, hasStatus(models.QueueStatusQueued), func(item *models.QueueItem) {
		item.ScheduledFor = at
	}), nil
}

func (m *MemoryQueueItemRepository) Cancel(ctx context.Context, id string) (bool, error) {
	guard := hasStatus(models.QueueStatusQueued, models.QueueStatusProcessing, models.QueueStatusFailed)
	return m.update(id, guard, func(item *models.QueueItem) {
		item.Status = models.QueueStatusCancelled
	}), nil
}

func (m *MemoryQueueItemRepository) ListRetryable(ctx context.Context, maxRetries, limit int) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.QueueItem
	for _, item := range m.items {
		if item.Status == models.QueueStatusFailed && item.ErrorKind == models.ErrorKindTransient && item.RetryCount < maxRetries {
			out = append(out, clone(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryQueueItemRepository) FailStale(ctx context.Context, claimedBefore time.Time, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, item := range m.items {
		if item.Status != models.QueueStatusProcessing || item.ClaimedAt == nil || !item.ClaimedAt.Before(claimedBefore) {
			continue
		}
		item.Status = models.QueueStatusFailed
		item.ErrorMessage = message
		item.ErrorKind = models.ErrorKindTransient
		item.UpdatedAt = m.now()
		n++
	}
	return n, nil
}

func (m *MemoryQueueItemRepository) ListPublishedSince(ctx context.Context, since time.Time, limit int) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.QueueItem
	for _, item := range m.items {
		if item.Status == models.QueueStatusPublished && item.PublishedAt != nil && !item.PublishedAt.Before(since) {
			out = append(out, clone(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.Before(*out[j].PublishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryQueueItemRepository) LatestScheduled(ctx context.Context) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *time.Time
	for _, item := range m.items {
		if item.Status != models.QueueStatusQueued {
			continue
		}
		if latest == nil || item.ScheduledFor.After(*latest) {
			t := item.ScheduledFor
			latest = &t
		}
	}
	return latest, nil
}

func (m *MemoryQueueItemRepository) Statistics(ctx context.Context) (*models.QueueStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := newStatistics()
	for _, item := range m.items {
		stats.ByStatus[item.Status]++
		stats.ByPlatform[item.Platform]++
		stats.Total++
	}
	return stats, nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const DefaultMaxRetries = 3

// QueueItemInput is the payload accepted by AddToQueue and BulkSchedule.
type QueueItemInput struct {
	Platform         string                  `json:"platform"`
	ScheduledFor     time.Time               `json:"scheduled_for"`
	ContentItemID    string                  `json:"content_item_id,omitempty"`
	ClipID           string                  `json:"clip_id,omitempty"`
	Caption          string                  `json:"caption,omitempty"`
	Hashtags         []string                `json:"hashtags,omitempty"`
	VideoURL         string                  `json:"video_url,omitempty"`
	ThumbnailURL     string                  `json:"thumbnail_url,omitempty"`
	PlatformMetadata models.PlatformMetadata `json:"platform_metadata"`
	Priority         int                     `json:"priority"`
}

// PublishingQueueService owns the queue item lifecycle. Boolean results
// report whether the transition applied; errors are reserved for invalid
// input and storage failures.
type PublishingQueueService interface {
	AddToQueue(ctx context.Context, in QueueItemInput) (*models.QueueItem, error)
	BulkSchedule(ctx context.Context, in []QueueItemInput) ([]*models.QueueItem, error)
	GetItem(ctx context.Context, id string) (*models.QueueItem, error)
	GetNextItems(ctx context.Context, limit int, platform models.Platform) ([]*models.QueueItem, error)
	ClaimNextItems(ctx context.Context, limit int, platform models.Platform) ([]*models.QueueItem, error)
	GetItemsByStatus(ctx context.Context, status models.QueueStatus, platform models.Platform, limit, offset int) ([]*models.QueueItem, error)
	UpdateStatus(ctx context.Context, id string, status models.QueueStatus) (bool, error)
	RetryFailedItem(ctx context.Context, id string) (bool, error)
	RescheduleItem(ctx context.Context, id string, at time.Time) (bool, error)
	CancelItem(ctx context.Context, id string) (bool, error)
	LatestScheduled(ctx context.Context) (*time.Time, error)
	GetQueueStatistics(ctx context.Context) (*models.QueueStatistics, error)
	MaxRetries() int
}

type publishingQueueService struct {
	qr         repository.QueueItemRepository
	maxRetries int
	now        func() time.Time
}

type QueueOption func(*publishingQueueService)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) QueueOption {
	return func(s *publishingQueueService) { s.now = now }
}

func NewPublishingQueueService(qr repository.QueueItemRepository, maxRetries int, opts ...QueueOption) PublishingQueueService {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	s := &publishingQueueService{
		qr:         qr,
		maxRetries: maxRetries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *publishingQueueService) MaxRetries() int {
	return s.maxRetries
}

func (s *publishingQueueService) newItem(in QueueItemInput) (*models.QueueItem, error) {
	platform, err := models.ParsePlatform(in.Platform)
	if err != nil {
		return nil, validationErr("%s", err)
	}
	if in.ScheduledFor.IsZero() {
		return nil, validationErr("scheduled_for is required")
	}
	if err := in.PlatformMetadata.Validate(platform); err != nil {
		return nil, validationErr("%s", err)
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate id: %w", err)
	}

	now := s.now()
	return &models.QueueItem{
		ID:               id,
		Platform:         platform,
		ContentItemID:    strings.TrimSpace(in.ContentItemID),
		ClipID:           strings.TrimSpace(in.ClipID),
		ScheduledFor:     in.ScheduledFor.UTC(),
		Status:           models.QueueStatusQueued,
		Priority:         in.Priority,
		Caption:          in.Caption,
		Hashtags:         normalizeHashtags(in.Hashtags),
		VideoURL:         strings.TrimSpace(in.VideoURL),
		ThumbnailURL:     strings.TrimSpace(in.ThumbnailURL),
		PlatformMetadata: in.PlatformMetadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func normalizeHashtags(tags []string) []string {
	var out []string
	for _, t := range tags {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (s *publishingQueueService) AddToQueue(ctx context.Context, in QueueItemInput) (*models.QueueItem, error) {
	item, err := s.newItem(in)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if err := s.qr.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("error creating queue item: %w", err)
	}

	slog.Info("queue item added", "item_id", item.ID, "platform", item.Platform, "scheduled_for", item.ScheduledFor)
	return item, nil
}

// BulkSchedule validates every entry before writing and then inserts the
// batch atomically: either all items are queued or none are.
func (s *publishingQueueService) BulkSchedule(ctx context.Context, in []QueueItemInput) ([]*models.QueueItem, error) {
	if len(in) == 0 {
		return nil, nil
	}

	items := make([]*models.QueueItem, 0, len(in))
	for i, entry := range in {
		item, err := s.newItem(entry)
		if err != nil {
			err = fmt.Errorf("item %d: %w", i, err)
			slog.Info(err.Error())
			return nil, err
		}
		items = append(items, item)
	}

	if err := s.qr.CreateBatch(ctx, items); err != nil {
		return nil, fmt.Errorf("error creating queue items: %w", err)
	}

	slog.Info("queue items bulk scheduled", "count", len(items))
	return items, nil
}

func (s *publishingQueueService) GetItem(ctx context.Context, id string) (*models.QueueItem, error) {
	item, err := s.qr.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return item, nil
}

func (s *publishingQueueService) GetNextItems(ctx context.Context, limit int, platform models.Platform) ([]*models.QueueItem, error) {
	return s.qr.ListDue(ctx, s.now(), limit, platform)
}

// ClaimNextItems selects due items and moves them to processing atomically.
func (s *publishingQueueService) ClaimNextItems(ctx context.Context, limit int, platform models.Platform) ([]*models.QueueItem, error) {
	return s.qr.ClaimDue(ctx, s.now(), limit, platform)
}

func (s *publishingQueueService) GetItemsByStatus(ctx context.Context, status models.QueueStatus, platform models.Platform, limit, offset int) ([]*models.QueueItem, error) {
	if status != "" && !status.Valid() {
		return nil, validationErr("unknown status %q", status)
	}
	if limit < 0 || offset < 0 {
		return nil, validationErr("limit and offset must not be negative")
	}
	return s.qr.ListByStatus(ctx, status, platform, limit, offset)
}

func (s *publishingQueueService) UpdateStatus(ctx context.Context, id string, status models.QueueStatus) (bool, error) {
	if !status.Valid() {
		return false, validationErr("unknown status %q", status)
	}
	if len(status.DirectPredecessors()) == 0 {
		return false, validationErr("status %q can only be reached by retrying a failed item", status)
	}

	ok, err := s.qr.UpdateStatus(ctx, id, status)
	if err != nil || ok {
		return ok, err
	}

	item, err := s.qr.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	return false, validationErr("cannot move item from %s to %s", item.Status, status)
}

func (s *publishingQueueService) RetryFailedItem(ctx context.Context, id string) (bool, error) {
	ok, err := s.qr.Requeue(ctx, id, s.maxRetries)
	if err != nil {
		return false, err
	}
	if ok {
		slog.Info("queue item re-queued", "item_id", id)
	}
	return ok, nil
}

func (s *publishingQueueService) RescheduleItem(ctx context.Context, id string, at time.Time) (bool, error) {
	if at.IsZero() {
		return false, validationErr("scheduled_for is required")
	}
	return s.qr.Reschedule(ctx, id, at.UTC())
}

func (s *publishingQueueService) CancelItem(ctx context.Context, id string) (bool, error) {
	ok, err := s.qr.Cancel(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		slog.Info("queue item cancelled", "item_id", id)
	}
	return ok, nil
}

func (s *publishingQueueService) LatestScheduled(ctx context.Context) (*time.Time, error) {
	return s.qr.LatestScheduled(ctx)
}

func (s *publishingQueueService) GetQueueStatistics(ctx context.Context) (*models.QueueStatistics, error) {
	return s.qr.Statistics(ctx)
}

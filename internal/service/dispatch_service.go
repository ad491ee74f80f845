package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/observability"
	"github.com/maheshrc27/postflow/internal/repository"
)

const (
	metricsWindow   = 7 * 24 * time.Hour
	staleLeaseError = "processing lease expired before the publish finished"
)

// Checkback is a fixed delay after publishing at which metrics are sampled.
type Checkback struct {
	Name  string
	After time.Duration
}

var Checkbacks = []Checkback{
	{"1h", time.Hour},
	{"6h", 6 * time.Hour},
	{"24h", 24 * time.Hour},
	{"72h", 72 * time.Hour},
	{"168h", 168 * time.Hour},
}

// DueCheckback returns the latest elapsed checkback that has not been
// recorded yet. Earlier missed checkbacks are skipped.
func DueCheckback(publishedAt, now time.Time, recorded map[string]bool) (Checkback, bool) {
	for i := len(Checkbacks) - 1; i >= 0; i-- {
		cb := Checkbacks[i]
		if now.Sub(publishedAt) < cb.After {
			continue
		}
		if recorded[cb.Name] {
			return Checkback{}, false
		}
		return cb, true
	}
	return Checkback{}, false
}

// PublishTaskEnqueuer hands a claimed item to the worker pool.
type PublishTaskEnqueuer interface {
	EnqueuePublish(ctx context.Context, item *models.QueueItem) error
}

type DispatchService interface {
	CheckScheduledPosts(ctx context.Context) ([]string, error)
	PublishScheduledPost(ctx context.Context, itemID string, finalAttempt bool) error
	RetryFailedPosts(ctx context.Context) ([]string, error)
	CollectPostMetrics(ctx context.Context) (int, error)
	AttemptHistory(ctx context.Context, itemID string) ([]*models.PostingHistory, error)
}

type dispatchService struct {
	pqs       PublishingQueueService
	qr        repository.QueueItemRepository
	mr        repository.PostMetricRepository
	hr        repository.PostingHistoryRepository
	platforms PlatformService
	enqueuer  PublishTaskEnqueuer
	queue     config.Queue
	timeouts  config.Timeouts
	now       func() time.Time
}

type DispatchOption func(*dispatchService)

func WithDispatchClock(now func() time.Time) DispatchOption {
	return func(s *dispatchService) { s.now = now }
}

func NewDispatchService(
	pqs PublishingQueueService,
	qr repository.QueueItemRepository,
	mr repository.PostMetricRepository,
	hr repository.PostingHistoryRepository,
	platforms PlatformService,
	enqueuer PublishTaskEnqueuer,
	queue config.Queue,
	timeouts config.Timeouts,
	opts ...DispatchOption) DispatchService {
	if queue.BatchSize <= 0 {
		queue.BatchSize = 100
	}
	if queue.Concurrency <= 0 {
		queue.Concurrency = 10
	}
	if queue.ProcessingLease <= 0 {
		queue.ProcessingLease = 30 * time.Minute
	}
	if timeouts.Default <= 0 {
		timeouts.Default = 30 * time.Second
	}
	s := &dispatchService{
		pqs:       pqs,
		qr:        qr,
		mr:        mr,
		hr:        hr,
		platforms: platforms,
		enqueuer:  enqueuer,
		queue:     queue,
		timeouts:  timeouts,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckScheduledPosts claims every due item in batches and enqueues one
// publish task per item. Items whose enqueue fails are released back to
// queued so the next run picks them up.
func (s *dispatchService) CheckScheduledPosts(ctx context.Context) ([]string, error) {
	var dispatched []string

	for {
		items, err := s.pqs.ClaimNextItems(ctx, s.queue.BatchSize, "")
		if err != nil {
			return dispatched, fmt.Errorf("error claiming due items: %w", err)
		}

		enqueueFailed := false
		for _, item := range items {
			if err := s.enqueuer.EnqueuePublish(ctx, item); err != nil {
				slog.Error("failed to enqueue publish task", "item_id", item.ID, "error", err)
				enqueueFailed = true
				if _, relErr := s.qr.ReleaseClaim(ctx, item.ID); relErr != nil {
					slog.Error("failed to release claim", "item_id", item.ID, "error", relErr)
				}
				continue
			}
			observability.ItemsDispatched.WithLabelValues(string(item.Platform)).Inc()
			dispatched = append(dispatched, item.ID)
		}

		if enqueueFailed || len(items) < s.queue.BatchSize {
			break
		}
	}

	if len(dispatched) > 0 {
		slog.Info("dispatched due items", "count", len(dispatched))
	}
	return dispatched, nil
}

// PublishScheduledPost runs one publish attempt for a claimed item. A
// transient failure on a non-final attempt is returned so the task runner
// retries it; every other outcome is written to the item and nil is returned.
// Final writes only apply while the item is still processing, so a cancel
// that lands mid-publish is never overwritten.
func (s *dispatchService) PublishScheduledPost(ctx context.Context, itemID string, finalAttempt bool) error {
	item, err := s.qr.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		slog.Warn("publish task for unknown item", "item_id", itemID)
		return nil
	}
	if item.Status != models.QueueStatusProcessing {
		slog.Info("skipping publish, item is not processing", "item_id", itemID, "status", item.Status)
		observability.PublishAttempts.WithLabelValues(string(item.Platform), "skipped").Inc()
		return nil
	}

	publisher, err := s.platforms.Publisher(item.Platform)
	if err != nil {
		return s.recordFailure(ctx, item, err)
	}

	pctx, cancel := context.WithTimeout(ctx, s.timeouts.For(string(item.Platform)))
	defer cancel()

	start := time.Now()
	result, err := s.publish(pctx, publisher, item)
	observability.PublishDuration.WithLabelValues(string(item.Platform)).Observe(time.Since(start).Seconds())

	if err != nil {
		if ErrorKindOf(err) == models.ErrorKindTransient && !finalAttempt {
			slog.Warn("transient publish failure, will retry", "item_id", item.ID, "platform", item.Platform, "error", err)
			s.recordAttempt(ctx, item, models.OutcomeRetrying, err)
			observability.PublishAttempts.WithLabelValues(string(item.Platform), "retrying").Inc()
			return err
		}
		return s.recordFailure(ctx, item, err)
	}

	ok, err := s.qr.MarkPublished(ctx, item.ID, result.PlatformPostID, result.URL, s.now().UTC())
	if err != nil {
		return err
	}
	s.recordAttempt(ctx, item, models.OutcomePublished, nil)
	if !ok {
		slog.Warn("item published but no longer processing, leaving its state", "item_id", item.ID, "platform_post_id", result.PlatformPostID)
		return nil
	}

	observability.PublishAttempts.WithLabelValues(string(item.Platform), "published").Inc()
	slog.Info("queue item published", "item_id", item.ID, "platform", item.Platform, "url", result.URL)
	return nil
}

// publish resumes a stored submission when the publisher supports it, and
// otherwise submits. The submission id is saved before waiting on it.
func (s *dispatchService) publish(ctx context.Context, publisher PlatformPublisher, item *models.QueueItem) (*PublishResult, error) {
	rp, ok := publisher.(ResumablePublisher)
	if !ok {
		return publisher.Publish(ctx, item)
	}

	submissionID := item.SubmissionID
	if submissionID != "" {
		slog.Info("resuming platform submission", "item_id", item.ID, "platform", item.Platform, "submission_id", submissionID)
	} else {
		id, err := rp.Submit(ctx, item)
		if err != nil {
			return nil, err
		}
		submissionID = id
		if _, err := s.qr.SetSubmission(ctx, item.ID, submissionID); err != nil {
			slog.Error("failed to store submission id", "item_id", item.ID, "submission_id", submissionID, "error", err)
		}
	}
	return rp.Await(ctx, item, submissionID)
}

func (s *dispatchService) recordFailure(ctx context.Context, item *models.QueueItem, cause error) error {
	kind := ErrorKindOf(cause)
	ok, err := s.qr.MarkFailed(ctx, item.ID, cause.Error(), kind)
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("publish failed but item is no longer processing", "item_id", item.ID, "error", cause)
		return nil
	}
	s.recordAttempt(ctx, item, models.OutcomeFailed, cause)
	observability.PublishAttempts.WithLabelValues(string(item.Platform), "failed").Inc()
	slog.Error("queue item failed", "item_id", item.ID, "platform", item.Platform, "kind", kind, "error", cause)
	return nil
}

// recordAttempt appends to the attempt log. History is best effort and never
// changes the outcome of the publish.
func (s *dispatchService) recordAttempt(ctx context.Context, item *models.QueueItem, outcome string, cause error) {
	ph := &models.PostingHistory{
		QueueItemID: item.ID,
		Platform:    item.Platform,
		Outcome:     outcome,
		CreatedAt:   s.now().UTC(),
	}
	if cause != nil {
		ph.ErrorMessage = cause.Error()
		ph.ErrorKind = ErrorKindOf(cause)
	}
	if _, err := s.hr.Create(ctx, ph); err != nil {
		slog.Error("failed to record publish attempt", "item_id", item.ID, "error", err)
	}
}

func (s *dispatchService) AttemptHistory(ctx context.Context, itemID string) ([]*models.PostingHistory, error) {
	if _, err := s.pqs.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.hr.ListByQueueItemID(ctx, itemID)
}

// RetryFailedPosts fails claims whose lease has expired, re-queues failed
// items with a transient cause that are still below the retry bound, and
// dispatches whatever is due. Permanent failures wait for an operator.
func (s *dispatchService) RetryFailedPosts(ctx context.Context) ([]string, error) {
	stale, err := s.qr.FailStale(ctx, s.now().Add(-s.queue.ProcessingLease), staleLeaseError)
	if err != nil {
		return nil, fmt.Errorf("error failing stale claims: %w", err)
	}
	if stale > 0 {
		observability.StaleClaimsFailed.Add(float64(stale))
		slog.Warn("failed items with expired processing lease", "count", stale)
	}

	candidates, err := s.qr.ListRetryable(ctx, s.pqs.MaxRetries(), s.queue.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("error listing retryable items: %w", err)
	}

	var requeued []string
	for _, item := range candidates {
		ok, err := s.pqs.RetryFailedItem(ctx, item.ID)
		if err != nil {
			slog.Error("failed to re-queue item", "item_id", item.ID, "error", err)
			continue
		}
		if ok {
			observability.ItemsRequeued.Inc()
			requeued = append(requeued, item.ID)
		}
	}

	if len(requeued) > 0 {
		if _, err := s.CheckScheduledPosts(ctx); err != nil {
			return requeued, err
		}
	}
	return requeued, nil
}

// CollectPostMetrics samples engagement for items published in the last
// seven days whose next checkback has elapsed. It returns the number of
// snapshots stored.
func (s *dispatchService) CollectPostMetrics(ctx context.Context) (int, error) {
	now := s.now()
	items, err := s.qr.ListPublishedSince(ctx, now.Add(-metricsWindow), 0)
	if err != nil {
		return 0, fmt.Errorf("error listing published items: %w", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		collected int
	)
	semaphore := make(chan struct{}, s.queue.Concurrency)

	for _, item := range items {
		if item.PublishedAt == nil || item.PlatformPostID == "" {
			continue
		}
		collector, ok := s.platforms.Collector(item.Platform)
		if !ok {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}
		go func(item *models.QueueItem) {
			defer wg.Done()
			defer func() { <-semaphore }()

			stored, err := s.collectOne(ctx, collector, item, now)
			if err != nil {
				slog.Info("metrics collection failed", "item_id", item.ID, "platform", item.Platform, "error", err)
				return
			}
			if stored {
				mu.Lock()
				collected++
				mu.Unlock()
			}
		}(item)
	}
	wg.Wait()

	if collected > 0 {
		slog.Info("post metrics collected", "count", collected)
	}
	return collected, nil
}

func (s *dispatchService) collectOne(ctx context.Context, collector MetricsCollector, item *models.QueueItem, now time.Time) (bool, error) {
	existing, err := s.mr.ListByQueueItemID(ctx, item.ID)
	if err != nil {
		return false, err
	}
	recorded := make(map[string]bool, len(existing))
	for _, m := range existing {
		recorded[m.Checkback] = true
	}

	cb, due := DueCheckback(*item.PublishedAt, now, recorded)
	if !due {
		return false, nil
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeouts.For(string(item.Platform)))
	defer cancel()

	metric, err := collector.CollectMetrics(cctx, item)
	if err != nil {
		return false, err
	}
	metric.QueueItemID = item.ID
	metric.Platform = item.Platform
	metric.Checkback = cb.Name
	metric.CollectedAt = now.UTC()

	if err := s.mr.Create(ctx, metric); err != nil {
		return false, err
	}
	return true, nil
}

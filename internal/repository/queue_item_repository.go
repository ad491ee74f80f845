package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/maheshrc27/postflow/internal/models"
)

// QueueItemRepository persists queue items. Conditional mutations return
// false when no row matched, which covers both a missing id and a status
// that does not allow the transition.
type QueueItemRepository interface {
	Create(ctx context.Context, item *models.QueueItem) error
	CreateBatch(ctx context.Context, items []*models.QueueItem) error
	GetByID(ctx context.Context, id string) (*models.QueueItem, error)
	ListDue(ctx context.Context, now time.Time, limit int, platform models.Platform) ([]*models.QueueItem, error)
	ListByStatus(ctx context.Context, status models.QueueStatus, platform models.Platform, limit, offset int) ([]*models.QueueItem, error)
	ClaimDue(ctx context.Context, now time.Time, limit int, platform models.Platform) ([]*models.QueueItem, error)
	UpdateStatus(ctx context.Context, id string, status models.QueueStatus) (bool, error)
	ReleaseClaim(ctx context.Context, id string) (bool, error)
	MarkPublished(ctx context.Context, id, platformPostID, platformURL string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, message string, kind models.ErrorKind) (bool, error)
	SetSubmission(ctx context.Context, id, submissionID string) (bool, error)
	Requeue(ctx context.Context, id string, maxRetries int) (bool, error)
	Reschedule(ctx context.Context, id string, at time.Time) (bool, error)
	Cancel(ctx context.Context, id string) (bool, error)
	ListRetryable(ctx context.Context, maxRetries, limit int) ([]*models.QueueItem, error)
	FailStale(ctx context.Context, claimedBefore time.Time, message string) (int64, error)
	ListPublishedSince(ctx context.Context, since time.Time, limit int) ([]*models.QueueItem, error)
	LatestScheduled(ctx context.Context) (*time.Time, error)
	Statistics(ctx context.Context) (*models.QueueStatistics, error)
}

const queueItemsTable = "queue_items"

var queueItemColumns = []string{
	"id", "platform", "content_item_id", "clip_id", "scheduled_for", "status", "priority",
	"retry_count", "caption", "hashtags", "video_url", "thumbnail_url", "platform_metadata",
	"platform_post_id", "platform_url", "submission_id", "error_message", "error_kind", "claimed_at",
	"published_at", "created_at", "updated_at",
}

var nonTerminalStatuses = []string{
	string(models.QueueStatusQueued),
	string(models.QueueStatusProcessing),
	string(models.QueueStatusFailed),
}

type queueItemRepository struct {
	db *sql.DB
}

func NewQueueItemRepository(db *sql.DB) QueueItemRepository {
	return &queueItemRepository{db: db}
}

func psql() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(row rowScanner) (*models.QueueItem, error) {
	var item models.QueueItem
	err := row.Scan(
		&item.ID, &item.Platform, &item.ContentItemID, &item.ClipID, &item.ScheduledFor,
		&item.Status, &item.Priority, &item.RetryCount, &item.Caption, pq.Array(&item.Hashtags),
		&item.VideoURL, &item.ThumbnailURL, &item.PlatformMetadata, &item.PlatformPostID,
		&item.PlatformURL, &item.SubmissionID, &item.ErrorMessage, &item.ErrorKind, &item.ClaimedAt,
		&item.PublishedAt, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *queueItemRepository) query(ctx context.Context, b sq.Sqlizer) ([]*models.QueueItem, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *queueItemRepository) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

func insertQueueItem(item *models.QueueItem) sq.InsertBuilder {
	return psql().Insert(queueItemsTable).
		Columns(queueItemColumns...).
		Values(
			item.ID, item.Platform, item.ContentItemID, item.ClipID, item.ScheduledFor,
			item.Status, item.Priority, item.RetryCount, item.Caption, pq.Array(item.Hashtags),
			item.VideoURL, item.ThumbnailURL, item.PlatformMetadata, item.PlatformPostID,
			item.PlatformURL, item.SubmissionID, item.ErrorMessage, item.ErrorKind, item.ClaimedAt,
			item.PublishedAt, item.CreatedAt, item.UpdatedAt,
		)
}

func (r *queueItemRepository) Create(ctx context.Context, item *models.QueueItem) error {
	_, err := r.exec(ctx, insertQueueItem(item))
	return err
}

// CreateBatch inserts all items in one transaction so a failure leaves no
// partial batch behind.
func (r *queueItemRepository) CreateBatch(ctx context.Context, items []*models.QueueItem) (err error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	for _, item := range items {
		query, args, buildErr := insertQueueItem(item).ToSql()
		if buildErr != nil {
			return fmt.Errorf("failed to build insert: %w", buildErr)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("error inserting queue item %s: %w", item.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *queueItemRepository) GetByID(ctx context.Context, id string) (*models.QueueItem, error) {
	query, args, err := psql().Select(queueItemColumns...).From(queueItemsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	item, err := scanQueueItem(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return item, nil
}

func dueSelect(columns []string, now time.Time, limit int, platform models.Platform) sq.SelectBuilder {
	b := sq.Select(columns...).
		From(queueItemsTable).
		Where(sq.Eq{"status": models.QueueStatusQueued}).
		Where(sq.LtOrEq{"scheduled_for": now}).
		OrderBy("priority DESC", "scheduled_for ASC")
	if platform != "" {
		b = b.Where(sq.Eq{"platform": platform})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return b
}

func (r *queueItemRepository) ListDue(ctx context.Context, now time.Time, limit int, platform models.Platform) ([]*models.QueueItem, error) {
	return r.query(ctx, dueSelect(queueItemColumns, now, limit, platform).PlaceholderFormat(sq.Dollar))
}

func (r *queueItemRepository) ListByStatus(ctx context.Context, status models.QueueStatus, platform models.Platform, limit, offset int) ([]*models.QueueItem, error) {
	b := psql().Select(queueItemColumns...).From(queueItemsTable).OrderBy("scheduled_for ASC", "id ASC")
	if status != "" {
		b = b.Where(sq.Eq{"status": status})
	}
	if platform != "" {
		b = b.Where(sq.Eq{"platform": platform})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	if offset > 0 {
		b = b.Offset(uint64(offset))
	}
	return r.query(ctx, b)
}

// ClaimDue moves due items to processing in a single statement. Rows locked
// by a concurrent claim are skipped, so no item is handed out twice.
func (r *queueItemRepository) ClaimDue(ctx context.Context, now time.Time, limit int, platform models.Platform) ([]*models.QueueItem, error) {
	items, err := r.query(ctx, claimDue(now, limit, platform))
	if err != nil {
		return nil, err
	}
	SortForDispatch(items)
	return items, nil
}

func claimDue(now time.Time, limit int, platform models.Platform) sq.UpdateBuilder {
	candidates := dueSelect([]string{"id"}, now, limit, platform).Suffix("FOR UPDATE SKIP LOCKED")

	return psql().Update(queueItemsTable).
		Set("status", models.QueueStatusProcessing).
		Set("claimed_at", now).
		Set("updated_at", now).
		Where(sq.Expr("id IN (?)", candidates)).
		Where(sq.Eq{"status": models.QueueStatusQueued}).
		Suffix("RETURNING " + joinColumns(queueItemColumns))
}

// UpdateStatus applies a direct transition. It only matches rows whose
// current status is a direct predecessor of status.
func (r *queueItemRepository) UpdateStatus(ctx context.Context, id string, status models.QueueStatus) (bool, error) {
	from := status.DirectPredecessors()
	if len(from) == 0 {
		return false, nil
	}
	n, err := r.exec(ctx, updateStatus(id, status, from, time.Now()))
	return n > 0, err
}

func updateStatus(id string, status models.QueueStatus, from []models.QueueStatus, now time.Time) sq.UpdateBuilder {
	b := psql().Update(queueItemsTable).
		Set("status", status).
		Set("updated_at", now)
	if status == models.QueueStatusProcessing {
		b = b.Set("claimed_at", now)
	}
	return b.Where(sq.Eq{"id": id, "status": statusStrings(from)})
}

func statusStrings(statuses []models.QueueStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *queueItemRepository) ReleaseClaim(ctx context.Context, id string) (bool, error) {
	n, err := r.exec(ctx, psql().Update(queueItemsTable).
		Set("status", models.QueueStatusQueued).
		Set("claimed_at", nil).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id, "status": models.QueueStatusProcessing}))
	return n > 0, err
}

func (r *queueItemRepository) MarkPublished(ctx context.Context, id, platformPostID, platformURL string, at time.Time) (bool, error) {
	n, err := r.exec(ctx, markPublished(id, platformPostID, platformURL, at))
	return n > 0, err
}

func markPublished(id, platformPostID, platformURL string, at time.Time) sq.UpdateBuilder {
	return psql().Update(queueItemsTable).
		Set("status", models.QueueStatusPublished).
		Set("platform_post_id", platformPostID).
		Set("platform_url", platformURL).
		Set("published_at", at).
		Set("error_message", "").
		Set("error_kind", models.ErrorKindNone).
		Set("updated_at", at).
		Where(sq.Eq{"id": id, "status": models.QueueStatusProcessing})
}

func (r *queueItemRepository) MarkFailed(ctx context.Context, id, message string, kind models.ErrorKind) (bool, error) {
	n, err := r.exec(ctx, markFailed(id, message, kind, time.Now()))
	return n > 0, err
}

// markFailed keeps the submission id of a transient failure so the retry can
// resume it. A permanent failure drops it and a later retry submits afresh.
func markFailed(id, message string, kind models.ErrorKind, now time.Time) sq.UpdateBuilder {
	b := psql().Update(queueItemsTable).
		Set("status", models.QueueStatusFailed).
		Set("error_message", message).
		Set("error_kind", kind).
		Set("updated_at", now)
	if kind == models.ErrorKindPermanent {
		b = b.Set("submission_id", "")
	}
	return b.Where(sq.Eq{"id": id, "status": models.QueueStatusProcessing})
}

// SetSubmission records the platform's id for an in-flight submission so a
// later attempt can resume it instead of posting again.
func (r *queueItemRepository) SetSubmission(ctx context.Context, id, submissionID string) (bool, error) {
	n, err := r.exec(ctx, setSubmission(id, submissionID, time.Now()))
	return n > 0, err
}

func setSubmission(id, submissionID string, now time.Time) sq.UpdateBuilder {
	return psql().Update(queueItemsTable).
		Set("submission_id", submissionID).
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "status": models.QueueStatusProcessing})
}

func (r *queueItemRepository) Requeue(ctx context.Context, id string, maxRetries int) (bool, error) {
	n, err := r.exec(ctx, requeue(id, maxRetries, time.Now()))
	return n > 0, err
}

func requeue(id string, maxRetries int, now time.Time) sq.UpdateBuilder {
	return psql().Update(queueItemsTable).
		Set("status", models.QueueStatusQueued).
		Set("retry_count", sq.Expr("retry_count + 1")).
		Set("error_message", "").
		Set("error_kind", models.ErrorKindNone).
		Set("claimed_at", nil).
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "status": models.QueueStatusFailed}).
		Where(sq.Lt{"retry_count": maxRetries})
}

func (r *queueItemRepository) Reschedule(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := r.exec(ctx, psql().Update(queueItemsTable).
		Set("scheduled_for", at).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id, "status": models.QueueStatusQueued}))
	return n > 0, err
}

func (r *queueItemRepository) Cancel(ctx context.Context, id string) (bool, error) {
	n, err := r.exec(ctx, cancelItem(id, time.Now()))
	return n > 0, err
}

func cancelItem(id string, now time.Time) sq.UpdateBuilder {
	return psql().Update(queueItemsTable).
		Set("status", models.QueueStatusCancelled).
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "status": nonTerminalStatuses})
}

func (r *queueItemRepository) ListRetryable(ctx context.Context, maxRetries, limit int) ([]*models.QueueItem, error) {
	b := psql().Select(queueItemColumns...).
		From(queueItemsTable).
		Where(sq.Eq{"status": models.QueueStatusFailed, "error_kind": models.ErrorKindTransient}).
		Where(sq.Lt{"retry_count": maxRetries}).
		OrderBy("updated_at ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return r.query(ctx, b)
}

func (r *queueItemRepository) FailStale(ctx context.Context, claimedBefore time.Time, message string) (int64, error) {
	return r.exec(ctx, psql().Update(queueItemsTable).
		Set("status", models.QueueStatusFailed).
		Set("error_message", message).
		Set("error_kind", models.ErrorKindTransient).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"status": models.QueueStatusProcessing}).
		Where(sq.Lt{"claimed_at": claimedBefore}))
}

func (r *queueItemRepository) ListPublishedSince(ctx context.Context, since time.Time, limit int) ([]*models.QueueItem, error) {
	b := psql().Select(queueItemColumns...).
		From(queueItemsTable).
		Where(sq.Eq{"status": models.QueueStatusPublished}).
		Where(sq.GtOrEq{"published_at": since}).
		OrderBy("published_at ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return r.query(ctx, b)
}

func (r *queueItemRepository) LatestScheduled(ctx context.Context) (*time.Time, error) {
	query, args, err := psql().Select("MAX(scheduled_for)").
		From(queueItemsTable).
		Where(sq.Eq{"status": models.QueueStatusQueued}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var latest sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&latest); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Time, nil
}

func (r *queueItemRepository) Statistics(ctx context.Context) (*models.QueueStatistics, error) {
	query, args, err := psql().Select("status", "platform", "COUNT(*)").
		From(queueItemsTable).
		GroupBy("status", "platform").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	stats := newStatistics()
	for rows.Next() {
		var status models.QueueStatus
		var platform models.Platform
		var count int
		if err := rows.Scan(&status, &platform, &count); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		stats.ByStatus[status] += count
		stats.ByPlatform[platform] += count
		stats.Total += count
	}
	return stats, rows.Err()
}

func newStatistics() *models.QueueStatistics {
	return &models.QueueStatistics{
		ByStatus:   make(map[models.QueueStatus]int),
		ByPlatform: make(map[models.Platform]int),
	}
}

// SortForDispatch orders items by priority descending, then earliest due first.
func SortForDispatch(items []*models.QueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].ScheduledFor.Before(items[j].ScheduledFor)
	})
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

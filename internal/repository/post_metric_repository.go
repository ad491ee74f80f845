package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/maheshrc27/postflow/internal/models"
)

type PostMetricRepository interface {
	Create(ctx context.Context, m *models.PostMetric) error
	ListByQueueItemID(ctx context.Context, queueItemID string) ([]*models.PostMetric, error)
}

type postMetricRepository struct {
	db *sql.DB
}

func NewPostMetricRepository(db *sql.DB) PostMetricRepository {
	return &postMetricRepository{db: db}
}

// Create stores a snapshot. A second snapshot for the same checkback is ignored.
func (r *postMetricRepository) Create(ctx context.Context, m *models.PostMetric) error {
	query, args, err := psql().Insert("post_metrics").
		Columns("queue_item_id", "platform", "checkback", "views", "likes", "comments", "shares", "collected_at").
		Values(m.QueueItemID, m.Platform, m.Checkback, m.Views, m.Likes, m.Comments, m.Shares, m.CollectedAt).
		Suffix("ON CONFLICT (queue_item_id, checkback) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	err = r.db.QueryRowContext(ctx, query, args...).Scan(&m.ID)
	if err != nil && err != sql.ErrNoRows {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postMetricRepository) ListByQueueItemID(ctx context.Context, queueItemID string) ([]*models.PostMetric, error) {
	query, args, err := psql().
		Select("id", "queue_item_id", "platform", "checkback", "views", "likes", "comments", "shares", "collected_at").
		From("post_metrics").
		Where(sq.Eq{"queue_item_id": queueItemID}).
		OrderBy("collected_at ASC").
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

	var metrics []*models.PostMetric
	for rows.Next() {
		var m models.PostMetric
		if err := rows.Scan(&m.ID, &m.QueueItemID, &m.Platform, &m.Checkback, &m.Views, &m.Likes, &m.Comments, &m.Shares, &m.CollectedAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

type MemoryPostMetricRepository struct {
	mu      sync.Mutex
	nextID  int64
	metrics []*models.PostMetric
}

func NewMemoryPostMetricRepository() *MemoryPostMetricRepository {
	return &MemoryPostMetricRepository{}
}

func (r *MemoryPostMetricRepository) Create(ctx context.Context, m *models.PostMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.metrics {
		if existing.QueueItemID == m.QueueItemID && existing.Checkback == m.Checkback {
			return nil
		}
	}
	r.nextID++
	m.ID = r.nextID
	c := *m
	r.metrics = append(r.metrics, &c)
	return nil
}

func (r *MemoryPostMetricRepository) ListByQueueItemID(ctx context.Context, queueItemID string) ([]*models.PostMetric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.PostMetric
	for _, m := range r.metrics {
		if m.QueueItemID == queueItemID {
			c := *m
			out = append(out, &c)
		}
	}
	return out, nil
}

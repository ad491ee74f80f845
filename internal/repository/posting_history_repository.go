package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/maheshrc27/postflow/internal/models"
)

// PostingHistoryRepository keeps an append-only log of publish attempts.
type PostingHistoryRepository interface {
	Create(ctx context.Context, ph *models.PostingHistory) (int64, error)
	ListByQueueItemID(ctx context.Context, queueItemID string) ([]*models.PostingHistory, error)
}

type postingHistoryRepository struct {
	db *sql.DB
}

func NewPostingHistoryRepository(db *sql.DB) PostingHistoryRepository {
	return &postingHistoryRepository{db: db}
}

func (r *postingHistoryRepository) Create(ctx context.Context, ph *models.PostingHistory) (int64, error) {
	query, args, err := psql().Insert("posting_history").
		Columns("queue_item_id", "platform", "outcome", "error_message", "error_kind", "created_at").
		Values(ph.QueueItemID, ph.Platform, ph.Outcome, ph.ErrorMessage, ph.ErrorKind, ph.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postingHistoryRepository) ListByQueueItemID(ctx context.Context, queueItemID string) ([]*models.PostingHistory, error) {
	query, args, err := psql().
		Select("id", "queue_item_id", "platform", "outcome", "error_message", "error_kind", "created_at").
		From("posting_history").
		Where(sq.Eq{"queue_item_id": queueItemID}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var phs []*models.PostingHistory
	for rows.Next() {
		var ph models.PostingHistory
		err := rows.Scan(&ph.ID, &ph.QueueItemID, &ph.Platform, &ph.Outcome, &ph.ErrorMessage, &ph.ErrorKind, &ph.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		phs = append(phs, &ph)
	}
	return phs, rows.Err()
}

type MemoryPostingHistoryRepository struct {
	mu      sync.Mutex
	nextID  int64
	entries []*models.PostingHistory
}

func NewMemoryPostingHistoryRepository() *MemoryPostingHistoryRepository {
	return &MemoryPostingHistoryRepository{}
}

func (r *MemoryPostingHistoryRepository) Create(ctx context.Context, ph *models.PostingHistory) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	c := *ph
	c.ID = r.nextID
	r.entries = append(r.entries, &c)
	return c.ID, nil
}

func (r *MemoryPostingHistoryRepository) ListByQueueItemID(ctx context.Context, queueItemID string) ([]*models.PostingHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.PostingHistory
	for _, ph := range r.entries {
		if ph.QueueItemID == queueItemID {
			c := *ph
			out = append(out, &c)
		}
	}
	return out, nil
}

package models

import "time"

type PostMetric struct {
	ID          int64     `db:"id" json:"id"`
	QueueItemID string    `db:"queue_item_id" json:"queue_item_id"`
	Platform    Platform  `db:"platform" json:"platform"`
	Checkback   string    `db:"checkback" json:"checkback"`
	Views       int64     `db:"views" json:"views"`
	Likes       int64     `db:"likes" json:"likes"`
	Comments    int64     `db:"comments" json:"comments"`
	Shares      int64     `db:"shares" json:"shares"`
	CollectedAt time.Time `db:"collected_at" json:"collected_at"`
}

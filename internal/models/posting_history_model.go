package models

import "time"

// PostingHistory is one publish attempt for a queue item.
type PostingHistory struct {
	ID           int64     `db:"id" json:"id"`
	QueueItemID  string    `db:"queue_item_id" json:"queue_item_id"`
	Platform     Platform  `db:"platform" json:"platform"`
	Outcome      string    `db:"outcome" json:"outcome"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	ErrorKind    ErrorKind `db:"error_kind" json:"error_kind,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

const (
	OutcomePublished = "published"
	OutcomeFailed    = "failed"
	OutcomeRetrying  = "retrying"
)

package models

import "time"

type QueueStatus string

const (
	QueueStatusQueued     QueueStatus = "queued"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusPublished  QueueStatus = "published"
	QueueStatusFailed     QueueStatus = "failed"
	QueueStatusCancelled  QueueStatus = "cancelled"
)

// Valid reports whether s is one of the known queue statuses.
func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusQueued, QueueStatusProcessing, QueueStatusPublished, QueueStatusFailed, QueueStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s QueueStatus) Terminal() bool {
	return s == QueueStatusPublished || s == QueueStatusCancelled
}

// DirectPredecessors lists the statuses a direct status update may move an
// item out of when setting s. Nothing moves back to queued this way; only a
// bounded retry or a released claim re-queues an item.
func (s QueueStatus) DirectPredecessors() []QueueStatus {
	switch s {
	case QueueStatusProcessing:
		return []QueueStatus{QueueStatusQueued}
	case QueueStatusPublished, QueueStatusFailed:
		return []QueueStatus{QueueStatusProcessing}
	case QueueStatusCancelled:
		return []QueueStatus{QueueStatusQueued, QueueStatusProcessing, QueueStatusFailed}
	}
	return nil
}

type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindTransient ErrorKind = "transient"
	ErrorKindPermanent ErrorKind = "permanent"
)

type QueueItem struct {
	ID               string           `db:"id" json:"id"`
	Platform         Platform         `db:"platform" json:"platform"`
	ContentItemID    string           `db:"content_item_id" json:"content_item_id,omitempty"`
	ClipID           string           `db:"clip_id" json:"clip_id,omitempty"`
	ScheduledFor     time.Time        `db:"scheduled_for" json:"scheduled_for"`
	Status           QueueStatus      `db:"status" json:"status"`
	Priority         int              `db:"priority" json:"priority"`
	RetryCount       int              `db:"retry_count" json:"retry_count"`
	Caption          string           `db:"caption" json:"caption,omitempty"`
	Hashtags         []string         `db:"hashtags" json:"hashtags,omitempty"`
	VideoURL         string           `db:"video_url" json:"video_url,omitempty"`
	ThumbnailURL     string           `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	PlatformMetadata PlatformMetadata `db:"platform_metadata" json:"platform_metadata"`
	PlatformPostID   string           `db:"platform_post_id" json:"platform_post_id,omitempty"`
	PlatformURL      string           `db:"platform_url" json:"platform_url,omitempty"`
	SubmissionID     string           `db:"submission_id" json:"submission_id,omitempty"`
	ErrorMessage     string           `db:"error_message" json:"error_message,omitempty"`
	ErrorKind        ErrorKind        `db:"error_kind" json:"error_kind,omitempty"`
	ClaimedAt        *time.Time       `db:"claimed_at" json:"claimed_at,omitempty"`
	PublishedAt      *time.Time       `db:"published_at" json:"published_at,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// Due reports whether the item is eligible for dispatch at now.
func (q *QueueItem) Due(now time.Time) bool {
	return q.Status == QueueStatusQueued && !q.ScheduledFor.After(now)
}

// QueueStatistics is the aggregate view returned by the status endpoint.
type QueueStatistics struct {
	ByStatus   map[QueueStatus]int `json:"by_status"`
	ByPlatform map[Platform]int    `json:"by_platform"`
	Total      int                 `json:"total"`
}

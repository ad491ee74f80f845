package models

import "time"

type ScheduleStatus string

const (
	ScheduleStatusPending ScheduleStatus = "pending"
	ScheduleStatusPosted  ScheduleStatus = "posted"
	ScheduleStatusFailed  ScheduleStatus = "failed"
)

// PlatformHintMulti asks the planner to pick its default platform.
const PlatformHintMulti = "multi-platform"

// Asset is a ready-to-publish unit of content with no assigned time yet.
type Asset struct {
	MediaID       string   `json:"media_id"`
	PlatformHint  string   `json:"platform_hint,omitempty"`
	ContentItemID string   `json:"content_item_id,omitempty"`
	ClipID        string   `json:"clip_id,omitempty"`
	Caption       string   `json:"caption,omitempty"`
	Hashtags      []string `json:"hashtags,omitempty"`
	VideoURL      string   `json:"video_url,omitempty"`
	ThumbnailURL  string   `json:"thumbnail_url,omitempty"`
}

type PostingSchedule struct {
	MediaID     string         `json:"media_id"`
	Platform    Platform       `json:"platform"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	Status      ScheduleStatus `json:"status"`
}

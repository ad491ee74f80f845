package transfer

import (
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type RescheduleRequest struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

type StatusUpdateRequest struct {
	Status models.QueueStatus `json:"status"`
}

type PlanRequest struct {
	Assets []models.Asset `json:"assets"`
	Start  *time.Time     `json:"start,omitempty"`
	Merge  bool           `json:"merge"`
	Queue  bool           `json:"queue"`
}

type ItemsResponse struct {
	Items []*models.QueueItem `json:"items"`
	Count int                 `json:"count"`
}

type BulkResponse struct {
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

type ProcessResponse struct {
	Processed []string `json:"processed"`
	Count     int      `json:"count"`
}

package queue

import (
	"github.com/maheshrc27/postflow/internal/service"
)

// Worker executes publish tasks pulled from the broker.
type Worker struct {
	ds service.DispatchService
}

func NewWorker(ds service.DispatchService) *Worker {
	return &Worker{
		ds: ds,
	}
}

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	ItemID string `json:"item_id"`
}

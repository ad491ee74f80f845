package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const defaultPageSize = 50

type QueueHandler struct {
	qs service.PublishingQueueService
	ds service.DispatchService
}

func NewQueueHandler(qs service.PublishingQueueService, ds service.DispatchService) *QueueHandler {
	return &QueueHandler{qs: qs, ds: ds}
}

func (h *QueueHandler) Register(r fiber.Router) {
	r.Post("/add", h.AddItem)
	r.Post("/bulk", h.BulkSchedule)
	r.Get("/items", h.ListItems)
	r.Get("/status", h.Statistics)
	r.Post("/process", h.Process)
	r.Get("/:id", h.GetItem)
	r.Get("/:id/history", h.History)
	r.Put("/:id/retry", h.RetryItem)
	r.Put("/:id/reschedule", h.RescheduleItem)
	r.Put("/:id/status", h.UpdateStatus)
	r.Delete("/:id/cancel", h.CancelItem)
}

func (h *QueueHandler) AddItem(c *fiber.Ctx) error {
	var in service.QueueItemInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}

	item, err := h.qs.AddToQueue(c.Context(), in)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":     item.ID,
		"status": item.Status,
	})
}

func (h *QueueHandler) BulkSchedule(c *fiber.Ctx) error {
	var body struct {
		Items []service.QueueItemInput `json:"items"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}

	items, err := h.qs.BulkSchedule(c.Context(), body.Items)
	if err != nil {
		return respondError(c, err)
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.BulkResponse{Count: len(ids), IDs: ids})
}

func (h *QueueHandler) ListItems(c *fiber.Ctx) error {
	var platform models.Platform
	if raw := c.Query("platform"); raw != "" {
		p, err := models.ParsePlatform(raw)
		if err != nil {
			return badRequest(c, err.Error())
		}
		platform = p
	}

	status := models.QueueStatus(c.Query("status"))
	limit := c.QueryInt("limit", defaultPageSize)
	offset := c.QueryInt("offset", 0)

	items, err := h.qs.GetItemsByStatus(c.Context(), status, platform, limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	if items == nil {
		items = []*models.QueueItem{}
	}

	return c.Status(fiber.StatusOK).JSON(transfer.ItemsResponse{Items: items, Count: len(items)})
}

func (h *QueueHandler) Statistics(c *fiber.Ctx) error {
	stats, err := h.qs.GetQueueStatistics(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}

func (h *QueueHandler) GetItem(c *fiber.Ctx) error {
	item, err := h.qs.GetItem(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(item)
}

func (h *QueueHandler) RetryItem(c *fiber.Ctx) error {
	id := c.Params("id")
	ok, err := h.qs.RetryFailedItem(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	if !ok {
		if _, err := h.qs.GetItem(c.Context(), id); err != nil {
			return respondError(c, err)
		}
		return badRequest(c, "Item is not failed or has exhausted its retries")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Item re-queued", "id": id})
}

func (h *QueueHandler) RescheduleItem(c *fiber.Ctx) error {
	var req transfer.RescheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	id := c.Params("id")
	ok, err := h.qs.RescheduleItem(c.Context(), id, req.ScheduledFor)
	if err != nil {
		return respondError(c, err)
	}
	if !ok {
		return notFound(c, "Item not found or not queued")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Item rescheduled", "id": id})
}

func (h *QueueHandler) UpdateStatus(c *fiber.Ctx) error {
	var req transfer.StatusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	id := c.Params("id")
	ok, err := h.qs.UpdateStatus(c.Context(), id, req.Status)
	if err != nil {
		return respondError(c, err)
	}
	if !ok {
		return notFound(c, "Item not found")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Status updated", "id": id})
}

func (h *QueueHandler) CancelItem(c *fiber.Ctx) error {
	id := c.Params("id")
	ok, err := h.qs.CancelItem(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	if !ok {
		return notFound(c, "Item not found or already finished")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Item cancelled", "id": id})
}

func (h *QueueHandler) Process(c *fiber.Ctx) error {
	ids, err := h.ds.CheckScheduledPosts(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return c.Status(fiber.StatusOK).JSON(transfer.ProcessResponse{Processed: ids, Count: len(ids)})
}

func (h *QueueHandler) History(c *fiber.Ctx) error {
	history, err := h.ds.AttemptHistory(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if history == nil {
		history = []*models.PostingHistory{}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"history": history, "count": len(history)})
}

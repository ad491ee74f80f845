package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type ScheduleHandler struct {
	s service.SchedulingService
}

func NewScheduleHandler(s service.SchedulingService) *ScheduleHandler {
	return &ScheduleHandler{s: s}
}

// Plan computes posting times for a batch of assets. The plan starts at
// start, or after the latest queued item with merge set. With queue set the
// planned entries are written to the publishing queue as well.
func (h *ScheduleHandler) Plan(c *fiber.Ctx) error {
	var req transfer.PlanRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if len(req.Assets) == 0 {
		return badRequest(c, "No assets given")
	}

	var start time.Time
	if req.Start != nil {
		start = *req.Start
	}

	if !req.Queue {
		result, err := h.s.Plan(c.Context(), req.Assets, start, req.Merge)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"schedule": result})
	}

	result, items, err := h.s.PlanAndQueue(c.Context(), req.Assets, start, req.Merge)
	if err != nil {
		return respondError(c, err)
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"schedule": result,
		"queued":   ids,
	})
}

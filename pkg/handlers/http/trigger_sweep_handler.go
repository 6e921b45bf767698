package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/inkpress/gatekeeper/pkg/app/sweep"
	"github.com/sirupsen/logrus"
)

type triggerSweepHandler struct {
	logger    *logrus.Logger
	scheduler sweep.Scheduler
}

func NewTriggerSweepHandler(logger *logrus.Logger, scheduler sweep.Scheduler) Handler {
	return &triggerSweepHandler{
		logger:    logger,
		scheduler: scheduler,
	}
}

// Handle @Summary Run a sweep job now
// @Tags Sweeps
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Param job path string true "Job name (ratelimit, guest, verification_code)"
// @Success 200 {object} map[string]interface{} "Deleted record count"
// @Failure 404 {object} map[string]interface{} "Unknown job"
// @Failure 409 {object} map[string]interface{} "Job already running"
// @Failure 500 {object} map[string]interface{} "Sweep failed"
// @Router /api/v1/admin/sweeps/{job} [post]
func (h *triggerSweepHandler) Handle(c *fiber.Ctx) error {
	job := c.Params("job")
	deleted, err := h.scheduler.RunOnce(c.UserContext(), job)
	switch {
	case err == nil:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"job": job, "deleted": deleted})
	case errors.Is(err, sweep.ErrUnknownJob):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown sweep job",
			"jobs":  h.scheduler.Jobs(),
		})
	case errors.Is(err, sweep.ErrJobRunning):
		return errorResponse(c, fiber.StatusConflict, err.Error())
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "sweep failed",
			"job":     job,
			"deleted": deleted,
		})
	}
}

package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	appRatelimit "github.com/inkpress/gatekeeper/pkg/app/ratelimit"
	"github.com/inkpress/gatekeeper/pkg/common"
	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/sirupsen/logrus"
)

type resetRateLimitHandler struct {
	logger  *logrus.Logger
	limiter appRatelimit.Limiter
}

func NewResetRateLimitHandler(logger *logrus.Logger, limiter appRatelimit.Limiter) Handler {
	return &resetRateLimitHandler{
		logger:  logger,
		limiter: limiter,
	}
}

// Handle @Summary Reset a client's rate-limit record
// @Description Clears counters and any block for the client on every instance
// @Tags Rate Limits
// @Param Authorization header string true "Authorization token"
// @Param client_key path string true "Client key"
// @Success 204 "No Content"
// @Failure 400 {object} map[string]interface{} "Invalid client key"
// @Failure 404 {object} map[string]interface{} "Not Found"
// @Failure 503 {object} map[string]interface{} "Store unavailable"
// @Router /api/v1/admin/rate-limits/{client_key} [delete]
func (h *resetRateLimitHandler) Handle(c *fiber.Ctx) error {
	clientKey := c.Params("client_key")
	if err := h.limiter.Reset(c.UserContext(), clientKey); err != nil {
		if domain.IsNotFoundError(err) {
			return errorResponse(c, fiber.StatusNotFound, "rate limit record not found")
		}
		if errors.Is(err, domain.ErrInvalidClientKey) {
			return errorResponse(c, fiber.StatusBadRequest, "invalid client key")
		}
		h.logger.WithError(err).WithField("client_key", clientKey).Error("failed to reset rate limit record")
		return errorResponse(c, fiber.StatusServiceUnavailable, "rate limit store unavailable")
	}
	h.logger.WithFields(logrus.Fields{
		"client_key": clientKey,
		"admin":      c.Locals(common.AdminSubjectContextKey),
	}).Info("rate limit reset by admin")
	return c.SendStatus(fiber.StatusNoContent)
}

package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	appRatelimit "github.com/inkpress/gatekeeper/pkg/app/ratelimit"
	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/sirupsen/logrus"
)

type getRateLimitHandler struct {
	logger  *logrus.Logger
	limiter appRatelimit.Limiter
}

func NewGetRateLimitHandler(logger *logrus.Logger, limiter appRatelimit.Limiter) Handler {
	return &getRateLimitHandler{
		logger:  logger,
		limiter: limiter,
	}
}

// Handle @Summary Inspect a client's rate-limit record
// @Tags Rate Limits
// @Produce json
// @Param Authorization header string true "Authorization token"
// @Param client_key path string true "Client key"
// @Success 200 {object} ratelimit.Record "Rate-limit record"
// @Failure 400 {object} map[string]interface{} "Invalid client key"
// @Failure 404 {object} map[string]interface{} "Not Found"
// @Failure 503 {object} map[string]interface{} "Store unavailable"
// @Router /api/v1/admin/rate-limits/{client_key} [get]
func (h *getRateLimitHandler) Handle(c *fiber.Ctx) error {
	clientKey := c.Params("client_key")
	rec, err := h.limiter.Inspect(c.UserContext(), clientKey)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return errorResponse(c, fiber.StatusNotFound, "rate limit record not found")
		}
		if errors.Is(err, domain.ErrInvalidClientKey) {
			return errorResponse(c, fiber.StatusBadRequest, "invalid client key")
		}
		h.logger.WithError(err).WithField("client_key", clientKey).Error("failed to inspect rate limit record")
		return errorResponse(c, fiber.StatusServiceUnavailable, "rate limit store unavailable")
	}
	return c.Status(fiber.StatusOK).JSON(rec)
}

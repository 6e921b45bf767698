package http

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	appRatelimit "github.com/inkpress/gatekeeper/pkg/app/ratelimit"
	"github.com/inkpress/gatekeeper/pkg/common"
	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/inkpress/gatekeeper/pkg/domain/attachment"
	"github.com/sirupsen/logrus"
)

type downloadAttachmentHandler struct {
	logger       *logrus.Logger
	limiter      appRatelimit.Limiter
	finder       attachment.Finder
	timeProvider func() time.Time
}

func NewDownloadAttachmentHandler(
	logger *logrus.Logger,
	limiter appRatelimit.Limiter,
	finder attachment.Finder,
) Handler {
	return &downloadAttachmentHandler{
		logger:       logger,
		limiter:      limiter,
		finder:       finder,
		timeProvider: time.Now,
	}
}

// Handle @Summary Download an attachment
// @Description Streams an attachment. Every call counts against the caller's download rate; callers over the limit are blocked for the configured block duration.
// @Tags Attachments
// @Produce octet-stream
// @Param attachment_id path string true "Attachment ID"
// @Success 200 {file} file "Attachment content"
// @Failure 400 {object} map[string]interface{} "Invalid attachment id or client key"
// @Failure 403 {object} map[string]interface{} "Download frequency too high"
// @Failure 404 {object} map[string]interface{} "Attachment not found"
// @Failure 503 {object} map[string]interface{} "Rate limiter unavailable"
// @Router /api/v1/attachments/{attachment_id}/download [get]
func (h *downloadAttachmentHandler) Handle(c *fiber.Ctx) error {
	ctx := c.UserContext()
	clientKey := clientKeyFrom(c)

	decision := h.limiter.Admit(ctx, clientKey)
	if !decision.Allowed {
		return h.deny(c, clientKey, decision)
	}

	id := c.Params("attachment_id")
	file, err := h.finder.Find(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, attachment.ErrInvalidID):
			return errorResponse(c, fiber.StatusBadRequest, "invalid attachment_id")
		case domain.IsNotFoundError(err):
			return errorResponse(c, fiber.StatusNotFound, "attachment not found")
		default:
			h.logger.WithError(err).WithField("attachment_id", id).Error("failed to resolve attachment")
			return errorResponse(c, fiber.StatusInternalServerError, "failed to resolve attachment")
		}
	}

	if file.ContentType != "" {
		c.Set(fiber.HeaderContentType, file.ContentType)
	}
	return c.Download(file.Path, file.FileName)
}

func (h *downloadAttachmentHandler) deny(c *fiber.Ctx, clientKey string, d appRatelimit.Decision) error {
	if d.Degraded {
		c.Set(common.RetryAfterHeader, "1")
		return errorResponse(c, fiber.StatusServiceUnavailable, "rate limiter unavailable, try again shortly")
	}
	if d.Reason == appRatelimit.ReasonInvalidClientKey {
		return errorResponse(c, fiber.StatusBadRequest, "invalid client key")
	}

	hours := h.limiter.Policy().RetryAfterHours()
	if !d.BlockUntil.IsZero() {
		remaining := d.BlockUntil.Sub(h.timeProvider())
		if remaining > 0 {
			c.Set(common.RetryAfterHeader, strconv.Itoa(int(math.Ceil(remaining.Seconds()))))
		}
	}
	h.logger.WithFields(logrus.Fields{
		"client_key":    clientKey,
		"reason":        d.Reason,
		"newly_blocked": d.NewlyBlocked,
	}).Info("attachment download denied")

	return errorResponse(c, fiber.StatusForbidden, fmt.Sprintf("download frequency too high, try again in %d hours", hours))
}

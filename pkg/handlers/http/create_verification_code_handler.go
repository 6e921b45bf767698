package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	appIdentity "github.com/inkpress/gatekeeper/pkg/app/identity"
	"github.com/inkpress/gatekeeper/pkg/handlers/http/request"
	"github.com/sirupsen/logrus"
)

type createVerificationCodeHandler struct {
	logger *logrus.Logger
	codes  appIdentity.VerificationCodeService
	sender appIdentity.CodeSender
}

func NewCreateVerificationCodeHandler(
	logger *logrus.Logger,
	codes appIdentity.VerificationCodeService,
	sender appIdentity.CodeSender,
) Handler {
	return &createVerificationCodeHandler{
		logger: logger,
		codes:  codes,
		sender: sender,
	}
}

// Handle @Summary Request a verification code
// @Description Generates a six-digit single-use code for the recipient, replacing any outstanding one. The code is delivered out of band.
// @Tags Verification Codes
// @Accept json
// @Produce json
// @Param request body request.CreateVerificationCodeRequest true "Recipient"
// @Success 202 {object} map[string]interface{} "Code issued"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 500 {object} map[string]interface{} "Internal Error"
// @Router /api/v1/verification-codes [post]
func (h *createVerificationCodeHandler) Handle(c *fiber.Ctx) error {
	var req request.CreateVerificationCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	code, err := h.codes.Generate(ctx, req.Recipient)
	if err != nil {
		if errors.Is(err, appIdentity.ErrInvalidRecipient) {
			return errorResponse(c, fiber.StatusBadRequest, err.Error())
		}
		h.logger.WithError(err).Error("failed to generate verification code")
		return errorResponse(c, fiber.StatusInternalServerError, "failed to generate verification code")
	}

	if err := h.sender.Send(ctx, code); err != nil {
		h.logger.WithError(err).WithField("recipient", code.Recipient).Error("failed to deliver verification code")
		if revokeErr := h.codes.Revoke(ctx, code.Recipient); revokeErr != nil {
			h.logger.WithError(revokeErr).Warn("failed to revoke undelivered verification code")
		}
		return errorResponse(c, fiber.StatusInternalServerError, "failed to deliver verification code")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"recipient": code.Recipient,
		"expire_at": code.ExpireAt,
	})
}

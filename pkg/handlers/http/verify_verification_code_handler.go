package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	appIdentity "github.com/inkpress/gatekeeper/pkg/app/identity"
	"github.com/inkpress/gatekeeper/pkg/handlers/http/request"
	"github.com/sirupsen/logrus"
)

type verifyVerificationCodeHandler struct {
	logger *logrus.Logger
	codes  appIdentity.VerificationCodeService
}

func NewVerifyVerificationCodeHandler(logger *logrus.Logger, codes appIdentity.VerificationCodeService) Handler {
	return &verifyVerificationCodeHandler{
		logger: logger,
		codes:  codes,
	}
}

// Handle @Summary Verify a code
// @Description Accepts a verification code once; expired, replaced or already used codes are rejected
// @Tags Verification Codes
// @Accept json
// @Produce json
// @Param request body request.VerifyVerificationCodeRequest true "Recipient and code"
// @Success 204 "Verified"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 422 {object} map[string]interface{} "Invalid or expired code"
// @Failure 429 {object} map[string]interface{} "Too many failed attempts"
// @Failure 500 {object} map[string]interface{} "Internal Error"
// @Router /api/v1/verification-codes/verify [post]
func (h *verifyVerificationCodeHandler) Handle(c *fiber.Ctx) error {
	var req request.VerifyVerificationCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	err := h.codes.Validate(c.UserContext(), req.Recipient, req.Code)
	switch {
	case err == nil:
		return c.SendStatus(fiber.StatusNoContent)
	case errors.Is(err, appIdentity.ErrInvalidRecipient):
		return errorResponse(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, appIdentity.ErrInvalidCode):
		return errorResponse(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, appIdentity.ErrTooManyAttempts):
		return errorResponse(c, fiber.StatusTooManyRequests, err.Error())
	default:
		h.logger.WithError(err).Error("failed to verify code")
		return errorResponse(c, fiber.StatusInternalServerError, "failed to verify code")
	}
}

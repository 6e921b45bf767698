package http

import (
	"github.com/gofiber/fiber/v2"
	appIdentity "github.com/inkpress/gatekeeper/pkg/app/identity"
	"github.com/sirupsen/logrus"
)

type createGuestHandler struct {
	logger *logrus.Logger
	guests appIdentity.GuestService
}

func NewCreateGuestHandler(logger *logrus.Logger, guests appIdentity.GuestService) Handler {
	return &createGuestHandler{
		logger: logger,
		guests: guests,
	}
}

// Handle @Summary Create a guest session
// @Description Issues a short-lived visitor account with a generated password and bearer token
// @Tags Guests
// @Produce json
// @Success 201 {object} identity.Guest "Guest credentials"
// @Failure 500 {object} map[string]interface{} "Internal Error"
// @Router /api/v1/guests [post]
func (h *createGuestHandler) Handle(c *fiber.Ctx) error {
	guest, err := h.guests.Issue(c.UserContext())
	if err != nil {
		h.logger.WithError(err).Error("failed to issue guest")
		return errorResponse(c, fiber.StatusInternalServerError, "failed to create guest")
	}
	return c.Status(fiber.StatusCreated).JSON(guest)
}

package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/inkpress/gatekeeper/pkg/common"
)

func errorResponse(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func clientKeyFrom(c *fiber.Ctx) string {
	if key, ok := c.Locals(common.ClientKeyContextKey).(string); ok {
		return key
	}
	return c.IP()
}

package http

import "github.com/gofiber/fiber/v2"

type Handler interface {
	Handle(ctx *fiber.Ctx) error
}

type HandlerTransport struct {
	// Protected resources
	DownloadAttachmentHandler Handler

	// Ephemeral identities
	CreateGuestHandler            Handler
	CreateVerificationCodeHandler Handler
	VerifyVerificationCodeHandler Handler

	// Admin
	GetRateLimitHandler   Handler
	ResetRateLimitHandler Handler
	TriggerSweepHandler   Handler

	GetVersionHandler Handler
}

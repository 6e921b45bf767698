package router

import (
	"github.com/gofiber/fiber/v2"
	handlers "github.com/inkpress/gatekeeper/pkg/handlers/http"
	"github.com/inkpress/gatekeeper/pkg/middleware"
)

type apiRouter struct {
	middlewareTransport *middleware.Transport
	handlerTransport    *handlers.HandlerTransport
}

func NewAPIRouter(
	middlewareTransport *middleware.Transport,
	handlerTransport *handlers.HandlerTransport,
) ServerRouter {
	return &apiRouter{
		middlewareTransport: middlewareTransport,
		handlerTransport:    handlerTransport,
	}
}

func (r *apiRouter) BuildRoutes(router *fiber.App) error {
	if r.handlerTransport == nil || r.middlewareTransport == nil {
		return ErrInvalidHandlerTransport
	}
	h := r.handlerTransport
	m := r.middlewareTransport

	router.Get("/version", h.GetVersionHandler.Handle)

	v1 := router.Group("/api/v1")
	{
		v1.Use(
			m.PanicRecoverMiddleware.Middleware(),
			m.ClientKeyMiddleware.Middleware(),
			m.MetricsMiddleware.Middleware(),
			m.ThrottleMiddleware.Middleware(),
		)

		v1.Get("/attachments/:attachment_id/download", h.DownloadAttachmentHandler.Handle)

		v1.Post("/guests", h.CreateGuestHandler.Handle)

		codes := v1.Group("/verification-codes")
		{
			codes.Post("", h.CreateVerificationCodeHandler.Handle)
			codes.Post("/verify", h.VerifyVerificationCodeHandler.Handle)
		}
	}
	return nil
}

package router

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/inkpress/gatekeeper/pkg/config"
	handlers "github.com/inkpress/gatekeeper/pkg/handlers/http"
	"github.com/inkpress/gatekeeper/pkg/middleware"
)

var (
	ErrInvalidHandlerTransport = errors.New("invalid handler transport")
)

type adminRouter struct {
	middlewareTransport *middleware.Transport
	handlerTransport    *handlers.HandlerTransport
	config              *config.Config
}

func NewAdminRouter(
	middlewareTransport *middleware.Transport,
	handlerTransport *handlers.HandlerTransport,
	cfg *config.Config,
) ServerRouter {
	return &adminRouter{
		middlewareTransport: middlewareTransport,
		handlerTransport:    handlerTransport,
		config:              cfg,
	}
}

func (r *adminRouter) BuildRoutes(router *fiber.App) error {
	if r.handlerTransport == nil || r.middlewareTransport == nil {
		return ErrInvalidHandlerTransport
	}
	h := r.handlerTransport
	m := r.middlewareTransport

	router.Static("/swagger.json", "./docs/swagger.json")

	router.Get("/docs/*", swagger.New(swagger.Config{
		URL: fmt.Sprintf("http://localhost:%d/swagger.json", r.config.Server.AdminPort),
	}))

	router.Get("/version", h.GetVersionHandler.Handle)

	v1 := router.Group("/api/v1/admin")
	{
		v1.Use(
			m.PanicRecoverMiddleware.Middleware(),
			m.ClientKeyMiddleware.Middleware(),
			m.MetricsMiddleware.Middleware(),
			m.AdminAuthMiddleware.Middleware(),
		)

		rateLimits := v1.Group("/rate-limits")
		{
			rateLimits.Get("/:client_key", h.GetRateLimitHandler.Handle)
			rateLimits.Delete("/:client_key", h.ResetRateLimitHandler.Handle)
		}

		v1.Post("/sweeps/:job", h.TriggerSweepHandler.Handle)
	}
	return nil
}

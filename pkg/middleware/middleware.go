package middleware

import "github.com/gofiber/fiber/v2"

type Middleware interface {
	Middleware() fiber.Handler
}

type Transport struct {
	ClientKeyMiddleware    Middleware
	ThrottleMiddleware     Middleware
	MetricsMiddleware      Middleware
	PanicRecoverMiddleware Middleware
	AdminAuthMiddleware    Middleware
}

package middleware

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/inkpress/gatekeeper/pkg/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type throttleMiddleware struct {
	logger  *logrus.Logger
	limiter *rate.Limiter
}

// NewThrottleMiddleware caps the whole API server at rps requests per second
// with the given burst, independently of per-client blocking. A non-positive
// rps disables it.
func NewThrottleMiddleware(logger *logrus.Logger, rps float64, burst int) Middleware {
	m := &throttleMiddleware{logger: logger}
	if rps > 0 {
		if burst <= 0 {
			burst = int(math.Ceil(rps))
		}
		m.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return m
}

func (m *throttleMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m.limiter == nil || m.limiter.Allow() {
			return c.Next()
		}
		m.logger.WithField("path", c.Path()).Debug("server throttle engaged")
		c.Set(common.RetryAfterHeader, strconv.Itoa(1))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Server is busy, retry shortly"})
	}
}

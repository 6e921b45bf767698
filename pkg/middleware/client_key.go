package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/inkpress/gatekeeper/pkg/common"
	"github.com/inkpress/gatekeeper/pkg/domain/ratelimit"
)

type clientKeyMiddleware struct{}

// NewClientKeyMiddleware tags every request with its client key, a trace id and
// its start time. The key is the first X-Forwarded-For hop, else the socket
// address, else the anonymous bucket.
func NewClientKeyMiddleware() Middleware {
	return &clientKeyMiddleware{}
}

func (m *clientKeyMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(common.LatencyContextKey, time.Now())

		traceID := c.Get(common.RequestIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Locals(common.TraceIdKey, traceID)
		c.Set(common.RequestIDHeader, traceID)

		c.Locals(common.ClientKeyContextKey, ClientKey(c))
		return c.Next()
	}
}

// ClientKey derives the client key without relying on the middleware having run.
func ClientKey(c *fiber.Ctx) string {
	if key, ok := c.Locals(common.ClientKeyContextKey).(string); ok && key != "" {
		return key
	}
	if forwarded := c.Get(common.ForwardedForHeader); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return ratelimit.NormalizeClientKey(first)
		}
	}
	return ratelimit.NormalizeClientKey(c.IP())
}

package ratelimit

import (
	"context"
	"time"

	"github.com/inkpress/gatekeeper/pkg/domain/ratelimit"
)

// WindowCounter counts requests per client in fixed windows. A burst that
// straddles a boundary can reach twice the threshold across two windows.
type WindowCounter struct {
	store  ratelimit.Store
	window time.Duration
}

func NewWindowCounter(store ratelimit.Store, window time.Duration) *WindowCounter {
	return &WindowCounter{store: store, window: window}
}

func (c *WindowCounter) Record(ctx context.Context, clientKey string, now time.Time) (*ratelimit.Record, error) {
	return c.store.IncrementAndGet(ctx, clientKey, now, c.window)
}

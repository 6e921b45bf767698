package ratelimit

import (
	"context"
	"time"

	"github.com/inkpress/gatekeeper/pkg/domain/ratelimit"
)

// BlockEscalator turns an over-threshold window into a timed block. Blocks are
// never extended while in force.
type BlockEscalator struct {
	store         ratelimit.Store
	threshold     int64
	blockDuration time.Duration
}

func NewBlockEscalator(store ratelimit.Store, threshold int64, blockDuration time.Duration) *BlockEscalator {
	return &BlockEscalator{
		store:         store,
		threshold:     threshold,
		blockDuration: blockDuration,
	}
}

// MaybeBlock reports whether this call moved the client into the blocked state.
func (e *BlockEscalator) MaybeBlock(ctx context.Context, rec *ratelimit.Record, now time.Time) (bool, error) {
	if !rec.ShouldEscalate(e.threshold) || rec.IsBlockedAt(now) {
		return false, nil
	}
	return e.store.SetBlocked(ctx, rec.ClientKey, now, now.Add(e.blockDuration))
}

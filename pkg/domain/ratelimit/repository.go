package ratelimit

import (
	"context"
	"time"
)

//go:generate mockery --name=Store --dir=. --output=./mocks --filename=store_mock.go --case=underscore --with-expecter
type Store interface {
	// Get returns the stored record or a not found error.
	Get(ctx context.Context, clientKey string) (*Record, error)
	// IncrementAndGet creates, increments or resets the record for clientKey as
	// one atomic step and returns the resulting state.
	IncrementAndGet(ctx context.Context, clientKey string, now time.Time, window time.Duration) (*Record, error)
	// SetBlocked marks the record blocked until the given instant unless a block
	// is already in force. It reports whether this call made the transition.
	SetBlocked(ctx context.Context, clientKey string, now, until time.Time) (bool, error)
	Delete(ctx context.Context, clientKey string) error
	// DeleteExpired removes every record with no active window and no active block.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

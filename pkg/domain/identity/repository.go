package identity

import (
	"context"
	"time"
)

//go:generate mockery --name=Repository --dir=. --output=./mocks --filename=identity_repository_mock.go --case=underscore --with-expecter
type Repository interface {
	// Save creates or replaces the record identified by (Kind, Key).
	Save(ctx context.Context, rec *Record) error
	// Get returns a not found error for absent and for expired records.
	Get(ctx context.Context, kind Kind, key string, now time.Time) (*Record, error)
	// Consume deletes the record only if it is unexpired and carries payload.
	Consume(ctx context.Context, kind Kind, key, payload string, now time.Time) (bool, error)
	Delete(ctx context.Context, kind Kind, key string) error
	DeleteExpired(ctx context.Context, kind Kind, now time.Time) (int64, error)
}

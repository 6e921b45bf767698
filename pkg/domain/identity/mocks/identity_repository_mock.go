package mocks

import (
	"context"
	"fmt"
	"time"

	"github.com/inkpress/gatekeeper/pkg/domain/identity"
	"github.com/stretchr/testify/mock"
)

type Repository struct {
	mock.Mock
}

func (m *Repository) Save(ctx context.Context, rec *identity.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *Repository) Get(ctx context.Context, kind identity.Kind, key string, now time.Time) (*identity.Record, error) {
	args := m.Called(ctx, kind, key, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	rec, ok := args.Get(0).(*identity.Record)
	if !ok {
		return nil, fmt.Errorf("expected *identity.Record, got %T", args.Get(0))
	}
	return rec, args.Error(1)
}

func (m *Repository) Consume(ctx context.Context, kind identity.Kind, key, payload string, now time.Time) (bool, error) {
	args := m.Called(ctx, kind, key, payload, now)
	return args.Bool(0), args.Error(1)
}

func (m *Repository) Delete(ctx context.Context, kind identity.Kind, key string) error {
	args := m.Called(ctx, kind, key)
	return args.Error(0)
}

func (m *Repository) DeleteExpired(ctx context.Context, kind identity.Kind, now time.Time) (int64, error) {
	args := m.Called(ctx, kind, now)
	n, _ := args.Get(0).(int64) //nolint:errcheck
	return n, args.Error(1)
}

package mocks

import (
	"context"
	"fmt"
	"time"

	"github.com/inkpress/gatekeeper/pkg/domain/ratelimit"
	"github.com/stretchr/testify/mock"
)

type Store struct {
	mock.Mock
}

func (m *Store) Get(ctx context.Context, clientKey string) (*ratelimit.Record, error) {
	args := m.Called(ctx, clientKey)
	return recordArg(args, 0), args.Error(1)
}

func (m *Store) IncrementAndGet(
	ctx context.Context,
	clientKey string,
	now time.Time,
	window time.Duration,
) (*ratelimit.Record, error) {
	args := m.Called(ctx, clientKey, now, window)
	return recordArg(args, 0), args.Error(1)
}

func (m *Store) SetBlocked(ctx context.Context, clientKey string, now, until time.Time) (bool, error) {
	args := m.Called(ctx, clientKey, now, until)
	return args.Bool(0), args.Error(1)
}

func (m *Store) Delete(ctx context.Context, clientKey string) error {
	args := m.Called(ctx, clientKey)
	return args.Error(0)
}

func (m *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	n, ok := args.Get(0).(int64)
	if !ok && args.Get(0) != nil {
		panic(fmt.Sprintf("expected int64, got %T", args.Get(0)))
	}
	return n, args.Error(1)
}

func recordArg(args mock.Arguments, i int) *ratelimit.Record {
	if args.Get(i) == nil {
		return nil
	}
	rec, ok := args.Get(i).(*ratelimit.Record)
	if !ok {
		panic(fmt.Sprintf("expected *ratelimit.Record, got %T", args.Get(i)))
	}
	return rec
}

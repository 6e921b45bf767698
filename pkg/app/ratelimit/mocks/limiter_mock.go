package mocks

import (
	"context"
	"fmt"
	"time"

	appRatelimit "github.com/inkpress/gatekeeper/pkg/app/ratelimit"
	"github.com/inkpress/gatekeeper/pkg/domain/ratelimit"
	"github.com/stretchr/testify/mock"
)

type Limiter struct {
	mock.Mock
}

func (m *Limiter) IsBlocked(ctx context.Context, clientKey string) bool {
	args := m.Called(ctx, clientKey)
	return args.Bool(0)
}

func (m *Limiter) RecordRequest(ctx context.Context, clientKey string) bool {
	args := m.Called(ctx, clientKey)
	return args.Bool(0)
}

func (m *Limiter) Admit(ctx context.Context, clientKey string) appRatelimit.Decision {
	args := m.Called(ctx, clientKey)
	d, ok := args.Get(0).(appRatelimit.Decision)
	if !ok {
		panic(fmt.Sprintf("expected appRatelimit.Decision, got %T", args.Get(0)))
	}
	return d
}

func (m *Limiter) Inspect(ctx context.Context, clientKey string) (*ratelimit.Record, error) {
	args := m.Called(ctx, clientKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	rec, ok := args.Get(0).(*ratelimit.Record)
	if !ok {
		return nil, fmt.Errorf("expected *ratelimit.Record, got %T", args.Get(0))
	}
	return rec, args.Error(1)
}

func (m *Limiter) Reset(ctx context.Context, clientKey string) error {
	args := m.Called(ctx, clientKey)
	return args.Error(0)
}

func (m *Limiter) Policy() ratelimit.Policy {
	args := m.Called()
	p, ok := args.Get(0).(ratelimit.Policy)
	if !ok {
		return ratelimit.DefaultPolicy()
	}
	return p
}

func (m *Limiter) Remember(clientKey string, until time.Time) {
	m.Called(clientKey, until)
}

func (m *Limiter) Forget(clientKey string) {
	m.Called(clientKey)
}

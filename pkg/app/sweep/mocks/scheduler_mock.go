package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type Scheduler struct {
	mock.Mock
}

func (m *Scheduler) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *Scheduler) RunOnce(ctx context.Context, name string) (int64, error) {
	args := m.Called(ctx, name)
	n, _ := args.Get(0).(int64) //nolint:errcheck
	return n, args.Error(1)
}

func (m *Scheduler) Jobs() []string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	names, _ := args.Get(0).([]string) //nolint:errcheck
	return names
}

func (m *Scheduler) Shutdown() {
	m.Called()
}

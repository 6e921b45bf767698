package mocks

import (
	"context"

	"github.com/inkpress/gatekeeper/pkg/infra/cache/channel"
	"github.com/inkpress/gatekeeper/pkg/infra/cache/event"
	"github.com/stretchr/testify/mock"
)

type EventPublisher struct {
	mock.Mock
}

func (m *EventPublisher) Publish(ctx context.Context, ch channel.Channel, ev event.Event) error {
	args := m.Called(ctx, ch, ev)
	return args.Error(0)
}

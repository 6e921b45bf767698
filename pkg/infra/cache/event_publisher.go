package cache

import (
	"context"

	"github.com/inkpress/gatekeeper/pkg/infra/cache/channel"
	"github.com/inkpress/gatekeeper/pkg/infra/cache/event"
)

//go:generate mockery --name=EventPublisher --dir=. --output=./mocks --filename=event_publisher_mock.go --case=underscore --with-expecter

type EventPublisher interface {
	Publish(ctx context.Context, channel channel.Channel, ev event.Event) error
}

type noopEventPublisher struct{}

// NewNoopEventPublisher is used when the instance runs without redis and has
// no peers to notify.
func NewNoopEventPublisher() EventPublisher {
	return noopEventPublisher{}
}

func (noopEventPublisher) Publish(context.Context, channel.Channel, event.Event) error {
	return nil
}

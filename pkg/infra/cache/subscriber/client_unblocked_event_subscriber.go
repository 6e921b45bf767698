package subscriber

import (
	"context"

	infraCache "github.com/inkpress/gatekeeper/pkg/infra/cache"
	"github.com/inkpress/gatekeeper/pkg/infra/cache/event"
	"github.com/sirupsen/logrus"
)

type ClientUnblockedEventSubscriber struct {
	logger *logrus.Logger
	blocks BlockCache
}

func NewClientUnblockedEventSubscriber(
	logger *logrus.Logger,
	blocks BlockCache,
) infraCache.EventSubscriber[event.ClientUnblockedEvent] {
	return &ClientUnblockedEventSubscriber{
		logger: logger,
		blocks: blocks,
	}
}

func (s ClientUnblockedEventSubscriber) OnEvent(ctx context.Context, evt event.ClientUnblockedEvent) error {
	s.logger.WithField("client_key", evt.ClientKey).Debug("evicting client from local block cache")
	s.blocks.Forget(evt.ClientKey)
	return nil
}

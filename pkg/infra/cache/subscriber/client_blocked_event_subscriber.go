package subscriber

import (
	"context"
	"time"

	infraCache "github.com/inkpress/gatekeeper/pkg/infra/cache"
	"github.com/inkpress/gatekeeper/pkg/infra/cache/event"
	"github.com/sirupsen/logrus"
)

type ClientBlockedEventSubscriber struct {
	logger *logrus.Logger
	blocks BlockCache
	now    func() time.Time
}

func NewClientBlockedEventSubscriber(
	logger *logrus.Logger,
	blocks BlockCache,
	now func() time.Time,
) infraCache.EventSubscriber[event.ClientBlockedEvent] {
	if now == nil {
		now = time.Now
	}
	return &ClientBlockedEventSubscriber{
		logger: logger,
		blocks: blocks,
		now:    now,
	}
}

func (s ClientBlockedEventSubscriber) OnEvent(ctx context.Context, evt event.ClientBlockedEvent) error {
	if !s.now().Before(evt.BlockUntil) {
		return nil
	}
	s.logger.WithFields(logrus.Fields{
		"client_key":  evt.ClientKey,
		"block_until": evt.BlockUntil,
	}).Debug("caching peer block locally")
	s.blocks.Remember(evt.ClientKey, evt.BlockUntil)
	return nil
}

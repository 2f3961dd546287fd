package gateway

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveshop/go/internal/bus"
	"github.com/mcdev12/liveshop/go/internal/livestream/events"
)

// EventConsumer subscribes to the UI channels and hands every message to the connection manager.
type EventConsumer struct {
	connectionManager *ConnectionManager
	bus               bus.Bus
	sub               bus.Subscription
}

func NewEventConsumer(cm *ConnectionManager, b bus.Bus) *EventConsumer {
	return &EventConsumer{connectionManager: cm, bus: b}
}

// Start subscribes to the UI channels. Delivery continues until Stop or ctx is done.
func (ec *EventConsumer) Start(ctx context.Context) error {
	channels := make([]string, len(events.UIChannels))
	for i, ch := range events.UIChannels {
		channels[i] = string(ch)
	}

	sub, err := ec.bus.Subscribe(ctx, channels, func(_ context.Context, msg bus.Message) {
		log.Debug().
			Str("message_id", msg.ID).
			Str("channel", msg.Channel).
			Bool("persisted", msg.Persisted).
			Msg("processing bus event")
		ec.connectionManager.Broadcast(toStreamEvent(msg, false))
	})
	if err != nil {
		return fmt.Errorf("subscribe to ui channels: %w", err)
	}
	ec.sub = sub

	log.Info().Strs("channels", channels).Msg("event consumer started")
	return nil
}

func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping event consumer")
	if ec.sub == nil {
		return nil
	}
	return ec.sub.Unsubscribe()
}

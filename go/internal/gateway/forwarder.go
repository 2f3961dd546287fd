package gateway

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveshop/go/internal/bus"
	"github.com/mcdev12/liveshop/go/internal/livestream/events"
)

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any, persist bool) error
}

// Forwarder publishes client messages onto the bus under the client's user id.
type Forwarder struct {
	publisher Publisher
}

func NewForwarder(p Publisher) *Forwarder {
	return &Forwarder{publisher: p}
}

// Forward validates msg and publishes it. Votes and control commands are live
// only; chat is persisted so late joiners see the conversation.
func (f *Forwarder) Forward(ctx context.Context, userID string, msg ClientMessage) error {
	channel := events.Channel(msg.Channel)
	persist, ok := upstream[channel]
	if !ok {
		return fmt.Errorf("%w: clients may not publish on %s", events.ErrUnknownChannel, msg.Channel)
	}
	if len(msg.Data) == 0 {
		return fmt.Errorf("%w: empty data", events.ErrInvalidPayload)
	}
	if _, err := events.Decode(channel, msg.Data); err != nil {
		return err
	}

	if err := f.publisher.Publish(bus.WithPublisher(ctx, userID), msg.Channel, msg.Data, persist); err != nil {
		return fmt.Errorf("publish client message: %w", err)
	}

	log.Debug().
		Str("user_id", userID).
		Str("channel", msg.Channel).
		Bool("persisted", persist).
		Msg("forwarded client message")
	return nil
}

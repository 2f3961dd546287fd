package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveshop/go/internal/bus"
	"github.com/mcdev12/liveshop/go/internal/livestream/events"
)

// subscribe wires the bus into the orchestrator. Control commands are queued for
// the Run goroutine; poll traffic goes straight to the aggregator, which is safe
// for concurrent use.
func (o *Orchestrator) subscribe(ctx context.Context) (bus.Subscription, error) {
	channels := []string{
		string(events.ChannelControl),
		string(events.ChannelPollDeclaration),
		string(events.ChannelPollVotes),
		string(events.ChannelPollResults),
	}

	sub, err := o.bus.Subscribe(ctx, channels, func(ctx context.Context, msg bus.Message) {
		if events.Channel(msg.Channel) != events.ChannelControl {
			o.processMessage(ctx, msg)
			return
		}
		select {
		case o.msgCh <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to bus: %w", err)
	}

	log.Info().
		Str("instance", o.instanceID).
		Strs("channels", channels).
		Msg("subscribed to bus")
	return sub, nil
}

// processMessage decodes one bus message and logs any handling error.
func (o *Orchestrator) processMessage(ctx context.Context, msg bus.Message) {
	log.Debug().
		Str("channel", msg.Channel).
		Str("message_id", msg.ID).
		Str("publisher", msg.PublisherID).
		Msg("processing bus message")

	if err := o.HandleMessage(ctx, events.Channel(msg.Channel), msg.Data); err != nil {
		log.Warn().
			Err(err).
			Str("instance", o.instanceID).
			Str("channel", msg.Channel).
			Msg("failed to handle message")
	}
}

// HandleMessage routes a raw channel message to its handler.
func (o *Orchestrator) HandleMessage(ctx context.Context, channel events.Channel, data []byte) error {
	in, err := events.Decode(channel, data)
	if err != nil {
		return err
	}

	switch m := in.(type) {
	case events.ControlCommand:
		return o.HandleControl(ctx, m)
	case events.PollDeclaration:
		return o.aggregator.HandleDeclaration(ctx, m)
	case events.Vote:
		return o.aggregator.HandleVote(ctx, m)
	case events.PollCloseSignal:
		return o.aggregator.HandleClose(ctx, m)
	case events.PollResults:
		// Our own aggregated output.
		return nil
	default:
		log.Debug().Str("channel", string(channel)).Msgf("ignoring %T", m)
		return nil
	}
}

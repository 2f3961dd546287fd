package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/liveshop/go/internal/bus"
	"github.com/mcdev12/liveshop/go/internal/livestream/events"
)

// StreamEvent is the frame pushed to widgets for every bus message.
type StreamEvent struct {
	ID        string          `json:"id"`
	Channel   string          `json:"channel"`
	Publisher string          `json:"publisher,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	History   bool            `json:"history,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// ErrorEvent is sent to a single connection when one of its messages is rejected.
type ErrorEvent struct {
	Error string `json:"error"`
}

// ClientMessage is what widgets send upstream.
type ClientMessage struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// upstream lists the channels clients may publish on and whether each is persisted.
var upstream = map[events.Channel]bool{
	events.ChannelPollVotes: false,
	events.ChannelControl:   false,
	events.ChannelChat:      true,
}

func toStreamEvent(msg bus.Message, history bool) *StreamEvent {
	return &StreamEvent{
		ID:        msg.ID,
		Channel:   msg.Channel,
		Publisher: msg.PublisherID,
		Timestamp: msg.Timestamp,
		History:   history,
		Data:      json.RawMessage(msg.Data),
	}
}

// parseChannels validates a comma separated channel list. An empty list selects every UI channel.
func parseChannels(raw []string) (map[string]bool, error) {
	known := make(map[string]bool, len(events.UIChannels))
	for _, ch := range events.UIChannels {
		known[string(ch)] = true
	}
	if len(raw) == 0 {
		return known, nil
	}

	selected := make(map[string]bool, len(raw))
	for _, ch := range raw {
		if !known[ch] {
			return nil, fmt.Errorf("%w: %s", events.ErrUnknownChannel, ch)
		}
		selected[ch] = true
	}
	return selected, nil
}

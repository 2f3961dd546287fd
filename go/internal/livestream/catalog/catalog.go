package catalog

import (
	"encoding/json"

	"github.com/mcdev12/liveshop/go/internal/livestream/events"
)

// ScriptEvent is one timed action of the stream timeline.
type ScriptEvent struct {
	TimeSinceStartMs int64           `json:"timeSinceStartMs"`
	Persist          bool            `json:"persist"`
	Channel          events.Channel  `json:"channel"`
	Payload          json.RawMessage `json:"payload"`
	Repeat           int             `json:"repeat,omitempty"`
}

// Product is a showcase item shown between StartTimeMs and EndTimeMs.
// Payload is the full record as authored and is what widgets receive.
type Product struct {
	ID          string
	StartTimeMs int64
	EndTimeMs   int64
	Payload     json.RawMessage
}

// Catalog holds every static event source of the demo.
type Catalog struct {
	Chat       []ScriptEvent
	Commentary []ScriptEvent
	Polls      []ScriptEvent
	Reactions  []ScriptEvent
	Products   []Product

	// OnDemand scripts run outside the main timeline, keyed by script name.
	OnDemand map[string][]ScriptEvent
}

// Sources returns the timeline sources in merge order.
func (c *Catalog) Sources() [][]ScriptEvent {
	return [][]ScriptEvent{c.Chat, c.Commentary, c.Polls, c.Reactions}
}

// FindPollDeclaration returns the scripted declaration of the given poll.
func (c *Catalog) FindPollDeclaration(pollID int) (events.PollDeclaration, bool) {
	for _, ev := range c.Polls {
		if ev.Channel != events.ChannelPollDeclaration {
			continue
		}
		var decl events.PollDeclaration
		if err := json.Unmarshal(ev.Payload, &decl); err != nil {
			continue
		}
		if decl.ID == pollID {
			return decl, true
		}
	}
	return events.PollDeclaration{}, false
}

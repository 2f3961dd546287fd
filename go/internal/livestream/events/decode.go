package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownChannel = errors.New("unknown channel")
	ErrUnknownControl = errors.New("unknown control type")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Inbound is a message decoded at the bus boundary. The concrete type is one of
// ControlCommand, PollDeclaration, Vote, PollCloseSignal, PollResults, UIReset,
// ClientStatus or ChatMessage.
type Inbound interface {
	inbound()
}

func (ControlCommand) inbound()  {}
func (PollDeclaration) inbound() {}
func (Vote) inbound()            {}
func (PollCloseSignal) inbound() {}
func (PollResults) inbound()     {}
func (UIReset) inbound()         {}
func (ClientStatus) inbound()    {}
func (ChatMessage) inbound()     {}

// Decode turns raw channel data into its typed message.
func Decode(channel Channel, data []byte) (Inbound, error) {
	switch channel {
	case ChannelControl:
		return decodeControl(data)

	case ChannelPollDeclaration:
		var d PollDeclaration
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal poll declaration: %w", err)
		}
		return d, nil

	case ChannelPollVotes:
		var v Vote
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("unmarshal vote: %w", err)
		}
		return v, nil

	case ChannelPollResults:
		return decodeResults(data)

	case ChannelUIReset:
		var r UIReset
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("unmarshal ui reset: %w", err)
		}
		return r, nil

	case ChannelClientStatus:
		var s struct {
			Type   StatusType      `json:"type"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("unmarshal client status: %w", err)
		}
		return ClientStatus{Type: s.Type, Params: s.Params}, nil

	case ChannelChat:
		var c ChatMessage
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("unmarshal chat message: %w", err)
		}
		return c, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
}

func decodeControl(data []byte) (ControlCommand, error) {
	var cmd ControlCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return ControlCommand{}, fmt.Errorf("unmarshal control command: %w", err)
	}

	switch cmd.Type {
	case ControlStartStream, ControlEndStream, ControlBotChat:
	case ControlSeek:
		if cmd.Params.PlaybackTime == nil || *cmd.Params.PlaybackTime < 0 {
			return ControlCommand{}, fmt.Errorf("%w: SEEK requires a non-negative playbackTime", ErrInvalidPayload)
		}
	case ControlOnDemandScript:
		if cmd.Params.ScriptName == "" && cmd.Params.Emoji == "" {
			return ControlCommand{}, fmt.Errorf("%w: ON_DEMAND_SCRIPT requires scriptName or emoji", ErrInvalidPayload)
		}
	default:
		return ControlCommand{}, fmt.Errorf("%w: %q", ErrUnknownControl, cmd.Type)
	}
	return cmd, nil
}

// decodeResults separates close signals from the aggregator's own results.
// Results always carry an options array; signals never do.
func decodeResults(data []byte) (Inbound, error) {
	var shape struct {
		Options json.RawMessage `json:"options"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("unmarshal poll results: %w", err)
	}

	if len(shape.Options) > 0 && string(shape.Options) != "null" {
		var r PollResults
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("unmarshal poll results: %w", err)
		}
		return r, nil
	}

	var sig PollCloseSignal
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, fmt.Errorf("unmarshal poll close signal: %w", err)
	}
	return sig, nil
}

// PublisherOf returns the user field of a scripted payload, if it has one.
func PublisherOf(payload json.RawMessage) string {
	var p struct {
		User string `json:"user"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.User
}

package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveshop/go/internal/bus"
	"github.com/mcdev12/liveshop/go/internal/livestream/events"
)

const botUser = "bot-33"

// HandleControl applies a control command to the timeline.
func (o *Orchestrator) HandleControl(ctx context.Context, cmd events.ControlCommand) error {
	log.Info().
		Str("instance", o.instanceID).
		Str("control_type", string(cmd.Type)).
		Msg("handling control command")

	var err error
	switch cmd.Type {
	case events.ControlStartStream:
		err = o.handleStartStream(ctx)
	case events.ControlSeek:
		if cmd.Params.PlaybackTime == nil {
			return fmt.Errorf("%w: SEEK without playbackTime", events.ErrInvalidPayload)
		}
		err = o.handleSeek(ctx, *cmd.Params.PlaybackTime)
	case events.ControlEndStream:
		err = o.handleEndStream(ctx)
	case events.ControlBotChat:
		err = o.handleBotChat(ctx)
	case events.ControlOnDemandScript:
		err = o.handleOnDemand(ctx, cmd.Params)
	default:
		err = fmt.Errorf("%w: %q", events.ErrUnknownControl, cmd.Type)
	}
	if err == nil {
		o.metrics.IncControlCommands(string(cmd.Type))
	}
	return err
}

func (o *Orchestrator) handleStartStream(ctx context.Context) error {
	o.mu.Lock()
	o.state = PlaybackState{ChatEnabled: true}
	o.lastProcessedMs = -1
	o.watermark = 0
	o.rebuild()
	o.mu.Unlock()

	o.aggregator.Reset()
	o.publishStatus(ctx, events.StatusStartStream, struct{}{})

	o.mu.Lock()
	o.startLocked()
	o.state.Running = true
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) handleSeek(ctx context.Context, targetMs int64) error {
	o.mu.Lock()
	if !o.state.Running {
		o.mu.Unlock()
		return fmt.Errorf("seek to %d: %w", targetMs, ErrNotRunning)
	}
	o.state.CurrentTimeMs = targetMs
	cursor := o.script.CursorAt(targetMs)
	if o.config.StrictNoReplay && cursor < o.watermark {
		cursor = o.watermark
	}
	o.state.ScriptCursor = cursor
	o.lastProcessedMs = -1
	o.mu.Unlock()

	log.Info().
		Str("instance", o.instanceID).
		Int64("playback_time_ms", targetMs).
		Int("script_cursor", cursor).
		Msg("seeked timeline")

	o.publishStatus(ctx, events.StatusSeek, events.SeekStatus{PlaybackTime: targetMs})
	return nil
}

// handleEndStream jumps to the final event and resets every widget. It also
// applies when the loop is already stopped.
func (o *Orchestrator) handleEndStream(ctx context.Context) error {
	o.mu.Lock()
	o.stopLocked()
	o.state.CurrentTimeMs = o.lastEventTimeMs
	o.state.ScriptCursor = o.script.CursorAt(o.lastEventTimeMs)
	o.mu.Unlock()

	o.aggregator.Reset()
	o.publish(ctx, events.ChannelUIReset, events.UIReset{
		ResetLiveStreamPoll:  true,
		ResetPollsWidget:     true,
		ResetCommentary:      true,
		ResetChat:            true,
		ResetProductShowcase: true,
	}, false)
	o.publishStatus(ctx, events.StatusEndStream, struct{}{})
	return nil
}

func (o *Orchestrator) handleBotChat(ctx context.Context) error {
	o.mu.Lock()
	if !o.state.Running {
		o.mu.Unlock()
		return fmt.Errorf("bot chat: %w", ErrNotRunning)
	}
	text := "Messages Restarted"
	if o.state.ChatEnabled {
		text = "Messages Paused"
	}
	o.state.ChatEnabled = !o.state.ChatEnabled
	o.mu.Unlock()

	o.publish(bus.WithPublisher(ctx, botUser), events.ChannelChat, events.ChatMessage{User: botUser, Text: text}, false)
	return nil
}

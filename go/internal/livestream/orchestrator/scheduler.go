package orchestrator

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveshop/go/internal/bus"
	"github.com/mcdev12/liveshop/go/internal/livestream/catalog"
	"github.com/mcdev12/liveshop/go/internal/livestream/events"
)

// tick advances the timeline by one interval: emit due events, broadcast the
// playback status, advance the clock and wrap around after the last event.
func (o *Orchestrator) tick(ctx context.Context) {
	o.mu.Lock()
	if !o.state.Running {
		o.mu.Unlock()
		return
	}
	if o.state.CurrentTimeMs == o.lastProcessedMs {
		o.mu.Unlock()
		log.Debug().
			Str("instance", o.instanceID).
			Int64("current_time_ms", o.state.CurrentTimeMs).
			Msg("time unchanged since last tick, skipping")
		return
	}
	o.lastProcessedMs = o.state.CurrentTimeMs

	var due []catalog.ScriptEvent
	for o.state.ScriptCursor < len(o.script) && o.script[o.state.ScriptCursor].TimeSinceStartMs <= o.state.CurrentTimeMs {
		ev := o.script[o.state.ScriptCursor]
		if ev.Channel != events.ChannelChat || o.state.ChatEnabled {
			due = append(due, ev)
		}
		o.state.ScriptCursor++
	}
	if o.state.ScriptCursor > o.watermark {
		o.watermark = o.state.ScriptCursor
	}

	status := events.PlaybackStatus{
		PlaybackTime: o.state.CurrentTimeMs,
		VideoStarted: o.state.CurrentTimeMs == 0,
		VideoEnded:   o.state.CurrentTimeMs >= o.lastEventTimeMs,
	}

	o.state.CurrentTimeMs += o.config.TickInterval.Milliseconds()

	wrapped := false
	if o.state.CurrentTimeMs > o.lastEventTimeMs {
		wrapped = true
		o.state.CurrentTimeMs = 0
		o.state.ScriptCursor = 0
		o.state.LoopCount++
		o.watermark = 0
		o.lastProcessedMs = -1
		o.rebuild()

		if o.config.MaxLoops > 0 && o.state.LoopCount >= o.config.MaxLoops {
			log.Info().
				Str("instance", o.instanceID).
				Int("loop_count", o.state.LoopCount).
				Msg("loop limit reached")
			o.stopLocked()
		}
	}
	loopCount := o.state.LoopCount
	playbackTime := o.state.CurrentTimeMs
	o.mu.Unlock()

	for _, ev := range due {
		o.emit(ctx, ev)
	}
	o.publishStatus(ctx, events.StatusPeriodic, status)

	o.metrics.SetPlaybackTime(playbackTime)
	if wrapped {
		o.aggregator.Reset()
		o.metrics.IncLoops()
		log.Info().
			Str("instance", o.instanceID).
			Int("loop_count", loopCount).
			Msg("timeline wrapped")
	}
}

// emit publishes one scripted event. Scripted close signals on the results
// channel go straight to the aggregator so the UI only sees aggregated results.
func (o *Orchestrator) emit(ctx context.Context, ev catalog.ScriptEvent) {
	if ev.Channel == events.ChannelPollResults {
		in, err := events.Decode(ev.Channel, ev.Payload)
		if err != nil {
			log.Error().Err(err).Str("instance", o.instanceID).Msg("invalid scripted poll results event")
			return
		}
		if sig, ok := in.(events.PollCloseSignal); ok {
			if err := o.aggregator.HandleClose(ctx, sig); err != nil {
				log.Warn().Err(err).Int("poll_id", sig.ID).Msg("failed to close poll")
			}
			return
		}
	}

	if user := events.PublisherOf(ev.Payload); user != "" {
		ctx = bus.WithPublisher(ctx, user)
	}
	o.publish(ctx, ev.Channel, ev.Payload, ev.Persist)
	o.metrics.IncEventsEmitted(string(ev.Channel))
}

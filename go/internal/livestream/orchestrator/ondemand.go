package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveshop/go/internal/bus"
	"github.com/mcdev12/liveshop/go/internal/livestream/catalog"
	"github.com/mcdev12/liveshop/go/internal/livestream/events"
)

const emojiScriptDelay = 30 * time.Second

type onDemandMode int

const (
	asAuthored onDemandMode = iota
	expandAndShuffle
)

type onDemandScript struct {
	name  string
	mode  onDemandMode
	delay time.Duration
}

var scriptsByName = map[string]onDemandScript{
	"fan-excitement":  {name: "fan-excitement", mode: expandAndShuffle},
	"fan-frustration": {name: "fan-frustration", mode: expandAndShuffle},
	"push-goal":       {name: "push-goal", mode: asAuthored},
	"push-5mins":      {name: "push-5mins", mode: asAuthored},
}

var scriptsByEmoji = map[string]onDemandScript{
	"😡": {name: "angry", mode: asAuthored, delay: emojiScriptDelay},
	"🎉": {name: "cheer", mode: asAuthored, delay: emojiScriptDelay},
}

func resolveOnDemand(params events.ControlParams) (onDemandScript, bool) {
	if s, ok := scriptsByName[params.ScriptName]; ok {
		return s, true
	}
	if s, ok := scriptsByEmoji[params.Emoji]; ok {
		return s, true
	}
	return onDemandScript{}, false
}

// handleOnDemand starts an auxiliary script outside the main timeline. Playback state is untouched.
func (o *Orchestrator) handleOnDemand(ctx context.Context, params events.ControlParams) error {
	o.mu.Lock()
	running := o.state.Running
	o.mu.Unlock()
	if !running {
		return fmt.Errorf("on-demand script: %w", ErrNotRunning)
	}

	sd, ok := resolveOnDemand(params)
	if !ok {
		log.Warn().
			Str("script_name", params.ScriptName).
			Str("emoji", params.Emoji).
			Msg("unknown on-demand script")
		return fmt.Errorf("%w: name=%q emoji=%q", ErrUnknownScript, params.ScriptName, params.Emoji)
	}
	evs, ok := o.catalog.OnDemand[sd.name]
	if !ok {
		return fmt.Errorf("%w: %q not in catalog", ErrUnknownScript, sd.name)
	}
	if sd.mode == expandAndShuffle {
		evs = o.builder.Shuffle(o.builder.Expand(evs))
	}

	log.Info().
		Str("instance", o.instanceID).
		Str("script", sd.name).
		Int("events", len(evs)).
		Dur("delay", sd.delay).
		Msg("running on-demand script")

	o.onDemand.Add(1)
	go func() {
		defer o.onDemand.Done()
		o.runOnDemand(ctx, evs, sd.delay)
	}()
	return nil
}

// runOnDemand publishes evs in order, waiting delay after each one.
func (o *Orchestrator) runOnDemand(ctx context.Context, evs []catalog.ScriptEvent, delay time.Duration) {
	for _, ev := range evs {
		pubCtx := ctx
		if user := events.PublisherOf(ev.Payload); user != "" {
			pubCtx = bus.WithPublisher(ctx, user)
		}
		o.publish(pubCtx, ev.Channel, ev.Payload, ev.Persist)

		if delay <= 0 {
			continue
		}
		select {
		case <-o.clock.After(delay):
		case <-ctx.Done():
			log.Debug().Str("instance", o.instanceID).Msg("on-demand script cancelled")
			return
		}
	}
}

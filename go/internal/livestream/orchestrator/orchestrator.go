package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveshop/go/internal/bus"
	"github.com/mcdev12/liveshop/go/internal/livestream/catalog"
	"github.com/mcdev12/liveshop/go/internal/livestream/events"
	"github.com/mcdev12/liveshop/go/internal/livestream/poll"
	"github.com/mcdev12/liveshop/go/internal/livestream/script"
	"github.com/mcdev12/liveshop/go/internal/metrics"
)

const (
	DefaultTickInterval = time.Second
	DefaultMaxLoops     = 5

	messageChannelBufferSize = 256
)

var (
	ErrNotRunning    = errors.New("timeline is not running")
	ErrUnknownScript = errors.New("unknown on-demand script")
)

// Bus is what the orchestrator needs from the transport.
type Bus interface {
	Publish(ctx context.Context, channel string, payload any, persist bool) error
	Subscribe(ctx context.Context, channels []string, handler bus.Handler) (bus.Subscription, error)
}

// Config controls the timeline loop.
type Config struct {
	TickInterval time.Duration
	// MaxLoops stops the loop after that many wrap-arounds. Zero loops forever.
	MaxLoops int
	// StrictNoReplay keeps backward seeks from re-emitting events already sent in this loop.
	StrictNoReplay bool
}

func DefaultConfig() Config {
	return Config{TickInterval: DefaultTickInterval}
}

// PlaybackState is the position of the timeline.
type PlaybackState struct {
	CurrentTimeMs int64 `json:"currentTimeMs"`
	ScriptCursor  int   `json:"scriptCursor"`
	LoopCount     int   `json:"loopCount"`
	ChatEnabled   bool  `json:"chatEnabled"`
	Running       bool  `json:"running"`
}

// Snapshot is a read-only view of the orchestrator for status endpoints.
type Snapshot struct {
	PlaybackState
	LastEventTimeMs int64 `json:"lastEventTimeMs"`
	ScriptLength    int   `json:"scriptLength"`
	OpenPolls       int   `json:"openPolls"`
}

// Orchestrator replays the built script against a ticking clock and reacts to
// control commands arriving on the bus.
type Orchestrator struct {
	bus        Bus
	catalog    *catalog.Catalog
	builder    *script.Builder
	aggregator *poll.Aggregator
	clock      clockwork.Clock
	metrics    *metrics.Metrics
	config     Config
	instanceID string

	mu              sync.Mutex
	state           PlaybackState
	script          script.BuiltScript
	lastEventTimeMs int64
	lastProcessedMs int64
	watermark       int // first index not yet emitted in this loop
	ticker          clockwork.Ticker

	msgCh    chan bus.Message
	wake     chan struct{} // signalled when the ticker changes so Run re-reads it
	onDemand sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithClock(c clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates a stopped orchestrator with a freshly built script.
func NewOrchestrator(b Bus, c *catalog.Catalog, builder *script.Builder, agg *poll.Aggregator, cfg Config, opts ...Option) (*Orchestrator, error) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}

	o := &Orchestrator{
		bus:             b,
		catalog:         c,
		builder:         builder,
		aggregator:      agg,
		clock:           clockwork.NewRealClock(),
		config:          cfg,
		instanceID:      uuid.New().String()[:8], // short ID for logging
		lastProcessedMs: -1,
		msgCh:           make(chan bus.Message, messageChannelBufferSize),
		wake:            make(chan struct{}, 1),
		state:           PlaybackState{ChatEnabled: true},
	}
	for _, opt := range opts {
		opt(o)
	}

	built, err := builder.Build(c)
	if err != nil {
		return nil, fmt.Errorf("build script: %w", err)
	}
	o.setScript(built)
	return o, nil
}

// setScript swaps the built script. Caller holds o.mu or owns o exclusively.
func (o *Orchestrator) setScript(s script.BuiltScript) {
	o.script = s
	o.lastEventTimeMs = s.LastEventTime()
}

// rebuild builds a new script, keeping the current one if the build fails. Caller holds o.mu.
func (o *Orchestrator) rebuild() {
	built, err := o.builder.Build(o.catalog)
	if err != nil {
		log.Error().Err(err).Str("instance", o.instanceID).Msg("failed to rebuild script, keeping previous")
		return
	}
	o.setScript(built)
}

// Snapshot returns the current playback state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	s := Snapshot{
		PlaybackState:   o.state,
		LastEventTimeMs: o.lastEventTimeMs,
		ScriptLength:    len(o.script),
	}
	o.mu.Unlock()
	if o.aggregator != nil {
		s.OpenPolls = o.aggregator.OpenPolls()
	}
	return s
}

// StartLoop begins ticking from the current position. It is a no-op when already running.
func (o *Orchestrator) StartLoop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startLocked()
}

func (o *Orchestrator) startLocked() {
	if o.ticker != nil {
		return
	}
	o.ticker = o.clock.NewTicker(o.config.TickInterval)
	o.state.Running = true
	o.signalWake()
	log.Info().
		Str("instance", o.instanceID).
		Dur("tick_interval", o.config.TickInterval).
		Msg("starting loop")
}

// StopLoop stops ticking. Delayed synthetic votes and on-demand scripts already in flight still run.
func (o *Orchestrator) StopLoop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
}

func (o *Orchestrator) stopLocked() {
	o.state.Running = false
	if o.ticker == nil {
		return
	}
	o.ticker.Stop()
	o.ticker = nil
	o.signalWake()
	log.Info().Str("instance", o.instanceID).Msg("stopping loop")
}

func (o *Orchestrator) signalWake() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) tickChan() <-chan time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ticker == nil {
		return nil
	}
	return o.ticker.Chan()
}

// Run subscribes to the bus and drives the timeline until ctx is cancelled.
// Control commands and ticks are handled on this goroutine only.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().Str("instance", o.instanceID).Msg("orchestrator started")

	sub, err := o.subscribe(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("instance", o.instanceID).Msg("failed to unsubscribe")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", o.instanceID).Msg("orchestrator shutdown requested")
			o.StopLoop()
			o.onDemand.Wait()
			return nil
		case msg := <-o.msgCh:
			o.processMessage(ctx, msg)
		case <-o.wake:
		case <-o.tickChan():
			o.tick(ctx)
		}
	}
}

// publish sends one message, logging and counting failures. It never returns an error
// so a failed publish cannot stop the loop.
func (o *Orchestrator) publish(ctx context.Context, channel events.Channel, payload any, persist bool) {
	if err := o.bus.Publish(ctx, string(channel), payload, persist); err != nil {
		o.metrics.IncPublishFailures(string(channel))
		log.Error().
			Err(err).
			Str("instance", o.instanceID).
			Str("channel", string(channel)).
			Msg("error publishing message")
	}
}

func (o *Orchestrator) publishStatus(ctx context.Context, t events.StatusType, params any) {
	o.publish(ctx, events.ChannelClientStatus, events.ClientStatus{Type: t, Params: params}, false)
}

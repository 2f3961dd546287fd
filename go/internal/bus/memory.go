package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBus is an in-process Bus. Each subscription is served by its own
// goroutine, so handlers may publish without deadlocking.
type MemoryBus struct {
	mu      sync.RWMutex
	subs    map[string]map[*memorySubscription]struct{}
	history map[string][]Message
	maxMsgs int
	closed  bool
}

// NewMemoryBus creates a MemoryBus keeping at most maxHistory persisted
// messages per channel. Zero or less keeps everything.
func NewMemoryBus(maxHistory int) *MemoryBus {
	return &MemoryBus{
		subs:    make(map[string]map[*memorySubscription]struct{}),
		history: make(map[string][]Message),
		maxMsgs: maxHistory,
	}
}

// Publish implements Bus.Publish.
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload any, persist bool) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	msg := Message{
		ID:          uuid.New().String(),
		Channel:     channel,
		Data:        data,
		Persisted:   persist,
		PublisherID: PublisherFrom(ctx),
		Timestamp:   time.Now(),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if persist {
		h := append(b.history[channel], msg)
		if b.maxMsgs > 0 && len(h) > b.maxMsgs {
			h = h[len(h)-b.maxMsgs:]
		}
		b.history[channel] = h
	}
	targets := make([]*memorySubscription, 0, len(b.subs[channel]))
	for s := range b.subs[channel] {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		s.enqueue(msg)
	}
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *MemoryBus) Subscribe(ctx context.Context, channels []string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	s := &memorySubscription{
		bus:      b,
		channels: channels,
		handler:  handler,
		ctx:      ctx,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, ch := range channels {
		if b.subs[ch] == nil {
			b.subs[ch] = make(map[*memorySubscription]struct{})
		}
		b.subs[ch][s] = struct{}{}
	}
	go s.run()
	return s, nil
}

// History implements Bus.History.
func (b *MemoryBus) History(ctx context.Context, channel string, limit int) ([]Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	h := b.history[channel]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]Message, len(h))
	copy(out, h)
	return out, nil
}

// Close stops every subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*memorySubscription
	seen := make(map[*memorySubscription]struct{})
	for _, set := range b.subs {
		for s := range set {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				all = append(all, s)
			}
		}
	}
	b.subs = make(map[string]map[*memorySubscription]struct{})
	b.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
	return nil
}

func (b *MemoryBus) remove(s *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range s.channels {
		delete(b.subs[ch], s)
		if len(b.subs[ch]) == 0 {
			delete(b.subs, ch)
		}
	}
}

type memorySubscription struct {
	bus      *MemoryBus
	channels []string
	handler  Handler
	ctx      context.Context

	mu     sync.Mutex
	queue  []Message
	notify chan struct{}

	once sync.Once
	done chan struct{}
}

func (s *memorySubscription) enqueue(msg Message) {
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *memorySubscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			s.Unsubscribe()
			return
		case <-s.notify:
		}

		s.mu.Lock()
		pending := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, msg := range pending {
			select {
			case <-s.done:
				return
			default:
			}
			s.handler(s.ctx, msg)
		}
	}
}

func (s *memorySubscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Unsubscribe implements Subscription.
func (s *memorySubscription) Unsubscribe() error {
	s.bus.remove(s)
	s.stop()
	return nil
}

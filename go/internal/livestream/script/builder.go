package script

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/mcdev12/liveshop/go/internal/livestream/catalog"
	"github.com/mcdev12/liveshop/go/internal/livestream/events"
)

const (
	// Repeated occurrences are spaced by a delay drawn from [minRepeatDelayMs, minRepeatDelayMs+repeatDelaySpreadMs).
	minRepeatDelayMs    = 500
	repeatDelaySpreadMs = 2000
)

// Rand is the random source used for jitter and shuffling.
type Rand interface {
	Intn(n int) int
}

// NewRand returns a time-seeded Rand that is safe for concurrent use.
func NewRand() Rand {
	return &lockedRand{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// BuiltScript is the merged timeline, sorted by time.
type BuiltScript []catalog.ScriptEvent

// LastEventTime is the time of the final scripted event, or 0 for an empty script.
func (s BuiltScript) LastEventTime() int64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].TimeSinceStartMs
}

// CursorAt returns the index of the first event at or after ms, or len(s) if none.
func (s BuiltScript) CursorAt(ms int64) int {
	return sort.Search(len(s), func(i int) bool {
		return s[i].TimeSinceStartMs >= ms
	})
}

// Builder merges catalog sources into a timeline.
type Builder struct {
	rand           Rand
	productChannel events.Channel
}

// NewBuilder creates a Builder. Pass a seeded Rand for deterministic jitter.
func NewBuilder(r Rand) *Builder {
	if r == nil {
		r = NewRand()
	}
	return &Builder{
		rand:           r,
		productChannel: events.ChannelMatchStats,
	}
}

// Build merges every timeline source of the catalog, including the derived product events.
func (b *Builder) Build(c *catalog.Catalog) (BuiltScript, error) {
	productEvents, err := ProductEvents(c.Products, b.productChannel)
	if err != nil {
		return nil, err
	}
	sources := append(c.Sources(), productEvents)
	return b.Merge(sources...), nil
}

// Merge concatenates sources in order, expands repeats and stable-sorts by time.
func (b *Builder) Merge(sources ...[]catalog.ScriptEvent) BuiltScript {
	total := 0
	for _, src := range sources {
		total += len(src)
	}
	merged := make([]catalog.ScriptEvent, 0, total)
	for _, src := range sources {
		merged = append(merged, src...)
	}

	expanded := b.Expand(merged)
	sort.SliceStable(expanded, func(i, j int) bool {
		return expanded[i].TimeSinceStartMs < expanded[j].TimeSinceStartMs
	})
	return BuiltScript(expanded)
}

// Expand replaces every event with Repeat > 1 by Repeat occurrences, each marked Repeat = 1.
// The first occurrence keeps the original time; later ones follow the previous by a random delay.
func (b *Builder) Expand(evs []catalog.ScriptEvent) []catalog.ScriptEvent {
	out := make([]catalog.ScriptEvent, 0, len(evs))
	for _, ev := range evs {
		if ev.Repeat <= 1 {
			out = append(out, ev)
			continue
		}

		at := ev.TimeSinceStartMs
		for i := 0; i < ev.Repeat; i++ {
			if i > 0 {
				at += int64(minRepeatDelayMs + b.rand.Intn(repeatDelaySpreadMs))
			}
			occurrence := ev
			occurrence.TimeSinceStartMs = at
			occurrence.Repeat = 1
			out = append(out, occurrence)
		}
	}
	return out
}

// Shuffle returns a Fisher-Yates shuffled copy of evs.
func (b *Builder) Shuffle(evs []catalog.ScriptEvent) []catalog.ScriptEvent {
	out := make([]catalog.ScriptEvent, len(evs))
	copy(out, evs)
	for i := len(out) - 1; i > 0; i-- {
		j := b.rand.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ProductEvents derives a persistent show event and a persistent ended event per product.
func ProductEvents(products []catalog.Product, channel events.Channel) ([]catalog.ScriptEvent, error) {
	out := make([]catalog.ScriptEvent, 0, len(products)*2)
	for _, p := range products {
		ended, err := json.Marshal(events.ProductEnded{
			Type:            events.ProductEndedType,
			ID:              p.ID,
			OriginalEndTime: p.EndTimeMs,
		})
		if err != nil {
			return nil, fmt.Errorf("encode product %s ended event: %w", p.ID, err)
		}

		out = append(out,
			catalog.ScriptEvent{
				TimeSinceStartMs: p.StartTimeMs,
				Persist:          true,
				Channel:          channel,
				Payload:          p.Payload,
			},
			catalog.ScriptEvent{
				TimeSinceStartMs: p.EndTimeMs,
				Persist:          true,
				Channel:          channel,
				Payload:          ended,
			},
		)
	}
	return out, nil
}

package poll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveshop/go/internal/livestream/events"
	"github.com/mcdev12/liveshop/go/internal/livestream/script"
	"github.com/mcdev12/liveshop/go/internal/metrics"
)

var (
	ErrNoOptions       = errors.New("poll declared without options")
	ErrUnknownPoll     = errors.New("unknown poll")
	ErrUnknownOption   = errors.New("unknown poll option")
	ErrUnknownPollType = errors.New("unknown poll type")
)

// Publisher is the subset of the bus the aggregator writes to.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any, persist bool) error
}

// DeclarationLookup finds the scripted declaration of a poll that was never declared at runtime.
type DeclarationLookup interface {
	FindPollDeclaration(id int) (events.PollDeclaration, bool)
}

// Rand is the random source for synthetic votes.
type Rand interface {
	Intn(n int) int
}

// Poll is a declared poll the aggregator is tracking. A tracked poll is open;
// closing it discards it, and the correct option is only carried by the final results.
type Poll struct {
	ID      int
	Kind    events.PollType
	Options []events.PollOption
}

func (p *Poll) hasOption(id int) bool {
	for _, o := range p.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Tally maps option id to vote count for one poll.
type Tally map[int]int

// Aggregator turns votes into interim and final poll results.
type Aggregator struct {
	mu      sync.Mutex
	polls   map[int]*Poll
	tallies map[int]Tally

	publisher Publisher
	lookup    DeclarationLookup
	clock     clockwork.Clock
	rand      Rand
	metrics   *metrics.Metrics
}

// Option configures an Aggregator.
type Option func(*Aggregator)

func WithClock(c clockwork.Clock) Option {
	return func(a *Aggregator) { a.clock = c }
}

func WithRand(r Rand) Option {
	return func(a *Aggregator) { a.rand = r }
}

func WithLookup(l DeclarationLookup) Option {
	return func(a *Aggregator) { a.lookup = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// NewAggregator creates an Aggregator publishing results through p.
func NewAggregator(p Publisher, opts ...Option) *Aggregator {
	a := &Aggregator{
		polls:     make(map[int]*Poll),
		tallies:   make(map[int]Tally),
		publisher: p,
		clock:     clockwork.NewRealClock(),
		rand:      script.NewRand(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// HandleDeclaration starts tracking a poll. Side polls get a handful of
// delayed synthetic votes to seed participation.
func (a *Aggregator) HandleDeclaration(ctx context.Context, decl events.PollDeclaration) error {
	if !decl.PollType.Known() {
		return fmt.Errorf("poll %d: %w: %q", decl.ID, ErrUnknownPollType, decl.PollType)
	}
	if len(decl.Options) == 0 {
		log.Warn().Int("poll_id", decl.ID).Msg("poll declared without options, not tracking")
		return fmt.Errorf("poll %d: %w", decl.ID, ErrNoOptions)
	}

	a.mu.Lock()
	a.polls[decl.ID] = &Poll{
		ID:      decl.ID,
		Kind:    decl.PollType,
		Options: append([]events.PollOption(nil), decl.Options...),
	}
	var votes []scheduledVote
	if decl.PollType == events.PollTypeSide {
		votes = a.planSyntheticVotes(decl)
	}
	a.mu.Unlock()

	log.Info().
		Int("poll_id", decl.ID).
		Str("poll_type", string(decl.PollType)).
		Int("synthetic_votes", len(votes)).
		Msg("tracking poll")

	a.scheduleVotes(ctx, votes)
	return nil
}

// HandleVote records one vote and publishes interim results.
func (a *Aggregator) HandleVote(ctx context.Context, v events.Vote) error {
	a.mu.Lock()
	p, ok := a.polls[v.PollID]
	if !ok {
		a.mu.Unlock()
		log.Debug().Int("poll_id", v.PollID).Msg("vote for untracked poll ignored")
		return fmt.Errorf("vote for poll %d: %w", v.PollID, ErrUnknownPoll)
	}
	if !p.hasOption(v.ChoiceID) {
		a.mu.Unlock()
		log.Debug().Int("poll_id", v.PollID).Int("choice_id", v.ChoiceID).Msg("vote for unknown option ignored")
		return fmt.Errorf("vote for poll %d option %d: %w", v.PollID, v.ChoiceID, ErrUnknownOption)
	}

	t := a.tallies[v.PollID]
	if t == nil {
		t = make(Tally)
		a.tallies[v.PollID] = t
	}
	t[v.ChoiceID]++
	interim := events.PollResults{
		ID:       v.PollID,
		Options:  t.scores(),
		PollType: p.Kind,
	}
	a.mu.Unlock()

	a.metrics.IncVotes(string(p.Kind))
	return a.publish(ctx, interim, false)
}

// HandleClose resolves a poll. Side polls publish the tally with the correct
// option; featured polls publish a persisted final result, synthesising votes
// when none were cast.
func (a *Aggregator) HandleClose(ctx context.Context, sig events.PollCloseSignal) error {
	switch sig.PollType {
	case events.PollTypeSide:
		return a.closeSide(ctx, sig)
	case events.PollTypeFeatured:
		if !sig.IsFinalSignal {
			log.Debug().Int("poll_id", sig.ID).Msg("featured close without final signal ignored")
			return nil
		}
		return a.closeFeatured(ctx, sig)
	default:
		return fmt.Errorf("close poll %d: %w: %q", sig.ID, ErrUnknownPollType, sig.PollType)
	}
}

// closeSide publishes the reveal. A poll with no votes, or one never declared, is
// discarded without publishing.
func (a *Aggregator) closeSide(ctx context.Context, sig events.PollCloseSignal) error {
	a.mu.Lock()
	t := a.tallies[sig.ID]
	a.discard(sig.ID)
	a.mu.Unlock()

	if t.total() == 0 {
		log.Debug().Int("poll_id", sig.ID).Msg("side poll closed without votes, nothing to publish")
		return nil
	}
	final := events.PollResults{
		ID:            sig.ID,
		Options:       t.scores(),
		PollType:      events.PollTypeSide,
		CorrectOption: sig.CorrectOption,
	}

	a.metrics.IncPollsClosed(string(events.PollTypeSide))
	return a.publish(ctx, final, false)
}

func (a *Aggregator) closeFeatured(ctx context.Context, sig events.PollCloseSignal) error {
	a.mu.Lock()
	t := a.tallies[sig.ID]
	var lookupErr error
	if t.total() == 0 {
		opts, found := a.declaredOptions(sig.ID)
		if found {
			t = a.synthesiseTally(opts)
		} else {
			t = nil
			lookupErr = fmt.Errorf("close featured poll %d: %w", sig.ID, ErrUnknownPoll)
		}
	}
	final := events.PollResults{
		ID:       sig.ID,
		Options:  t.scores(),
		PollType: events.PollTypeFeatured,
		IsFinal:  true,
	}
	a.discard(sig.ID)
	a.mu.Unlock()

	if lookupErr != nil {
		log.Warn().Int("poll_id", sig.ID).Msg("featured poll declaration not found, publishing empty results")
	}
	a.metrics.IncPollsClosed(string(events.PollTypeFeatured))
	if err := a.publish(ctx, final, true); err != nil {
		return errors.Join(lookupErr, err)
	}
	return lookupErr
}

// declaredOptions prefers the runtime declaration, then the catalog. Caller holds a.mu.
func (a *Aggregator) declaredOptions(id int) ([]events.PollOption, bool) {
	if p, ok := a.polls[id]; ok && len(p.Options) > 0 {
		return p.Options, true
	}
	if a.lookup == nil {
		return nil, false
	}
	decl, ok := a.lookup.FindPollDeclaration(id)
	if !ok || len(decl.Options) == 0 {
		return nil, false
	}
	return decl.Options, true
}

// discard drops the tally and tracked poll. Caller holds a.mu.
func (a *Aggregator) discard(id int) {
	delete(a.tallies, id)
	delete(a.polls, id)
}

// Reset clears every tally and tracked poll.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.polls = make(map[int]*Poll)
	a.tallies = make(map[int]Tally)
}

// Tally returns a copy of the votes recorded for a poll, or nil if none.
func (a *Aggregator) Tally(pollID int) Tally {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tallies[pollID]
	if !ok {
		return nil
	}
	out := make(Tally, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// OpenPolls returns the number of tracked polls.
func (a *Aggregator) OpenPolls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.polls)
}

func (a *Aggregator) publish(ctx context.Context, results events.PollResults, persist bool) error {
	channel := string(events.ChannelPollResults)
	if err := a.publisher.Publish(ctx, channel, results, persist); err != nil {
		a.metrics.IncPublishFailures(channel)
		log.Error().Err(err).Int("poll_id", results.ID).Msg("failed to publish poll results")
		return fmt.Errorf("publish results for poll %d: %w", results.ID, err)
	}
	return nil
}

// scores lists the tally sorted by option id. A nil tally yields an empty list.
func (t Tally) scores() []events.OptionScore {
	out := make([]events.OptionScore, 0, len(t))
	for id, score := range t {
		out = append(out, events.OptionScore{ID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t Tally) total() int {
	n := 0
	for _, v := range t {
		n += v
	}
	return n
}

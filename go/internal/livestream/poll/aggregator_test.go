package poll

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/liveshop/go/internal/livestream/events"
)

type published struct {
	channel string
	payload any
	persist bool
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (r *recordingPublisher) Publish(_ context.Context, channel string, payload any, persist bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, published{channel: channel, payload: payload, persist: persist})
	return r.err
}

func (r *recordingPublisher) on(channel events.Channel) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []published
	for _, m := range r.msgs {
		if m.channel == string(channel) {
			out = append(out, m)
		}
	}
	return out
}

func (r *recordingPublisher) last(t *testing.T, channel events.Channel) published {
	t.Helper()
	msgs := r.on(channel)
	if len(msgs) == 0 {
		t.Fatalf("nothing published on %s", channel)
	}
	return msgs[len(msgs)-1]
}

type lookupFunc func(id int) (events.PollDeclaration, bool)

func (f lookupFunc) FindPollDeclaration(id int) (events.PollDeclaration, bool) { return f(id) }

func intPtr(v int) *int { return &v }

func threeOptions(id int, kind events.PollType) events.PollDeclaration {
	return events.PollDeclaration{
		ID:       id,
		Title:    "Which console launched first?",
		PollType: kind,
		Options: []events.PollOption{
			{ID: 1, Text: "Game Boy Color"},
			{ID: 2, Text: "Game Boy Advance"},
			{ID: 3, Text: "Nintendo DSi"},
		},
	}
}

func newTestAggregator(pub Publisher, opts ...Option) (*Aggregator, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	base := []Option{WithClock(clock), WithRand(rand.New(rand.NewSource(1)))}
	return NewAggregator(pub, append(base, opts...)...), clock
}

func TestSidePoll_FinalResults(t *testing.T) {
	pub := &recordingPublisher{}
	agg, _ := newTestAggregator(pub)
	ctx := context.Background()

	if err := agg.HandleDeclaration(ctx, threeOptions(501, events.PollTypeSide)); err != nil {
		t.Fatalf("HandleDeclaration: %v", err)
	}
	for _, choice := range []int{1, 1, 1, 2} {
		if err := agg.HandleVote(ctx, events.Vote{PollID: 501, ChoiceID: choice, PollType: events.PollTypeSide}); err != nil {
			t.Fatalf("HandleVote: %v", err)
		}
	}

	interim := pub.on(events.ChannelPollResults)
	if len(interim) != 4 {
		t.Fatalf("interim results = %d, want 4", len(interim))
	}
	for _, m := range interim {
		if m.persist {
			t.Fatal("interim results must not be persisted")
		}
	}

	if err := agg.HandleClose(ctx, events.PollCloseSignal{ID: 501, PollType: events.PollTypeSide, CorrectOption: intPtr(1)}); err != nil {
		t.Fatalf("HandleClose: %v", err)
	}

	final := pub.last(t, events.ChannelPollResults)
	if final.persist {
		t.Error("side final results must not be persisted")
	}
	got, _ := json.Marshal(final.payload)
	want := `{"id":501,"options":[{"id":1,"score":3},{"id":2,"score":1}],"pollType":"side","correctOption":1}`
	if string(got) != want {
		t.Errorf("final results:\n got  %s\n want %s", got, want)
	}

	if agg.Tally(501) != nil {
		t.Error("tally should be discarded after close")
	}
	if agg.OpenPolls() != 0 {
		t.Error("poll should no longer be tracked after close")
	}
}

func TestSidePoll_CloseWithoutVotesPublishesNothing(t *testing.T) {
	pub := &recordingPublisher{}
	agg, _ := newTestAggregator(pub)
	ctx := context.Background()

	agg.HandleDeclaration(ctx, threeOptions(502, events.PollTypeSide))
	for _, id := range []int{502, 503} {
		if err := agg.HandleClose(ctx, events.PollCloseSignal{ID: id, PollType: events.PollTypeSide, CorrectOption: intPtr(2)}); err != nil {
			t.Fatalf("HandleClose(%d): %v", id, err)
		}
	}
	if n := len(pub.on(events.ChannelPollResults)); n != 0 {
		t.Errorf("published %d results for side polls without votes, want 0", n)
	}
	if agg.OpenPolls() != 0 {
		t.Error("closed poll should no longer be tracked")
	}
}

func TestSidePoll_VotesAfterCloseRejected(t *testing.T) {
	pub := &recordingPublisher{}
	agg, _ := newTestAggregator(pub)
	ctx := context.Background()

	agg.HandleDeclaration(ctx, threeOptions(504, events.PollTypeSide))
	agg.HandleVote(ctx, events.Vote{PollID: 504, ChoiceID: 1, PollType: events.PollTypeSide})
	agg.HandleClose(ctx, events.PollCloseSignal{ID: 504, PollType: events.PollTypeSide, CorrectOption: intPtr(1)})

	err := agg.HandleVote(ctx, events.Vote{PollID: 504, ChoiceID: 1, PollType: events.PollTypeSide})
	if !errors.Is(err, ErrUnknownPoll) {
		t.Errorf("err = %v, want ErrUnknownPoll", err)
	}
	if agg.Tally(504) != nil {
		t.Error("late vote must not recreate the tally")
	}
}

func TestNewAggregator_DefaultRand(t *testing.T) {
	pub := &recordingPublisher{}
	clock := clockwork.NewFakeClock()
	agg := NewAggregator(pub, WithClock(clock))

	if err := agg.HandleDeclaration(context.Background(), threeOptions(505, events.PollTypeSide)); err != nil {
		t.Fatalf("HandleDeclaration: %v", err)
	}
	clock.Advance(7 * time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for len(pub.on(events.ChannelPollVotes)) < minSideSyntheticVotes {
		if time.Now().After(deadline) {
			t.Fatalf("got %d synthetic votes, want at least %d", len(pub.on(events.ChannelPollVotes)), minSideSyntheticVotes)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFeaturedPoll_SynthesisesVotesWhenNoneCast(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		pub := &recordingPublisher{}
		agg := NewAggregator(pub, WithClock(clockwork.NewFakeClock()), WithRand(rand.New(rand.NewSource(seed))))
		ctx := context.Background()

		if err := agg.HandleDeclaration(ctx, threeOptions(601, events.PollTypeFeatured)); err != nil {
			t.Fatalf("HandleDeclaration: %v", err)
		}
		if err := agg.HandleClose(ctx, events.PollCloseSignal{ID: 601, PollType: events.PollTypeFeatured, IsFinalSignal: true}); err != nil {
			t.Fatalf("HandleClose: %v", err)
		}

		final := pub.last(t, events.ChannelPollResults)
		if !final.persist {
			t.Fatal("featured final results must be persisted")
		}
		res := final.payload.(events.PollResults)
		if !res.IsFinal || res.ID != 601 || res.PollType != events.PollTypeFeatured {
			t.Fatalf("unexpected final results: %+v", res)
		}

		sum := 0
		for _, o := range res.Options {
			if o.ID < 1 || o.ID > 3 {
				t.Fatalf("seed %d: synthesised vote for undeclared option %d", seed, o.ID)
			}
			sum += o.Score
		}
		if sum < 10 || sum > 29 {
			t.Fatalf("seed %d: synthesised %d votes, want within [10,29]", seed, sum)
		}
	}
}

func TestFeaturedPoll_KeepsRealVotes(t *testing.T) {
	pub := &recordingPublisher{}
	agg, _ := newTestAggregator(pub)
	ctx := context.Background()

	agg.HandleDeclaration(ctx, threeOptions(601, events.PollTypeFeatured))
	agg.HandleVote(ctx, events.Vote{PollID: 601, ChoiceID: 3, PollType: events.PollTypeFeatured})
	agg.HandleVote(ctx, events.Vote{PollID: 601, ChoiceID: 3, PollType: events.PollTypeFeatured})

	if err := agg.HandleClose(ctx, events.PollCloseSignal{ID: 601, PollType: events.PollTypeFeatured, IsFinalSignal: true}); err != nil {
		t.Fatalf("HandleClose: %v", err)
	}
	res := pub.last(t, events.ChannelPollResults).payload.(events.PollResults)
	if len(res.Options) != 1 || res.Options[0] != (events.OptionScore{ID: 3, Score: 2}) {
		t.Errorf("final options = %+v, want only option 3 with 2 votes", res.Options)
	}
}

func TestFeaturedPoll_FallsBackToLookup(t *testing.T) {
	pub := &recordingPublisher{}
	lookup := lookupFunc(func(id int) (events.PollDeclaration, bool) {
		if id == 601 {
			return threeOptions(601, events.PollTypeFeatured), true
		}
		return events.PollDeclaration{}, false
	})
	agg, _ := newTestAggregator(pub, WithLookup(lookup))

	// The declaration was skipped by a seek, so only the catalog knows the options.
	err := agg.HandleClose(context.Background(), events.PollCloseSignal{ID: 601, PollType: events.PollTypeFeatured, IsFinalSignal: true})
	if err != nil {
		t.Fatalf("HandleClose: %v", err)
	}
	res := pub.last(t, events.ChannelPollResults).payload.(events.PollResults)
	if len(res.Options) == 0 {
		t.Fatal("expected synthesised options from lookup")
	}
}

func TestFeaturedPoll_UnknownDeclarationPublishesEmpty(t *testing.T) {
	pub := &recordingPublisher{}
	agg, _ := newTestAggregator(pub)

	err := agg.HandleClose(context.Background(), events.PollCloseSignal{ID: 999, PollType: events.PollTypeFeatured, IsFinalSignal: true})
	if !errors.Is(err, ErrUnknownPoll) {
		t.Fatalf("err = %v, want ErrUnknownPoll", err)
	}

	final := pub.last(t, events.ChannelPollResults)
	if !final.persist {
		t.Error("empty final results must still be persisted")
	}
	got, _ := json.Marshal(final.payload)
	if string(got) != `{"id":999,"options":[],"pollType":"featuredStreamPoll","isFinal":true}` {
		t.Errorf("final results = %s", got)
	}
}

func TestConcurrentVotesAreCountedExactly(t *testing.T) {
	pub := &recordingPublisher{}
	agg, _ := newTestAggregator(pub)
	ctx := context.Background()

	agg.HandleDeclaration(ctx, threeOptions(700, events.PollTypeFeatured))
	agg.HandleDeclaration(ctx, threeOptions(701, events.PollTypeFeatured))

	const perOption = 200
	var wg sync.WaitGroup
	for _, pollID := range []int{700, 701} {
		for choice := 1; choice <= 3; choice++ {
			for i := 0; i < perOption; i++ {
				wg.Add(1)
				go func(pollID, choice int) {
					defer wg.Done()
					agg.HandleVote(ctx, events.Vote{PollID: pollID, ChoiceID: choice, PollType: events.PollTypeFeatured})
				}(pollID, choice)
			}
		}
	}
	wg.Wait()

	for _, pollID := range []int{700, 701} {
		tally := agg.Tally(pollID)
		for choice := 1; choice <= 3; choice++ {
			if tally[choice] != perOption {
				t.Errorf("poll %d option %d = %d, want %d", pollID, choice, tally[choice], perOption)
			}
		}
	}
	if n := len(pub.on(events.ChannelPollResults)); n != 2*3*perOption {
		t.Errorf("interim results published = %d, want %d", n, 2*3*perOption)
	}
}

func TestVoteRejection(t *testing.T) {
	pub := &recordingPublisher{}
	agg, _ := newTestAggregator(pub)
	ctx := context.Background()

	if err := agg.HandleVote(ctx, events.Vote{PollID: 42, ChoiceID: 1}); !errors.Is(err, ErrUnknownPoll) {
		t.Errorf("untracked poll err = %v, want ErrUnknownPoll", err)
	}

	agg.HandleDeclaration(ctx, threeOptions(601, events.PollTypeFeatured))
	if err := agg.HandleVote(ctx, events.Vote{PollID: 601, ChoiceID: 9}); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("unknown option err = %v, want ErrUnknownOption", err)
	}
	if len(pub.on(events.ChannelPollResults)) != 0 {
		t.Error("rejected votes must not publish results")
	}
}

func TestDeclarationErrors(t *testing.T) {
	agg, _ := newTestAggregator(&recordingPublisher{})
	ctx := context.Background()

	err := agg.HandleDeclaration(ctx, events.PollDeclaration{ID: 1, PollType: events.PollTypeSide})
	if !errors.Is(err, ErrNoOptions) {
		t.Errorf("err = %v, want ErrNoOptions", err)
	}
	decl := threeOptions(2, "trivia")
	if err := agg.HandleDeclaration(ctx, decl); !errors.Is(err, ErrUnknownPollType) {
		t.Errorf("err = %v, want ErrUnknownPollType", err)
	}
	if agg.OpenPolls() != 0 {
		t.Error("invalid declarations must not be tracked")
	}
}

func TestSidePoll_SchedulesSyntheticVotes(t *testing.T) {
	pub := &recordingPublisher{}
	agg, clock := newTestAggregator(pub)

	if err := agg.HandleDeclaration(context.Background(), threeOptions(501, events.PollTypeSide)); err != nil {
		t.Fatalf("HandleDeclaration: %v", err)
	}

	clock.Advance(1499 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if n := len(pub.on(events.ChannelPollVotes)); n != 0 {
		t.Fatalf("%d synthetic votes fired before 1.5s", n)
	}

	clock.Advance(5 * time.Second)
	var votes []published
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		votes = pub.on(events.ChannelPollVotes)
		if len(votes) >= 4 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	votes = pub.on(events.ChannelPollVotes)

	if len(votes) < 4 || len(votes) > 7 {
		t.Fatalf("synthetic votes = %d, want within [4,7]", len(votes))
	}
	for _, m := range votes {
		v := m.payload.(events.Vote)
		if !v.Simulated || v.PollID != 501 || v.ChoiceID < 1 || v.ChoiceID > 3 {
			t.Errorf("unexpected synthetic vote: %+v", v)
		}
		if m.persist {
			t.Error("synthetic votes must not be persisted")
		}
	}
}

func TestFeaturedPoll_NoSyntheticVotesOnDeclaration(t *testing.T) {
	pub := &recordingPublisher{}
	agg, clock := newTestAggregator(pub)

	agg.HandleDeclaration(context.Background(), threeOptions(601, events.PollTypeFeatured))
	clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if n := len(pub.on(events.ChannelPollVotes)); n != 0 {
		t.Errorf("featured declaration scheduled %d votes", n)
	}
}

func TestReset(t *testing.T) {
	agg, _ := newTestAggregator(&recordingPublisher{})
	ctx := context.Background()

	agg.HandleDeclaration(ctx, threeOptions(601, events.PollTypeFeatured))
	agg.HandleVote(ctx, events.Vote{PollID: 601, ChoiceID: 1})
	agg.Reset()

	if agg.Tally(601) != nil || agg.OpenPolls() != 0 {
		t.Error("Reset should clear tallies and tracked polls")
	}
	if err := agg.HandleVote(ctx, events.Vote{PollID: 601, ChoiceID: 1}); !errors.Is(err, ErrUnknownPoll) {
		t.Errorf("vote after reset err = %v, want ErrUnknownPoll", err)
	}
}

package poll

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveshop/go/internal/livestream/events"
)

const (
	minSideSyntheticVotes  = 4
	sideSyntheticVoteRange = 4 // 4..7 votes
	minSyntheticVoteDelay  = 1500 * time.Millisecond
	syntheticVoteDelaySpan = 5000 // ms, delays fall in [1.5s, 6.5s)

	minFeaturedSyntheticVotes  = 10
	featuredSyntheticVoteRange = 20 // 10..29 votes
)

type scheduledVote struct {
	delay time.Duration
	vote  events.Vote
}

// planSyntheticVotes draws the choices and delays for a side poll. Caller holds a.mu.
func (a *Aggregator) planSyntheticVotes(decl events.PollDeclaration) []scheduledVote {
	n := minSideSyntheticVotes + a.rand.Intn(sideSyntheticVoteRange)
	out := make([]scheduledVote, 0, n)
	for i := 0; i < n; i++ {
		choice := decl.Options[a.rand.Intn(len(decl.Options))]
		out = append(out, scheduledVote{
			delay: minSyntheticVoteDelay + time.Duration(a.rand.Intn(syntheticVoteDelaySpan))*time.Millisecond,
			vote: events.Vote{
				PollID:    decl.ID,
				ChoiceID:  choice.ID,
				PollType:  decl.PollType,
				Simulated: true,
			},
		})
	}
	return out
}

// scheduleVotes publishes each vote on the poll-votes channel after its delay.
// The timers outlive resets; late votes for a cleared poll are ignored on arrival.
func (a *Aggregator) scheduleVotes(ctx context.Context, votes []scheduledVote) {
	pubCtx := context.WithoutCancel(ctx)
	for _, sv := range votes {
		vote := sv.vote
		a.clock.AfterFunc(sv.delay, func() {
			channel := string(events.ChannelPollVotes)
			if err := a.publisher.Publish(pubCtx, channel, vote, false); err != nil {
				a.metrics.IncPublishFailures(channel)
				log.Error().Err(err).Int("poll_id", vote.PollID).Msg("failed to publish synthetic vote")
			}
		})
	}
}

// synthesiseTally spreads 10..29 random votes across opts. Caller holds a.mu.
func (a *Aggregator) synthesiseTally(opts []events.PollOption) Tally {
	n := minFeaturedSyntheticVotes + a.rand.Intn(featuredSyntheticVoteRange)
	t := make(Tally, len(opts))
	for i := 0; i < n; i++ {
		t[opts[a.rand.Intn(len(opts))].ID]++
	}
	return t
}

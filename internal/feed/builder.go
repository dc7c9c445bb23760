package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"proposalsapp/api/internal/store"
	"proposalsapp/api/internal/votes"
)

// Store is the read-only data a feed is built from.
type Store interface {
	GetProposal(ctx context.Context, externalID, governorID string) (store.Proposal, error)
	GetTopic(ctx context.Context, externalID, discourseID string) (store.Topic, error)
	ListReplyTimes(ctx context.Context, topic store.Topic) ([]time.Time, error)
	ListVotes(ctx context.Context, proposal store.Proposal) ([]store.Vote, error)
}

type Builder struct {
	store        Store
	log          zerolog.Logger
	notableShare float64
	concurrency  int
	now          func() time.Time
}

type BuilderOption func(*Builder)

func WithLogger(log zerolog.Logger) BuilderOption {
	return func(b *Builder) { b.log = log }
}

// WithNotableShare sets the fraction of a proposal's voting power a single
// vote needs to appear as a milestone. Zero disables notable votes.
func WithNotableShare(share float64) BuilderOption {
	return func(b *Builder) { b.notableShare = share }
}

func WithConcurrency(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func NewBuilder(s Store, opts ...BuilderOption) *Builder {
	b := &Builder{store: s, log: zerolog.Nop(), notableShare: 0.1, concurrency: 8, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type activity struct {
	milestones []Event
	replies    []time.Time
	votes      []store.Vote
}

// Build returns the raw feed of a group, newest first: one comments event
// and one votes event per day with activity, plus milestones. Items that
// cannot be read are logged and skipped.
func (b *Builder) Build(ctx context.Context, group store.Group) ([]Event, error) {
	slots := make([]activity, len(group.Items))

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, item := range group.Items {
		g.Go(func() error {
			act, err := b.readItem(ctx, item)
			if err != nil {
				b.skip(group.ID, item, err)
				return nil
			}
			slots[i] = act
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build feed for group %s: %w", group.ID, err)
	}

	var all activity
	for _, act := range slots {
		all.milestones = append(all.milestones, act.milestones...)
		all.replies = append(all.replies, act.replies...)
		all.votes = append(all.votes, act.votes...)
	}

	events := all.milestones
	replies := make([]dated, 0, len(all.replies))
	for _, ts := range all.replies {
		replies = append(replies, dated{at: ts, weight: 1})
	}
	events = append(events, daily(KindComments, replies)...)
	cast := make([]dated, 0, len(all.votes))
	for _, v := range all.votes {
		cast = append(cast, dated{at: v.CreatedAt, weight: v.VotingPower})
	}
	events = append(events, daily(KindVotes, cast)...)

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	return events, nil
}

func (b *Builder) readItem(ctx context.Context, item store.GroupItem) (activity, error) {
	switch item.Kind {
	case store.ItemTopic:
		topic, err := b.store.GetTopic(ctx, item.ExternalID, item.ScopeID)
		if err != nil {
			return activity{}, err
		}
		replies, err := b.store.ListReplyTimes(ctx, topic)
		if err != nil {
			return activity{}, err
		}
		return activity{
			milestones: []Event{{Timestamp: topic.CreatedAt, Kind: KindTopicCreated, Payload: map[string]any{"title": topic.Title}}},
			replies:    replies,
		}, nil
	case store.ItemProposal:
		p, err := b.store.GetProposal(ctx, item.ExternalID, item.ScopeID)
		if err != nil {
			return activity{}, err
		}
		cast, err := b.store.ListVotes(ctx, p)
		if err != nil {
			return activity{}, err
		}
		return activity{milestones: b.proposalMilestones(p, cast), votes: cast}, nil
	}
	return activity{}, fmt.Errorf("unknown group item kind %q", item.Kind)
}

func (b *Builder) proposalMilestones(p store.Proposal, cast []store.Vote) []Event {
	payload := map[string]any{"title": p.Title, "onchain": p.Onchain()}
	out := []Event{{Timestamp: p.CreatedAt, Kind: KindProposalCreated, Payload: payload}}
	if !p.StartAt.IsZero() {
		out = append(out, Event{Timestamp: p.StartAt, Kind: KindVotingStarted, Payload: payload})
	}
	if !p.EndAt.IsZero() && p.EndAt.Before(b.now()) {
		out = append(out, Event{Timestamp: p.EndAt, Kind: KindVotingEnded, Payload: payload})
	}
	if b.notableShare <= 0 || len(cast) == 0 {
		return out
	}

	var total float64
	for _, v := range cast {
		total += v.VotingPower
	}
	if total <= 0 {
		return out
	}
	voteType, typeErr := votes.ParseType(p.VoteType)
	for _, v := range cast {
		if v.VotingPower < b.notableShare*total {
			continue
		}
		vp := map[string]any{
			"proposal":    p.Title,
			"voter":       v.VoterName,
			"votingPower": v.VotingPower,
			"share":       v.VotingPower / total,
		}
		if typeErr == nil {
			if choice, err := voteType.Render(v.Choice, p.Choices); err == nil {
				vp["choice"] = choice
			}
		}
		out = append(out, Event{Timestamp: v.CreatedAt, Kind: KindNotableVote, Payload: vp})
	}
	return out
}

func (b *Builder) skip(groupID string, item store.GroupItem, err error) {
	event := b.log.Error()
	msg := "failed to read group item for feed, skipping"
	if errors.Is(err, store.ErrNotFound) {
		event = b.log.Warn()
		msg = "lookup missing, skipping group item for feed"
	}
	event.Str("group_id", groupID).
		Str("kind", string(item.Kind)).
		Str("external_id", item.ExternalID).
		Err(err).
		Msg(msg)
}

type dated struct {
	at     time.Time
	weight float64
}

// daily sums weights per UTC day. Each event takes the time of the day's
// first entry and the largest daily sum as its peak.
func daily(kind Kind, entries []dated) []Event {
	if len(entries) == 0 {
		return nil
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	var out []Event
	var day time.Time
	for _, e := range entries {
		d := e.at.UTC().Truncate(24 * time.Hour)
		if len(out) == 0 || !d.Equal(day) {
			day = d
			out = append(out, Event{Timestamp: e.at, Kind: kind})
		}
		out[len(out)-1].Magnitude += e.weight
	}
	var peak float64
	for _, e := range out {
		peak = max(peak, e.Magnitude)
	}
	for i := range out {
		out[i].Peak = peak
	}
	return out
}

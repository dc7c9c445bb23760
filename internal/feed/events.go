// Package feed builds the activity timeline shown next to a proposal and
// coarsens it so it fits the space available on screen.
package feed

import (
	"sort"
	"time"
)

type Kind string

const (
	KindComments Kind = "comments"
	KindVotes    Kind = "votes"

	KindTopicCreated    Kind = "topic_created"
	KindProposalCreated Kind = "proposal_created"
	KindVotingStarted   Kind = "voting_started"
	KindVotingEnded     Kind = "voting_ended"
	KindNotableVote     Kind = "notable_vote"
)

// Volume reports whether events of this kind carry a magnitude and may be
// merged. Every other kind is a milestone.
func (k Kind) Volume() bool {
	return k == KindComments || k == KindVotes
}

// Event is one entry of the timeline. Magnitude and Peak are only set on
// volume events; Peak is the largest magnitude of the kind in the feed.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Kind      Kind           `json:"kind"`
	Magnitude float64        `json:"magnitude,omitempty"`
	Peak      float64        `json:"peak,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Aggregate merges volume events in buckets of 2^level per kind, never
// more than the number of events of that kind. Consecutive events are
// bucketed in input order. Milestones pass through. The result is sorted
// newest first; events is not modified.
func Aggregate(events []Event, level int) []Event {
	byKind := map[Kind][]Event{}
	var kinds []Kind
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if !e.Kind.Volume() {
			out = append(out, e)
			continue
		}
		if _, ok := byKind[e.Kind]; !ok {
			kinds = append(kinds, e.Kind)
		}
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}
	for _, k := range kinds {
		evs := byKind[k]
		size := bucketSize(level, len(evs))
		for start := 0; start < len(evs); start += size {
			out = append(out, mergeBucket(evs[start:min(start+size, len(evs))]))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func bucketSize(level, n int) int {
	if level <= 0 || n <= 1 {
		return 1
	}
	if level >= 30 || 1<<level > n {
		return n
	}
	return 1 << level
}

func mergeBucket(bucket []Event) Event {
	merged := bucket[0]
	merged.Magnitude = 0
	for _, e := range bucket {
		merged.Magnitude += e.Magnitude
		merged.Peak = max(merged.Peak, e.Peak)
		if e.Timestamp.Before(merged.Timestamp) {
			merged.Timestamp = e.Timestamp
		}
	}
	return merged
}

package feed

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func day(n int) time.Time { return base.Add(time.Duration(n) * 24 * time.Hour) }

func TestAggregateMergesPairs(t *testing.T) {
	raw := []Event{
		{Timestamp: day(3), Kind: KindComments, Magnitude: 30, Peak: 30},
		{Timestamp: day(2), Kind: KindComments, Magnitude: 20, Peak: 30},
		{Timestamp: day(1), Kind: KindComments, Magnitude: 10, Peak: 30},
	}

	got := Aggregate(raw, 1)

	want := []Event{
		{Timestamp: day(2), Kind: KindComments, Magnitude: 50, Peak: 30},
		{Timestamp: day(1), Kind: KindComments, Magnitude: 10, Peak: 30},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("aggregate mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateLevelZeroIsIdentity(t *testing.T) {
	raw := []Event{
		{Timestamp: day(5), Kind: KindVotes, Magnitude: 4},
		{Timestamp: day(4), Kind: KindTopicCreated},
		{Timestamp: day(3), Kind: KindComments, Magnitude: 2},
	}
	if diff := cmp.Diff(raw, Aggregate(raw, 0)); diff != "" {
		t.Fatalf("level 0 changed the feed (-want +got):\n%s", diff)
	}
}

func TestAggregateCoarsensMonotonically(t *testing.T) {
	var raw []Event
	for i := 20; i > 0; i-- {
		raw = append(raw, Event{Timestamp: day(i), Kind: KindVotes, Magnitude: float64(i)})
		raw = append(raw, Event{Timestamp: day(i).Add(time.Hour), Kind: KindComments, Magnitude: 1})
	}
	prev := len(raw)
	var total float64
	for _, e := range raw {
		total += e.Magnitude
	}
	for level := 0; level <= MaxLevel+2; level++ {
		got := Aggregate(raw, level)
		assert.LessOrEqual(t, len(got), prev, "level %d", level)
		prev = len(got)

		var sum float64
		for _, e := range got {
			sum += e.Magnitude
		}
		assert.Equal(t, total, sum, "level %d loses magnitude", level)
	}
	assert.Len(t, Aggregate(raw, 30), 2)
}

func TestAggregateKeepsMilestones(t *testing.T) {
	raw := []Event{
		{Timestamp: day(4), Kind: KindComments, Magnitude: 1},
		{Timestamp: day(3), Kind: KindVotingEnded, Payload: map[string]any{"title": "Fund"}},
		{Timestamp: day(2), Kind: KindComments, Magnitude: 1},
		{Timestamp: day(1), Kind: KindProposalCreated},
	}

	got := Aggregate(raw, 3)

	require.Len(t, got, 3)
	assert.Equal(t, KindVotingEnded, got[0].Kind)
	assert.Equal(t, KindComments, got[1].Kind)
	assert.Equal(t, day(2), got[1].Timestamp)
	assert.Equal(t, 2.0, got[1].Magnitude)
	assert.Equal(t, KindProposalCreated, got[2].Kind)
}

func TestAggregateDoesNotMutateInput(t *testing.T) {
	raw := []Event{
		{Timestamp: day(2), Kind: KindVotes, Magnitude: 3},
		{Timestamp: day(1), Kind: KindVotes, Magnitude: 4},
	}
	before := append([]Event(nil), raw...)
	_ = Aggregate(raw, 2)
	assert.Equal(t, before, raw)
}

func TestAggregateEmpty(t *testing.T) {
	assert.Empty(t, Aggregate(nil, 3))
}

func TestStep(t *testing.T) {
	tests := []struct {
		name  string
		level int
		m     Measurement
		want  int
	}{
		{"not rendered", 2, Measurement{LastEventClipped: true, VisibleEvents: 10}, 2},
		{"clipped coarsens", 0, Measurement{Rendered: true, LastEventClipped: true, VisibleEvents: 6}, 1},
		{"clipped at max", MaxLevel, Measurement{Rendered: true, LastEventClipped: true, VisibleEvents: 6}, MaxLevel},
		{"clipped with few visible", 1, Measurement{Rendered: true, LastEventClipped: true, VisibleEvents: MinVisibleEvents}, 1},
		{"spare room refines", 3, Measurement{Rendered: true, SpareSpace: DefaultSlack + 1}, 2},
		{"spare room at zero", 0, Measurement{Rendered: true, SpareSpace: 500}, 0},
		{"within slack", 3, Measurement{Rendered: true, SpareSpace: DefaultSlack}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Step(State{Level: tt.level}, tt.m)
			assert.Equal(t, tt.want, got.Level)
		})
	}
}

func TestControllerAppliesCurrentMeasurements(t *testing.T) {
	c := NewController(time.Second, 0)
	raw := []Event{
		{Timestamp: day(2), Kind: KindVotes, Magnitude: 1},
		{Timestamp: day(1), Kind: KindVotes, Magnitude: 1},
	}
	gen := c.SetEvents(raw)
	assert.Len(t, c.Events(), 2)

	state, changed := c.CheckVisibility(base, Measurement{Rendered: true, LastEventClipped: true, VisibleEvents: 8, Generation: gen})
	require.True(t, changed)
	assert.Equal(t, 1, state.Level)
	assert.Equal(t, gen+1, c.Generation())
	assert.Len(t, c.Events(), 1)
}

func TestControllerIgnoresStaleMeasurements(t *testing.T) {
	c := NewController(time.Second, 0)
	gen := c.SetEvents(nil)
	c.Invalidate()

	_, changed := c.CheckVisibility(base, Measurement{Rendered: true, LastEventClipped: true, VisibleEvents: 8, Generation: gen})
	assert.False(t, changed)
	assert.Equal(t, 0, c.CurrentLevel())
}

func TestControllerThrottles(t *testing.T) {
	c := NewController(time.Second, 0)
	gen := c.SetEvents(nil)
	clipped := Measurement{Rendered: true, LastEventClipped: true, VisibleEvents: 8}

	clipped.Generation = gen
	_, changed := c.CheckVisibility(base, clipped)
	require.True(t, changed)

	clipped.Generation = c.Generation()
	_, changed = c.CheckVisibility(base.Add(100*time.Millisecond), clipped)
	assert.False(t, changed)

	_, changed = c.CheckVisibility(base.Add(2*time.Second), clipped)
	assert.True(t, changed)
	assert.Equal(t, 2, c.CurrentLevel())
}

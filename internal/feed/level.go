package feed

import (
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	MaxLevel         = 5
	MinVisibleEvents = 5
	DefaultSlack     = 48.0
	DefaultInterval  = 250 * time.Millisecond
)

// State is the view state of one rendered feed.
type State struct {
	Level int `json:"level"`
}

// Measurement is what the display reports after laying out a feed.
// SpareSpace is the free room below the last event, in pixels.
type Measurement struct {
	Rendered         bool    `json:"rendered"`
	LastEventClipped bool    `json:"lastEventClipped"`
	VisibleEvents    int     `json:"visibleEvents"`
	SpareSpace       float64 `json:"spareSpace"`
	Generation       uint64  `json:"generation"`
}

// Step returns the next state for a measurement using DefaultSlack.
func Step(s State, m Measurement) State {
	return StepWithSlack(s, m, DefaultSlack)
}

// StepWithSlack coarsens the feed when its last event is clipped and enough
// events are visible, and refines it when there is more than slack spare room.
func StepWithSlack(s State, m Measurement, slack float64) State {
	switch {
	case !m.Rendered:
	case m.LastEventClipped && s.Level < MaxLevel && m.VisibleEvents > MinVisibleEvents:
		s.Level++
	case !m.LastEventClipped && m.SpareSpace > slack && s.Level > 0:
		s.Level--
	}
	return s
}

// Controller owns the level of one feed and applies measurements one at a
// time. Every change to the rendered list bumps the generation; a
// measurement taken against an older generation is ignored.
type Controller struct {
	mu         sync.Mutex
	raw        []Event
	state      State
	generation uint64
	limiter    *rate.Limiter
	slack      float64
}

func NewController(interval time.Duration, slack float64) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if slack <= 0 {
		slack = DefaultSlack
	}
	return &Controller{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		slack:   slack,
	}
}

// SetEvents replaces the raw feed and returns the new generation.
func (c *Controller) SetEvents(events []Event) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw = slices.Clone(events)
	c.generation++
	return c.generation
}

// Invalidate marks outstanding measurements stale, e.g. after a filter
// change or resize, and returns the new generation.
func (c *Controller) Invalidate() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return c.generation
}

func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Controller) CurrentLevel() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Level
}

// Events returns the feed aggregated at the current level.
func (c *Controller) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Aggregate(c.raw, c.state.Level)
}

// CheckVisibility applies m if it is current, rendered and not throttled.
// It reports whether the level changed.
func (c *Controller) CheckVisibility(now time.Time, m Measurement) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.Generation != c.generation || !m.Rendered {
		return c.state, false
	}
	if !c.limiter.AllowN(now, 1) {
		return c.state, false
	}
	next := StepWithSlack(c.state, m, c.slack)
	if next == c.state {
		return c.state, false
	}
	c.state = next
	c.generation++
	return c.state, true
}

// Package correlator matches a change notification to the history entry and
// comment that caused it, and classifies the change as a creation or an update.
//
// All timestamps handed to this package must already be naive UTC wall clocks
// (see package timestamp). Correlation is pure: inputs are never mutated.
package correlator

import (
	"time"

	"github.com/afikmenashe/bugzilla-bridge/internal/bugzilla"
	"github.com/afikmenashe/bugzilla-bridge/internal/events"
)

const (
	// DefaultWindow is the largest distance between a notification and a
	// history entry or comment that still counts as a match. It absorbs the
	// skew between the tracker's clock and the message bus.
	DefaultWindow = 60 * time.Second

	// DefaultCreationCommentCount is the comment count of a freshly filed bug.
	// The description is comment #0 and has no history entry of its own.
	DefaultCreationCommentCount = 1
)

// FindClosest returns a copy of the candidate whose time is nearest to ref, or
// nil when candidates is empty or the nearest one is window or more away.
// Ties keep the candidate seen first.
func FindClosest[T any](candidates []T, ref time.Time, window time.Duration, at func(*T) time.Time) *T {
	if len(candidates) == 0 {
		return nil
	}

	best := 0
	bestDelta := at(&candidates[0]).Sub(ref).Abs()
	for i := 1; i < len(candidates); i++ {
		if delta := at(&candidates[i]).Sub(ref).Abs(); delta < bestDelta {
			best, bestDelta = i, delta
		}
	}

	if bestDelta >= window {
		return nil
	}
	match := candidates[best]
	return &match
}

// Classify returns Created when no history entry matched and the bug has
// exactly creationCommentCount comments, Updated otherwise.
func Classify(eventMatched bool, commentCount, creationCommentCount int) events.Classification {
	if !eventMatched && commentCount == creationCommentCount {
		return events.Created
	}
	return events.Updated
}

// Correlator assembles outbound events. The zero value is not usable; use New.
type Correlator struct {
	window               time.Duration
	creationCommentCount int
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(c *Correlator) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithCreationCommentCount overrides DefaultCreationCommentCount.
func WithCreationCommentCount(n int) Option {
	return func(c *Correlator) {
		if n > 0 {
			c.creationCommentCount = n
		}
	}
}

// New creates a Correlator.
func New(opts ...Option) *Correlator {
	c := &Correlator{
		window:               DefaultWindow,
		creationCommentCount: DefaultCreationCommentCount,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Window returns the configured match window.
func (c *Correlator) Window() time.Duration {
	return c.window
}

// Correlate matches ts against the bug's comments and history and builds the
// outbound event. MessageID, Topic and Timestamp are left for the caller.
func (c *Correlator) Correlate(n *events.Notification, ts time.Time, record *bugzilla.Record, history []bugzilla.HistoryEvent) *events.OutboundEvent {
	comment := FindClosest(record.Comments, ts, c.window, func(cm *bugzilla.Comment) time.Time { return cm.Time })
	event := FindClosest(history, ts, c.window, func(h *bugzilla.HistoryEvent) time.Time { return h.When })

	return &events.OutboundEvent{
		SchemaVersion:  events.SchemaVersion,
		Classification: Classify(event != nil, len(record.Comments), c.creationCommentCount),
		Bug:            record,
		Event:          event,
		Comment:        comment,
		Headers:        n.Headers,
	}
}

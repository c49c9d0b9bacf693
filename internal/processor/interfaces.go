// Package processor runs the per-notification pipeline: filter, lookup, correlate, publish.
package processor

import (
	"context"

	"github.com/afikmenashe/bugzilla-bridge/internal/database"
	"github.com/afikmenashe/bugzilla-bridge/internal/events"
	"github.com/afikmenashe/bugzilla-bridge/internal/lookup"

	"github.com/segmentio/kafka-go"
)

// MessageReader reads change notifications from a message queue.
type MessageReader interface {
	// ReadMessage reads the next message and returns the parsed notification.
	// When the payload cannot be decoded, the raw message is still returned
	// alongside the error so its offset can be committed.
	ReadMessage(ctx context.Context) (*events.Notification, *kafka.Message, error)

	// CommitMessage commits the offset for the given message.
	CommitMessage(ctx context.Context, msg *kafka.Message) error

	// Close closes the reader and releases resources.
	Close() error
}

// MessagePublisher publishes outbound bug events.
type MessagePublisher interface {
	// Publish sends the event under the given topic tag.
	Publish(ctx context.Context, topicTag string, ev *events.OutboundEvent) error

	// Close closes the publisher and releases resources.
	Close() error
}

// RecordLookup fetches the bug state behind a notification.
type RecordLookup interface {
	Fetch(ctx context.Context, n *events.Notification) (*lookup.Enriched, error)
}

// Journal records the outcome of each handled notification.
type Journal interface {
	RecordOutcome(ctx context.Context, entry *database.OutcomeEntry) error
}

// Compile-time checks for the production implementations.
var (
	_ RecordLookup = (*lookup.Lookup)(nil)
	_ Journal      = (*database.DB)(nil)
)

// noOpJournal discards every entry.
type noOpJournal struct{}

func (noOpJournal) RecordOutcome(context.Context, *database.OutcomeEntry) error { return nil }

package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/afikmenashe/bugzilla-bridge/internal/correlator"
	"github.com/afikmenashe/bugzilla-bridge/internal/database"
	"github.com/afikmenashe/bugzilla-bridge/internal/events"
	"github.com/afikmenashe/bugzilla-bridge/internal/lookup"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Deps holds everything a Processor needs. Journal and Metrics are optional.
type Deps struct {
	Reader     MessageReader
	Publisher  MessagePublisher
	Filter     *lookup.Filter
	Lookup     RecordLookup
	Correlator *correlator.Correlator
	Journal    Journal
	Metrics    MetricsRecorder
}

// Outcome describes what happened to one notification.
type Outcome struct {
	Status Status
	// Event is set once correlation succeeded, even if publishing then failed.
	Event *events.OutboundEvent
	// Reason explains a filtered notification.
	Reason string
}

// Processor orchestrates enrichment of change notifications.
type Processor struct {
	reader     MessageReader
	publisher  MessagePublisher
	filter     *lookup.Filter
	lookup     RecordLookup
	correlator *correlator.Correlator
	journal    Journal
	metrics    MetricsRecorder

	newID func() string
	now   func() time.Time
}

// NewProcessor creates a processor. Nil Filter and Correlator select their defaults,
// nil Journal and Metrics select null objects.
func NewProcessor(d Deps) *Processor {
	p := &Processor{
		reader:     d.Reader,
		publisher:  d.Publisher,
		filter:     d.Filter,
		lookup:     d.Lookup,
		correlator: d.Correlator,
		journal:    d.Journal,
		metrics:    d.Metrics,
		newID:      uuid.NewString,
		now:        time.Now,
	}
	if p.filter == nil {
		p.filter = lookup.NewFilter(nil)
	}
	if p.correlator == nil {
		p.correlator = correlator.New()
	}
	if p.journal == nil {
		p.journal = noOpJournal{}
	}
	if p.metrics == nil {
		p.metrics = &NoOpMetrics{}
	}
	return p
}

// Handle runs one notification through the pipeline. Filtered notifications are
// not errors. Errors wrap ErrMalformedTimestamp, ErrLookupFailed or ErrPublishFailed,
// and nothing is published when one is returned.
func (p *Processor) Handle(ctx context.Context, n *events.Notification) (Outcome, error) {
	if ok, reason := p.filter.Allow(n); !ok {
		slog.Debug("Dropping notification", "record_id", n.RecordID, "reason", reason)
		p.metrics.RecordFiltered()
		p.metrics.IncrementCustom(CounterFiltered)
		return Outcome{Status: StatusFiltered, Reason: reason}, nil
	}

	enriched, err := p.lookup.Fetch(ctx, n)
	if err != nil {
		status := statusForError(err)
		if status == StatusMalformedTimestamp {
			p.metrics.IncrementCustom(CounterMalformedTimestamps)
		} else {
			p.metrics.IncrementCustom(CounterLookupFailures)
		}
		p.metrics.RecordError()
		return Outcome{Status: status}, err
	}

	ev := p.correlator.Correlate(n, enriched.Timestamp, enriched.Record, enriched.History)
	ev.MessageID = p.newID()
	ev.Timestamp = p.now().UTC()

	if err := p.publisher.Publish(ctx, ev.Classification.TopicTag(), ev); err != nil {
		p.metrics.IncrementCustom(CounterPublishFailures)
		p.metrics.RecordError()
		return Outcome{Status: StatusPublishFailed, Event: ev}, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	p.metrics.RecordPublished()
	if ev.Classification == events.Created {
		p.metrics.IncrementCustom(CounterRecordsCreated)
	} else {
		p.metrics.IncrementCustom(CounterRecordsUpdated)
	}

	slog.Info("Published bug event",
		"msg_id", ev.MessageID,
		"record_id", n.RecordID,
		"product", n.ProductName(),
		"classification", ev.Classification,
		"topic", ev.Topic,
		"event_matched", ev.Event != nil,
		"comment_matched", ev.Comment != nil,
	)

	return Outcome{Status: StatusPublished, Event: ev}, nil
}

// Run continuously reads notifications and handles them until ctx is cancelled.
// Offsets are committed for every outcome except a failed publish.
func (p *Processor) Run(ctx context.Context) error {
	slog.Info("Starting notification processing loop",
		"products", p.filter.Products(),
		"window", p.correlator.Window(),
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Notification processing loop stopped")
			return nil
		default:
			n, msg, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if msg == nil {
					slog.Error("Failed to read notification", "error", err)
					continue
				}
				// Undecodable payloads are never going to succeed; skip past them.
				slog.Error("Dropping undecodable notification",
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err,
				)
				p.metrics.RecordReceived()
				p.metrics.RecordError()
				p.metrics.IncrementCustom(CounterUndecodable)
				p.journalOutcome(ctx, nil, Outcome{Status: StatusUndecodable}, err)
				p.commit(ctx, msg)
				continue
			}

			p.metrics.RecordReceived()
			start := time.Now()

			outcome, err := p.Handle(ctx, n)
			p.metrics.RecordProcessed(time.Since(start))
			if ctx.Err() != nil {
				// Shutdown interrupted the lookup; leave the offset for redelivery.
				return nil
			}
			if err != nil {
				slog.Error("Failed to handle notification",
					"record_id", n.RecordID,
					"product", n.ProductName(),
					"status", outcome.Status,
					"error", err,
				)
			}
			p.journalOutcome(ctx, n, outcome, err)

			if !outcome.Status.Commit() {
				continue
			}
			p.commit(ctx, msg)
		}
	}
}

func (p *Processor) commit(ctx context.Context, msg *kafka.Message) {
	if err := p.reader.CommitMessage(ctx, msg); err != nil {
		slog.Error("Failed to commit offset",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	}
}

// journalOutcome appends an entry to the journal. Journal failures are logged only.
func (p *Processor) journalOutcome(ctx context.Context, n *events.Notification, outcome Outcome, handleErr error) {
	entry := &database.OutcomeEntry{
		Status:    string(outcome.Status),
		Reason:    outcome.Reason,
		HandledAt: p.now().UTC(),
	}
	if n != nil {
		entry.RecordID = n.RecordID
		entry.Product = n.ProductName()
		entry.NotificationTS = n.Timestamp
	}
	if ev := outcome.Event; ev != nil {
		entry.MessageID = ev.MessageID
		entry.Classification = string(ev.Classification)
		entry.Topic = ev.Topic
	}
	if handleErr != nil {
		entry.Error = handleErr.Error()
	}

	if err := p.journal.RecordOutcome(ctx, entry); err != nil {
		slog.Warn("Failed to journal outcome",
			"record_id", entry.RecordID,
			"status", entry.Status,
			"error", err,
		)
	}
}

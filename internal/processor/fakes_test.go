package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/afikmenashe/bugzilla-bridge/internal/database"
	"github.com/afikmenashe/bugzilla-bridge/internal/events"
	"github.com/afikmenashe/bugzilla-bridge/internal/lookup"

	"github.com/segmentio/kafka-go"
)

// readResult is one scripted ReadMessage return.
type readResult struct {
	n   *events.Notification
	msg *kafka.Message
	err error
}

// FakeReader is a test fake for MessageReader. Once the script runs out it
// cancels the loop via Done.
type FakeReader struct {
	Script    []readResult
	CommitErr error
	Committed []kafka.Message
	Done      context.CancelFunc
	index     int
}

func (f *FakeReader) ReadMessage(ctx context.Context) (*events.Notification, *kafka.Message, error) {
	if f.index >= len(f.Script) {
		if f.Done != nil {
			f.Done()
		}
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	r := f.Script[f.index]
	f.index++
	return r.n, r.msg, r.err
}

func (f *FakeReader) CommitMessage(ctx context.Context, msg *kafka.Message) error {
	if f.CommitErr != nil {
		return f.CommitErr
	}
	f.Committed = append(f.Committed, *msg)
	return nil
}

func (f *FakeReader) Close() error {
	return nil
}

// publishCall records one Publish invocation.
type publishCall struct {
	Tag   string
	Event *events.OutboundEvent
}

// FakePublisher is a test fake for MessagePublisher.
type FakePublisher struct {
	Published  []publishCall
	PublishErr error
}

func (f *FakePublisher) Publish(ctx context.Context, topicTag string, ev *events.OutboundEvent) error {
	if f.PublishErr != nil {
		return f.PublishErr
	}
	ev.Topic = "bugzilla." + topicTag
	f.Published = append(f.Published, publishCall{Tag: topicTag, Event: ev})
	return nil
}

func (f *FakePublisher) Close() error {
	return nil
}

// FakeLookup is a test fake for RecordLookup.
type FakeLookup struct {
	Result *lookup.Enriched
	Err    error
	Calls  int
	// Func, when set, replaces Result and Err.
	Func func(ctx context.Context, n *events.Notification) (*lookup.Enriched, error)
}

func (f *FakeLookup) Fetch(ctx context.Context, n *events.Notification) (*lookup.Enriched, error) {
	f.Calls++
	if f.Func != nil {
		return f.Func(ctx, n)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Result, nil
}

// FakeJournal is a test fake for Journal.
type FakeJournal struct {
	mu      sync.Mutex
	Entries []database.OutcomeEntry
	Err     error
}

func (f *FakeJournal) RecordOutcome(ctx context.Context, entry *database.OutcomeEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Entries = append(f.Entries, *entry)
	return f.Err
}

// FakeMetrics is a test fake for MetricsRecorder that tracks calls.
type FakeMetrics struct {
	ReceivedCount    int
	FilteredCount    int
	ProcessedCount   int
	PublishedCount   int
	ErrorCount       int
	CustomIncrements map[string]int
}

func NewFakeMetrics() *FakeMetrics {
	return &FakeMetrics{
		CustomIncrements: make(map[string]int),
	}
}

func (f *FakeMetrics) RecordReceived()                 { f.ReceivedCount++ }
func (f *FakeMetrics) RecordFiltered()                 { f.FilteredCount++ }
func (f *FakeMetrics) RecordProcessed(_ time.Duration) { f.ProcessedCount++ }
func (f *FakeMetrics) RecordPublished()                { f.PublishedCount++ }
func (f *FakeMetrics) RecordError()                    { f.ErrorCount++ }
func (f *FakeMetrics) IncrementCustom(name string)     { f.CustomIncrements[name]++ }

var errBoom = errors.New("boom")

package processor

import "time"

// MetricsRecorder defines the metrics operations needed by the processor.
type MetricsRecorder interface {
	RecordReceived()
	RecordFiltered()
	RecordProcessed(latency time.Duration)
	RecordPublished()
	RecordError()
	IncrementCustom(name string)
}

// Custom counter names.
const (
	CounterFiltered            = "notifications_filtered"
	CounterUndecodable         = "notifications_undecodable"
	CounterRecordsCreated      = "records_created"
	CounterRecordsUpdated      = "records_updated"
	CounterLookupFailures      = "lookup_failures"
	CounterMalformedTimestamps = "malformed_timestamps"
	CounterPublishFailures     = "publish_failures"
)

// NoOpMetrics is a null-object implementation of MetricsRecorder.
type NoOpMetrics struct{}

// Compile-time check that NoOpMetrics implements MetricsRecorder.
var _ MetricsRecorder = (*NoOpMetrics)(nil)

// RecordReceived does nothing.
func (n *NoOpMetrics) RecordReceived() {}

// RecordFiltered does nothing.
func (n *NoOpMetrics) RecordFiltered() {}

// RecordProcessed does nothing.
func (n *NoOpMetrics) RecordProcessed(_ time.Duration) {}

// RecordPublished does nothing.
func (n *NoOpMetrics) RecordPublished() {}

// RecordError does nothing.
func (n *NoOpMetrics) RecordError() {}

// IncrementCustom does nothing.
func (n *NoOpMetrics) IncrementCustom(_ string) {}

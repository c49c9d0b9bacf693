package kafka

import "time"

const (
	// MaxPollWait is the longest a fetch waits for new data before returning.
	MaxPollWait = 500 * time.Millisecond
	// CommitInterval is how often committed offsets are flushed to the broker.
	// Zero would make commits synchronous; a small interval batches them.
	CommitInterval = 1 * time.Second
	// WriteTimeout is the maximum time to wait for a Kafka write operation.
	WriteTimeout = 10 * time.Second
)

// Header keys set on outbound messages.
const (
	HeaderMessageID      = "message_id"
	HeaderClassification = "classification"
	HeaderSchemaVersion  = "schema_version"
)

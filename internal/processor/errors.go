package processor

import (
	"errors"

	"github.com/afikmenashe/bugzilla-bridge/internal/lookup"
)

// ErrPublishFailed wraps failures to hand an outbound event to the sink.
var ErrPublishFailed = errors.New("publish failed")

// Re-exported so callers of Handle can match every per-message error from one package.
var (
	ErrMalformedTimestamp = lookup.ErrMalformedTimestamp
	ErrLookupFailed       = lookup.ErrLookupFailed
)

// Status is the terminal state of one handled notification.
type Status string

const (
	StatusPublished          Status = "published"
	StatusFiltered           Status = "filtered"
	StatusMalformedTimestamp Status = "malformed_timestamp"
	StatusLookupFailed       Status = "lookup_failed"
	StatusPublishFailed      Status = "publish_failed"
	StatusUndecodable        Status = "undecodable"
)

// Commit reports whether the message offset should be committed for this status.
// Every status except a failed publish is a terminal drop or a success.
func (s Status) Commit() bool {
	return s != StatusPublishFailed
}

// statusForError maps a Handle error onto its status.
func statusForError(err error) Status {
	switch {
	case errors.Is(err, ErrMalformedTimestamp):
		return StatusMalformedTimestamp
	case errors.Is(err, ErrPublishFailed):
		return StatusPublishFailed
	default:
		return StatusLookupFailed
	}
}

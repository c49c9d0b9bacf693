// Package events defines the inbound notification and the outbound enriched event.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/afikmenashe/bugzilla-bridge/internal/bugzilla"
)

// SchemaVersion is the version of the OutboundEvent document.
const SchemaVersion = 1

// Classification tells downstream consumers whether a bug was created or updated.
type Classification string

const (
	Created Classification = "created"
	Updated Classification = "updated"
)

// TopicTag returns the outbound topic tag for the classification.
func (c Classification) TopicTag() string {
	if c == Created {
		return TopicRecordCreated
	}
	return TopicRecordUpdated
}

// Outbound topic tags.
const (
	TopicRecordCreated = "record.created"
	TopicRecordUpdated = "record.updated"
)

// Notification is a change notification read from the inbound transport.
//
// On the wire it is a flat JSON object; product, bug_id and timestamp are lifted
// into fields and every other key is kept verbatim in Extra.
type Notification struct {
	// Product is nil when the message carries no product field at all.
	Product   *string
	RecordID  string
	Timestamp string
	Extra     map[string]json.RawMessage
	Headers   map[string]string
}

// ProductName returns the product or "" when absent.
func (n *Notification) ProductName() string {
	if n.Product == nil {
		return ""
	}
	return *n.Product
}

// UnmarshalJSON decodes the flat wire form. bug_id may be a number or a string.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["product"]; ok {
		var product string
		if err := json.Unmarshal(v, &product); err != nil {
			return fmt.Errorf("product: %w", err)
		}
		n.Product = &product
		delete(raw, "product")
	}

	if v, ok := raw["bug_id"]; ok {
		id, err := decodeRecordID(v)
		if err != nil {
			return fmt.Errorf("bug_id: %w", err)
		}
		n.RecordID = id
		delete(raw, "bug_id")
	}

	if v, ok := raw["timestamp"]; ok {
		if err := json.Unmarshal(v, &n.Timestamp); err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		delete(raw, "timestamp")
	}

	if len(raw) > 0 {
		n.Extra = raw
	}
	return nil
}

// MarshalJSON encodes the notification back to its flat wire form. Headers are not part of the body.
func (n Notification) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Extra)+3)
	for k, v := range n.Extra {
		out[k] = v
	}
	if n.Product != nil {
		out["product"] = *n.Product
	}
	if n.RecordID != "" {
		if id, err := strconv.ParseInt(n.RecordID, 10, 64); err == nil {
			out["bug_id"] = id
		} else {
			out["bug_id"] = n.RecordID
		}
	}
	if n.Timestamp != "" {
		out["timestamp"] = n.Timestamp
	}
	return json.Marshal(out)
}

func decodeRecordID(v json.RawMessage) (string, error) {
	v = bytes.TrimSpace(v)
	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	if err := dec.Decode(&num); err == nil {
		if _, err := strconv.ParseInt(num.String(), 10, 64); err != nil {
			return "", fmt.Errorf("not an integer: %s", num)
		}
		return num.String(), nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("expected number or string: %s", v)
	}
	if !bugzilla.ValidID(s) {
		return "", fmt.Errorf("not a bug number or alias: %q", s)
	}
	return s, nil
}

// OutboundEvent is the normalized, enriched event published downstream.
type OutboundEvent struct {
	MessageID      string                 `json:"msg_id"`
	SchemaVersion  int                    `json:"schema_version"`
	Topic          string                 `json:"topic"`
	Timestamp      time.Time              `json:"timestamp"`
	Classification Classification         `json:"classification"`
	Bug            *bugzilla.Record       `json:"bug"`
	Event          *bugzilla.HistoryEvent `json:"event"`
	Comment        *bugzilla.Comment      `json:"comment"`
	Headers        map[string]string      `json:"headers"`
}

// RecordKey returns the bug ID as a string, or "" when the record carries none.
func (e *OutboundEvent) RecordKey() string {
	if e.Bug == nil || e.Bug.ID == nil {
		return ""
	}
	return strconv.Itoa(*e.Bug.ID)
}

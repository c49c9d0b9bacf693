package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/afikmenashe/bugzilla-bridge/internal/events"
)

func TestOptions_Validate(t *testing.T) {
	base := options{brokers: "localhost:9092", topic: "bugzilla.notifications", bugID: "42", count: 1}

	tests := []struct {
		name    string
		mutate  func(*options)
		wantErr bool
	}{
		{name: "valid", mutate: func(*options) {}},
		{name: "no brokers", mutate: func(o *options) { o.brokers = "" }, wantErr: true},
		{name: "no topic", mutate: func(o *options) { o.topic = "" }, wantErr: true},
		{name: "no bug id", mutate: func(o *options) { o.bugID = "" }, wantErr: true},
		{name: "zero count", mutate: func(o *options) { o.count = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base
			tt.mutate(&o)
			if err := o.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildMessage(t *testing.T) {
	now := time.Date(2013, 5, 17, 2, 33, 0, 0, time.UTC)

	msg, err := buildMessage(options{bugID: "42", product: "Fedora"}, now)
	if err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}
	if string(msg.Key) != "42" {
		t.Errorf("Key = %q, want 42", msg.Key)
	}

	var n events.Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		t.Fatalf("payload does not decode as a notification: %v", err)
	}
	if n.RecordID != "42" || n.ProductName() != "Fedora" {
		t.Errorf("notification = %+v", n)
	}
	if n.Timestamp != "2013-05-17T02:33:00+00:00" {
		t.Errorf("Timestamp = %q", n.Timestamp)
	}
	if len(msg.Headers) != 1 || len(msg.Headers[0].Value) == 0 {
		t.Errorf("Headers = %v, want an esb-message-id", msg.Headers)
	}

	noProduct, err := buildMessage(options{bugID: "42", timestamp: "2014-01-01T00:00:00Z"}, now)
	if err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(noProduct.Value, &raw)
	if _, ok := raw["product"]; ok {
		t.Errorf("payload = %s, want no product key", noProduct.Value)
	}
	if raw["timestamp"] != "2014-01-01T00:00:00Z" {
		t.Errorf("timestamp = %v", raw["timestamp"])
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/afikmenashe/bugzilla-bridge/pkg/metrics"
)

type fakeSource struct {
	snaps      map[string]*metrics.Snapshot
	listPrefix string
}

func (f *fakeSource) Get(ctx context.Context, instance string) (*metrics.Snapshot, error) {
	snap, ok := f.snaps[instance]
	if !ok {
		return nil, errors.New("no metrics found for instance: " + instance)
	}
	return snap, nil
}

func (f *fakeSource) List(ctx context.Context, prefix string) ([]*metrics.Snapshot, error) {
	f.listPrefix = prefix
	var out []*metrics.Snapshot
	for _, s := range f.snaps {
		out = append(out, s)
	}
	return out, nil
}

func TestFetch(t *testing.T) {
	src := &fakeSource{snaps: map[string]*metrics.Snapshot{
		"bugzilla-bridge.a": {Instance: "bugzilla-bridge.a", NotificationsReceived: 3},
	}}

	got, err := fetch(context.Background(), src, "bugzilla-bridge.a", "")
	if err != nil || len(got) != 1 || got[0].NotificationsReceived != 3 {
		t.Errorf("fetch(instance) = %v, %v", got, err)
	}

	if _, err := fetch(context.Background(), src, "missing", ""); err == nil {
		t.Error("fetch() for a missing instance should fail")
	}

	got, err = fetch(context.Background(), src, "", "bugzilla-bridge")
	if err != nil || len(got) != 1 {
		t.Errorf("fetch(list) = %v, %v", got, err)
	}
	if src.listPrefix != "bugzilla-bridge" {
		t.Errorf("List prefix = %q", src.listPrefix)
	}
}

func TestWriteSnapshots(t *testing.T) {
	var buf bytes.Buffer
	if err := writeSnapshots(&buf, nil); err != nil {
		t.Fatalf("writeSnapshots() error = %v", err)
	}
	if got := bytes.TrimSpace(buf.Bytes()); string(got) != "[]" {
		t.Errorf("empty output = %s, want []", got)
	}

	buf.Reset()
	snaps := []*metrics.Snapshot{{Instance: "bugzilla-bridge.a", EventsPublished: 2}}
	if err := writeSnapshots(&buf, snaps); err != nil {
		t.Fatalf("writeSnapshots() error = %v", err)
	}
	var decoded []metrics.Snapshot
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(decoded) != 1 || decoded[0].EventsPublished != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

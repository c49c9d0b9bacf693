package metrics

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("bugzilla-bridge.test", nil)

	c.RecordReceived()
	c.RecordReceived()
	c.RecordReceived()
	c.RecordFiltered()
	c.RecordProcessed(10 * time.Millisecond)
	c.RecordProcessed(30 * time.Millisecond)
	c.RecordPublished()
	c.RecordError()
	c.IncrementCustom("records_created")
	c.IncrementCustom("records_created")

	snap := c.Snapshot()
	if snap.Instance != "bugzilla-bridge.test" {
		t.Errorf("Instance = %q", snap.Instance)
	}
	if snap.NotificationsReceived != 3 {
		t.Errorf("NotificationsReceived = %d, want 3", snap.NotificationsReceived)
	}
	if snap.NotificationsFiltered != 1 {
		t.Errorf("NotificationsFiltered = %d, want 1", snap.NotificationsFiltered)
	}
	if snap.NotificationsHandled != 2 {
		t.Errorf("NotificationsHandled = %d, want 2", snap.NotificationsHandled)
	}
	if snap.EventsPublished != 1 || snap.Failures != 1 {
		t.Errorf("EventsPublished/Failures = %d/%d, want 1/1", snap.EventsPublished, snap.Failures)
	}
	if want := float64(20 * time.Millisecond); snap.AvgLatencyNs != want {
		t.Errorf("AvgLatencyNs = %v, want %v", snap.AvgLatencyNs, want)
	}
	if snap.Counters["records_created"] != 2 {
		t.Errorf("Counters[records_created] = %d, want 2", snap.Counters["records_created"])
	}
	if snap.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", snap.Status)
	}
}

func TestCollector_ConcurrentCustomCounters(t *testing.T) {
	c := NewCollector("bugzilla-bridge.test", nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.IncrementCustom("lookup_failures")
				c.RecordReceived()
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap.Counters["lookup_failures"] != 800 {
		t.Errorf("Counters[lookup_failures] = %d, want 800", snap.Counters["lookup_failures"])
	}
	if snap.NotificationsReceived != 800 {
		t.Errorf("NotificationsReceived = %d, want 800", snap.NotificationsReceived)
	}
}

func TestCollector_StartStopWithoutRedis(t *testing.T) {
	c := NewCollector("bugzilla-bridge.test", nil)
	c.SetReportInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	c.Stop()
	c.Stop()
}

func TestDecodeSnapshot(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	interval := int64(DefaultReportInterval)

	tests := []struct {
		name       string
		snap       Snapshot
		wantStatus string
	}{
		{
			name:       "one interval old",
			snap:       Snapshot{Instance: "a", Status: "healthy", ReportIntervalNs: interval, LastUpdated: now.Add(-DefaultReportInterval)},
			wantStatus: "healthy",
		},
		{
			name:       "two missed reports",
			snap:       Snapshot{Instance: "a", Status: "healthy", ReportIntervalNs: interval, LastUpdated: now.Add(-3 * DefaultReportInterval)},
			wantStatus: "stale",
		},
		{
			name:       "stale while the key is still live",
			snap:       Snapshot{Instance: "a", Status: "healthy", ReportIntervalNs: interval, LastUpdated: now.Add(-SnapshotTTL + time.Second)},
			wantStatus: "stale",
		},
		{
			name:       "long interval stays healthy",
			snap:       Snapshot{Instance: "a", Status: "healthy", ReportIntervalNs: int64(5 * time.Minute), LastUpdated: now.Add(-6 * time.Minute)},
			wantStatus: "healthy",
		},
		{
			name:       "missing interval uses default",
			snap:       Snapshot{Instance: "a", Status: "healthy", LastUpdated: now.Add(-90 * time.Second)},
			wantStatus: "stale",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, _ := json.Marshal(&tt.snap)
			snap, err := decodeSnapshot(data, now)
			if err != nil {
				t.Fatalf("decodeSnapshot() error = %v", err)
			}
			if snap.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", snap.Status, tt.wantStatus)
			}
		})
	}

	if _, err := decodeSnapshot([]byte("{"), now); err == nil {
		t.Error("decodeSnapshot() with invalid JSON should fail")
	}
}

func TestKeyTTL_OutlivesStaleness(t *testing.T) {
	for _, interval := range []time.Duration{0, time.Second, DefaultReportInterval, time.Minute, 10 * time.Minute} {
		if ttl, stale := keyTTL(interval), staleAfter(interval); ttl <= stale {
			t.Errorf("interval %v: key TTL %v does not outlive stale threshold %v", interval, ttl, stale)
		}
		if keyTTL(interval) < SnapshotTTL {
			t.Errorf("interval %v: key TTL below SnapshotTTL", interval)
		}
	}
}

func TestCollector_SnapshotCarriesInterval(t *testing.T) {
	c := NewCollector("bugzilla-bridge.test", nil)
	c.SetReportInterval(15 * time.Second)
	if got := c.Snapshot().ReportIntervalNs; got != int64(15*time.Second) {
		t.Errorf("ReportIntervalNs = %d, want %d", got, int64(15*time.Second))
	}
}

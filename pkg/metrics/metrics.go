// Package metrics collects bridge throughput counters and publishes them to Redis.
// A collector without a Redis client keeps counting in memory only.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for bridge instance snapshots.
	KeyPrefix = "metrics:"
	// SnapshotTTL is the minimum time a snapshot stays in Redis if not refreshed.
	// Long report intervals extend it; see keyTTL.
	SnapshotTTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing snapshots to Redis.
	DefaultReportInterval = 30 * time.Second
)

// Snapshot is the point-in-time view of one bridge instance.
type Snapshot struct {
	Instance    string    `json:"instance"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
	Status      string    `json:"status"` // "healthy" or "stale"

	// ReportIntervalNs is the writer's report interval; readers derive staleness from it.
	ReportIntervalNs int64 `json:"report_interval_ns"`

	NotificationsReceived uint64 `json:"notifications_received"`
	NotificationsFiltered uint64 `json:"notifications_filtered"`
	NotificationsHandled  uint64 `json:"notifications_handled"`
	EventsPublished       uint64 `json:"events_published"`
	Failures              uint64 `json:"failures"`

	HandledPerSecond float64 `json:"handled_per_second"`
	AvgLatencyNs     float64 `json:"avg_latency_ns"`

	Counters map[string]uint64 `json:"counters,omitempty"`
}

// Collector counts pipeline outcomes and periodically reports them.
// All Record* methods are safe for concurrent use.
type Collector struct {
	instance       string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	received  atomic.Uint64
	filtered  atomic.Uint64
	handled   atomic.Uint64
	published atomic.Uint64
	failures  atomic.Uint64

	latencyTotalNs atomic.Uint64
	latencyCount   atomic.Uint64

	rateMu      sync.Mutex
	lastReport  time.Time
	lastHandled uint64

	countersMu sync.RWMutex
	counters   map[string]*atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a collector for the named instance. redisClient may be nil.
func NewCollector(instance string, redisClient *redis.Client) *Collector {
	now := time.Now().UTC()
	return &Collector{
		instance:       instance,
		redis:          redisClient,
		startedAt:      now,
		reportInterval: DefaultReportInterval,
		lastReport:     now,
		counters:       make(map[string]*atomic.Uint64),
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing snapshots to Redis.
// It must be called before Start.
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// Start begins periodic reporting. A final snapshot is written on stop.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.report(context.Background())
				return
			case <-c.stopCh:
				c.report(context.Background())
				return
			case <-ticker.C:
				c.report(ctx)
			}
		}
	}()
}

// Stop stops reporting and waits for the final write.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// RecordReceived counts a notification read from the inbound transport.
func (c *Collector) RecordReceived() {
	c.received.Add(1)
}

// RecordFiltered counts a notification dropped by the product filter.
func (c *Collector) RecordFiltered() {
	c.filtered.Add(1)
}

// RecordProcessed counts a notification that reached a terminal outcome.
func (c *Collector) RecordProcessed(latency time.Duration) {
	c.handled.Add(1)
	c.latencyTotalNs.Add(uint64(latency.Nanoseconds()))
	c.latencyCount.Add(1)
}

// RecordPublished counts an outbound event accepted by the sink.
func (c *Collector) RecordPublished() {
	c.published.Add(1)
}

// RecordError counts a per-message failure.
func (c *Collector) RecordError() {
	c.failures.Add(1)
}

// IncrementCustom increments a named counter, creating it on first use.
func (c *Collector) IncrementCustom(name string) {
	c.counter(name).Add(1)
}

func (c *Collector) counter(name string) *atomic.Uint64 {
	c.countersMu.RLock()
	ctr, ok := c.counters[name]
	c.countersMu.RUnlock()
	if ok {
		return ctr
	}

	c.countersMu.Lock()
	defer c.countersMu.Unlock()
	if ctr, ok = c.counters[name]; !ok {
		ctr = &atomic.Uint64{}
		c.counters[name] = ctr
	}
	return ctr
}

// Snapshot returns the current counters without writing to Redis.
func (c *Collector) Snapshot() *Snapshot {
	now := time.Now().UTC()
	handled := c.handled.Load()

	c.rateMu.Lock()
	var rate float64
	if elapsed := now.Sub(c.lastReport).Seconds(); elapsed > 0 {
		rate = float64(handled-c.lastHandled) / elapsed
	}
	c.rateMu.Unlock()

	var avgLatency float64
	if n := c.latencyCount.Load(); n > 0 {
		avgLatency = float64(c.latencyTotalNs.Load()) / float64(n)
	}

	c.countersMu.RLock()
	counters := make(map[string]uint64, len(c.counters))
	for name, ctr := range c.counters {
		counters[name] = ctr.Load()
	}
	c.countersMu.RUnlock()

	return &Snapshot{
		Instance:              c.instance,
		StartedAt:             c.startedAt,
		LastUpdated:           now,
		Status:                "healthy",
		ReportIntervalNs:      int64(c.reportInterval),
		NotificationsReceived: c.received.Load(),
		NotificationsFiltered: c.filtered.Load(),
		NotificationsHandled:  handled,
		EventsPublished:       c.published.Load(),
		Failures:              c.failures.Load(),
		HandledPerSecond:      rate,
		AvgLatencyNs:          avgLatency,
		Counters:              counters,
	}
}

func (c *Collector) report(ctx context.Context) {
	if c.redis == nil {
		return
	}

	snap := c.Snapshot()

	c.rateMu.Lock()
	c.lastReport = snap.LastUpdated
	c.lastHandled = snap.NotificationsHandled
	c.rateMu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("Failed to marshal metrics snapshot", "instance", c.instance, "error", err)
		return
	}

	key := KeyPrefix + c.instance
	if err := c.redis.Set(ctx, key, data, keyTTL(c.reportInterval)).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "instance", c.instance, "error", err)
		return
	}

	slog.Debug("Metrics written to Redis", "instance", c.instance, "key", key)
}

// Reader reads bridge snapshots back from Redis.
type Reader struct {
	redis *redis.Client
}

// NewReader creates a new snapshot reader.
func NewReader(redisClient *redis.Client) *Reader {
	return &Reader{redis: redisClient}
}

// Get retrieves the snapshot of one instance.
// A snapshot older than SnapshotTTL is reported with Status "stale".
func (r *Reader) Get(ctx context.Context, instance string) (*Snapshot, error) {
	data, err := r.redis.Get(ctx, KeyPrefix+instance).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no metrics found for instance: %s", instance)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	return decodeSnapshot(data, time.Now())
}

// List retrieves the snapshots of all instances matching the name prefix, sorted by instance.
func (r *Reader) List(ctx context.Context, prefix string) ([]*Snapshot, error) {
	keys, err := r.redis.Keys(ctx, KeyPrefix+prefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics keys: %w", err)
	}

	snaps := make([]*Snapshot, 0, len(keys))
	for _, key := range keys {
		instance := key[len(KeyPrefix):]
		snap, err := r.Get(ctx, instance)
		if err != nil {
			slog.Warn("Failed to read metrics for instance", "instance", instance, "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Instance < snaps[j].Instance })

	return snaps, nil
}

// staleAfter is the age past which a snapshot counts as stale: two missed reports.
func staleAfter(interval time.Duration) time.Duration {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	return 2 * interval
}

// keyTTL keeps a snapshot in Redis well past the point it turns stale.
func keyTTL(interval time.Duration) time.Duration {
	if ttl := 2 * staleAfter(interval); ttl > SnapshotTTL {
		return ttl
	}
	return SnapshotTTL
}

func decodeSnapshot(data []byte, now time.Time) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	if now.Sub(snap.LastUpdated) > staleAfter(time.Duration(snap.ReportIntervalNs)) {
		snap.Status = "stale"
	}
	return &snap, nil
}

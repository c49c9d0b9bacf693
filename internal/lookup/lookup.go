// Package lookup decides which notifications are of interest and fetches the
// bug state needed to enrich them.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/afikmenashe/bugzilla-bridge/internal/bugzilla"
	"github.com/afikmenashe/bugzilla-bridge/internal/events"
	"github.com/afikmenashe/bugzilla-bridge/internal/timestamp"
)

// DefaultProducts is the allow-list used when none is configured.
var DefaultProducts = []string{"Fedora", "Fedora EPEL"}

// DefaultTimeout bounds the remote fetch of one notification.
const DefaultTimeout = 30 * time.Second

var (
	// ErrMalformedTimestamp wraps failures to parse a notification timestamp.
	ErrMalformedTimestamp = errors.New("malformed notification timestamp")
	// ErrLookupFailed wraps failures to fetch a bug or its history.
	ErrLookupFailed = errors.New("record lookup failed")
)

// RecordService is the remote tracker as seen by the bridge.
type RecordService interface {
	FetchRecord(ctx context.Context, id string) (*bugzilla.Record, error)
	FetchHistory(ctx context.Context, id string) ([]bugzilla.HistoryEvent, error)
}

// Compile-time check that the Bugzilla client satisfies RecordService.
var _ RecordService = (*bugzilla.Client)(nil)

// ParseProducts splits a comma-separated product list, trimming whitespace and
// skipping empty entries.
func ParseProducts(s string) []string {
	var products []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			products = append(products, p)
		}
	}
	return products
}

// Filter holds the product allow-list.
type Filter struct {
	products map[string]struct{}
	names    []string
}

// NewFilter creates a filter. An empty list selects DefaultProducts.
func NewFilter(products []string) *Filter {
	if len(products) == 0 {
		products = DefaultProducts
	}
	f := &Filter{products: make(map[string]struct{}, len(products))}
	for _, p := range products {
		if _, dup := f.products[p]; !dup {
			f.products[p] = struct{}{}
			f.names = append(f.names, p)
		}
	}
	return f
}

// Products returns the allow-list in configuration order.
func (f *Filter) Products() []string {
	return append([]string(nil), f.names...)
}

// Allow reports whether the notification should be processed.
// When it should not, the returned reason is suitable for a log line.
func (f *Filter) Allow(n *events.Notification) (bool, string) {
	if n.Product == nil {
		return false, "message does not bear a product field"
	}
	if _, ok := f.products[*n.Product]; !ok {
		return false, fmt.Sprintf("product %q not in %v", *n.Product, f.names)
	}
	return true, ""
}

// ParseTimestamp normalizes the notification timestamp to a naive wall clock.
func ParseTimestamp(n *events.Notification) (time.Time, error) {
	ts, err := timestamp.ParseNotification(n.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrMalformedTimestamp, err)
	}
	return ts, nil
}

// Enriched is what the correlator needs for one notification.
type Enriched struct {
	Notification *events.Notification
	Timestamp    time.Time
	Record       *bugzilla.Record
	History      []bugzilla.HistoryEvent
}

// Lookup fetches bug state from the remote service under a per-message timeout.
type Lookup struct {
	service RecordService
	timeout time.Duration
}

// New creates a Lookup. A non-positive timeout selects DefaultTimeout.
func New(service RecordService, timeout time.Duration) *Lookup {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Lookup{service: service, timeout: timeout}
}

// Fetch parses the notification timestamp, then fetches the bug and its history.
// Errors wrap ErrMalformedTimestamp or ErrLookupFailed.
func (l *Lookup) Fetch(ctx context.Context, n *events.Notification) (*Enriched, error) {
	ts, err := ParseTimestamp(n)
	if err != nil {
		return nil, err
	}
	if n.RecordID == "" {
		return nil, fmt.Errorf("%w: notification carries no bug_id", ErrLookupFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	slog.Debug("Gathering metadata", "record_id", n.RecordID)
	record, err := l.service.FetchRecord(ctx, n.RecordID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	slog.Debug("Gathering history", "record_id", n.RecordID)
	history, err := l.service.FetchHistory(ctx, n.RecordID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	return &Enriched{
		Notification: n,
		Timestamp:    ts,
		Record:       record,
		History:      history,
	}, nil
}

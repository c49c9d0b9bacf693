package lookup

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/afikmenashe/bugzilla-bridge/internal/bugzilla"
	"github.com/afikmenashe/bugzilla-bridge/internal/events"
)

type fakeService struct {
	record     *bugzilla.Record
	history    []bugzilla.HistoryEvent
	recordErr  error
	historyErr error
	block      bool
	calls      int
}

func (f *fakeService) FetchRecord(ctx context.Context, id string) (*bugzilla.Record, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.record, f.recordErr
}

func (f *fakeService) FetchHistory(ctx context.Context, id string) ([]bugzilla.HistoryEvent, error) {
	return f.history, f.historyErr
}

func strPtr(s string) *string { return &s }

func TestParseProducts(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "Fedora, Fedora EPEL", want: []string{"Fedora", "Fedora EPEL"}},
		{in: " Fedora ,,", want: []string{"Fedora"}},
		{in: "", want: nil},
	}
	for _, tt := range tests {
		if got := ParseProducts(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseProducts(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFilter_Allow(t *testing.T) {
	f := NewFilter([]string{"Fedora", "Fedora EPEL"})

	tests := []struct {
		name    string
		product *string
		want    bool
	}{
		{name: "missing product", product: nil, want: false},
		{name: "unrelated product", product: strPtr("Unrelated Product"), want: false},
		{name: "empty product", product: strPtr(""), want: false},
		{name: "case sensitive", product: strPtr("fedora"), want: false},
		{name: "fedora", product: strPtr("Fedora"), want: true},
		{name: "fedora epel", product: strPtr("Fedora EPEL"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := f.Allow(&events.Notification{Product: tt.product, RecordID: "42"})
			if ok != tt.want {
				t.Errorf("Allow() = %v, want %v", ok, tt.want)
			}
			if !ok && reason == "" {
				t.Error("Allow() should explain a drop")
			}
		})
	}
}

func TestNewFilter_Defaults(t *testing.T) {
	f := NewFilter(nil)
	if got := f.Products(); !reflect.DeepEqual(got, DefaultProducts) {
		t.Errorf("Products() = %v, want %v", got, DefaultProducts)
	}

	dup := NewFilter([]string{"Fedora", "Fedora"})
	if got := dup.Products(); len(got) != 1 {
		t.Errorf("Products() = %v, want duplicates removed", got)
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp(&events.Notification{Timestamp: "2013-05-17T02:33:00+00:00"})
	if err != nil {
		t.Fatalf("ParseTimestamp() error = %v", err)
	}
	if want := time.Date(2013, 5, 17, 2, 33, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("ParseTimestamp() = %v, want %v", got, want)
	}

	if _, err := ParseTimestamp(&events.Notification{Timestamp: "garbage"}); !errors.Is(err, ErrMalformedTimestamp) {
		t.Errorf("ParseTimestamp() error = %v, want ErrMalformedTimestamp", err)
	}
}

func TestLookup_Fetch(t *testing.T) {
	id := 42
	svc := &fakeService{
		record:  &bugzilla.Record{ID: &id},
		history: []bugzilla.HistoryEvent{{Who: "a"}},
	}
	n := &events.Notification{Product: strPtr("Fedora"), RecordID: "42", Timestamp: "2013-05-17T02:33:00+00:00"}

	got, err := New(svc, time.Second).Fetch(context.Background(), n)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got.Record != svc.record || len(got.History) != 1 || got.Notification != n {
		t.Errorf("Fetch() = %+v", got)
	}
	if want := time.Date(2013, 5, 17, 2, 33, 0, 0, time.UTC); !got.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, want)
	}
}

func TestLookup_FetchErrors(t *testing.T) {
	boom := errors.New("connection refused")

	tests := []struct {
		name      string
		svc       *fakeService
		n         *events.Notification
		wantErr   error
		wantCalls int
	}{
		{
			name:      "malformed timestamp skips remote call",
			svc:       &fakeService{},
			n:         &events.Notification{RecordID: "42", Timestamp: "not-a-time"},
			wantErr:   ErrMalformedTimestamp,
			wantCalls: 0,
		},
		{
			name:      "missing bug id",
			svc:       &fakeService{},
			n:         &events.Notification{Timestamp: "2013-05-17T02:33:00+00:00"},
			wantErr:   ErrLookupFailed,
			wantCalls: 0,
		},
		{
			name:      "record fetch fails",
			svc:       &fakeService{recordErr: boom},
			n:         &events.Notification{RecordID: "42", Timestamp: "2013-05-17T02:33:00+00:00"},
			wantErr:   ErrLookupFailed,
			wantCalls: 1,
		},
		{
			name:      "history fetch fails",
			svc:       &fakeService{record: &bugzilla.Record{}, historyErr: boom},
			n:         &events.Notification{RecordID: "42", Timestamp: "2013-05-17T02:33:00+00:00"},
			wantErr:   ErrLookupFailed,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.svc, time.Second).Fetch(context.Background(), tt.n)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
			if tt.svc.calls != tt.wantCalls {
				t.Errorf("FetchRecord calls = %d, want %d", tt.svc.calls, tt.wantCalls)
			}
		})
	}
}

func TestLookup_FetchTimeout(t *testing.T) {
	svc := &fakeService{block: true}
	n := &events.Notification{RecordID: "42", Timestamp: "2013-05-17T02:33:00+00:00"}

	start := time.Now()
	_, err := New(svc, 20*time.Millisecond).Fetch(context.Background(), n)
	if !errors.Is(err, ErrLookupFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Fetch() error = %v, want ErrLookupFailed wrapping DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Fetch() took %v, timeout not applied", elapsed)
	}
}

func TestNew_DefaultTimeout(t *testing.T) {
	if l := New(&fakeService{}, 0); l.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", l.timeout, DefaultTimeout)
	}
}

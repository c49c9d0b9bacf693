// Package timestamp normalizes the timestamps that take part in correlation.
//
// Every value returned by this package is a zone-naive wall clock carried in a
// time.Time whose location is time.UTC, so values from the inbound transport and
// from the remote tracker compare directly.
package timestamp

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrMalformed is returned when a timestamp cannot be parsed.
var ErrMalformed = errors.New("malformed timestamp")

// offsetSuffix matches a trailing zone designator after the time-of-day portion,
// optionally preceded by whitespace: Z, +HH:MM, -HH:MM, +HHMM or +HH.
var offsetSuffix = regexp.MustCompile(`(\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?)\s*(?:Z|z|[+-]\d{2}(?::?\d{2})?)$`)

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02", // midnight
}

var remoteLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"20060102T15:04:05", // XML-RPC dateTime.iso8601
}

// Naive drops the location of t, keeping its wall clock.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// StripOffset removes a trailing zone designator, if any.
func StripOffset(s string) string {
	s = strings.TrimSpace(s)
	if loc := offsetSuffix.FindStringSubmatchIndex(s); loc != nil {
		return s[:loc[3]]
	}
	return s
}

// ParseNotification parses a notification timestamp such as
// "2013-05-17T02:33:00+00:00". The offset is discarded, not applied:
// the result is the naive wall clock 2013-05-17T02:33:00.
func ParseNotification(s string) (time.Time, error) {
	naive := StripOffset(s)
	if naive == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrMalformed)
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, naive, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformed, s)
}

// ParseRemote parses a timestamp returned by the tracker. Zone-aware values are
// converted to UTC before the zone is dropped; the tracker reports UTC.
func ParseRemote(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range remoteLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Naive(t.UTC()), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformed, s)
}

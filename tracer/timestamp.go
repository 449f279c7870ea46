// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tracer

import (
	"encoding/json"
	"time"
)

// Timestamp is an instant at the public boundary. The backend stamps all
// timestamps itself, but records read back from the store may carry strings
// written by older or broken writers. Parsing is therefore tolerant: a
// string that is not valid RFC 3339 is preserved verbatim so the record
// stays readable, at the price of duration math being unavailable for it.
type Timestamp struct {
	time time.Time
	raw  string
}

// Now returns the current instant in UTC.
func Now() Timestamp {
	return Timestamp{time: time.Now().UTC()}
}

// NewTimestamp wraps t. The zero time yields the zero Timestamp.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{time: t}
}

// ParseTimestamp parses s as RFC 3339, accepting both a trailing Z and a
// numeric offset. An unparseable string is kept as-is.
func ParseTimestamp(s string) Timestamp {
	if s == "" {
		return Timestamp{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Timestamp{raw: s}
	}
	return Timestamp{time: t}
}

// Valid reports whether the timestamp carries a parsed, timezone-aware
// instant.
func (ts Timestamp) Valid() bool { return !ts.time.IsZero() }

// IsZero reports whether the timestamp carries neither an instant nor a raw
// string.
func (ts Timestamp) IsZero() bool { return ts.time.IsZero() && ts.raw == "" }

// Time returns the parsed instant. Only meaningful when Valid.
func (ts Timestamp) Time() time.Time { return ts.time }

// String returns the RFC 3339 form, or the raw string for timestamps that
// failed to parse.
func (ts Timestamp) String() string {
	if !ts.Valid() {
		return ts.raw
	}
	return ts.time.Format(time.RFC3339Nano)
}

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*ts = ParseTimestamp(s)
	return nil
}

// DurationMS returns the integer millisecond difference end - start and
// whether it could be computed. It requires both timestamps to be valid.
func DurationMS(start, end Timestamp) (int64, bool) {
	if !start.Valid() || !end.Valid() {
		return 0, false
	}
	return end.Time().Sub(start.Time()).Milliseconds(), true
}

package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// naiveLayouts are accepted timestamp formats that carry no zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	DateLayout,
}

// Timestamp is a point in time as a store reported it. Naive timestamps
// had no zone on the wire; their wall clock is kept in UTC until In
// places it in a reference zone.
type Timestamp struct {
	time.Time
	Naive bool
}

// ParseTimestamp accepts RFC3339 and the common zone-less layouts.
func ParseTimestamp(s string) (Timestamp, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Timestamp{Time: t}, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Timestamp{Time: t, Naive: true}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// In returns the instant ts denotes, reading a naive wall clock in ref.
// ts itself is not modified.
func (ts Timestamp) In(ref *time.Location) time.Time {
	if !ts.Naive {
		return ts.Time
	}
	y, mo, d := ts.Time.Date()
	h, mi, s := ts.Time.Clock()
	return time.Date(y, mo, d, h, mi, s, ts.Time.Nanosecond(), ref)
}

// UnmarshalJSON implements the json.Unmarshaler interface for Timestamp.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		*ts = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// MarshalJSON implements the json.Marshaler interface for Timestamp.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte(`""`), nil
	}
	if ts.Naive {
		return json.Marshal(ts.Time.Format("2006-01-02T15:04:05.999999999"))
	}
	return json.Marshal(ts.Time.Format(time.RFC3339Nano))
}

package model

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar dates on every store.
const DateLayout = "2006-01-02"

// SourceTask represents a task from the canonical store (Anytype).
// Optional fields are nil when the source did not supply them.
type SourceTask struct {
	ID          string
	Name        string
	Description *string
	Status      string
	Project     *string
	// Destination links, one per destination kind.
	TrackID *string
	PlanID  *string
	EventID *string

	LastModified *Timestamp

	// Scheduling
	StartDate *time.Time
	EndDate   *time.Time
	StartTime *TimeOfDay
	EndTime   *TimeOfDay
}

// HasDates reports whether both the start and the end date are set.
func (t *SourceTask) HasDates() bool {
	return t.StartDate != nil && t.EndDate != nil
}

// HasWindow reports whether both ends of the time-of-day window are set.
func (t *SourceTask) HasWindow() bool {
	return t.StartTime != nil && t.EndTime != nil
}

// ProjectName returns the project name or "" when the task has none.
func (t *SourceTask) ProjectName() string {
	if t.Project == nil {
		return ""
	}
	return *t.Project
}

// Clone returns a copy of the task whose pointer fields no longer alias t.
func (t SourceTask) Clone() SourceTask {
	c := t
	c.Description = cloneString(t.Description)
	c.Project = cloneString(t.Project)
	c.TrackID = cloneString(t.TrackID)
	c.PlanID = cloneString(t.PlanID)
	c.EventID = cloneString(t.EventID)
	if t.LastModified != nil {
		lm := *t.LastModified
		c.LastModified = &lm
	}
	c.StartDate = cloneTime(t.StartDate)
	c.EndDate = cloneTime(t.EndDate)
	if t.StartTime != nil {
		st := *t.StartTime
		c.StartTime = &st
	}
	if t.EndTime != nil {
		et := *t.EndTime
		c.EndTime = &et
	}
	return c
}

// TimeOfDay is a wall-clock time without a date, written as "HH:MM".
type TimeOfDay struct {
	Hour   int
	Minute int
}

// At returns a TimeOfDay on the full hour.
func At(hour int) TimeOfDay {
	return TimeOfDay{Hour: hour}
}

// ParseTimeOfDay parses a 24h "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On places the time of day on the given date in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, loc)
}

// DateOf truncates t to midnight in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseDate parses a "2006-01-02" date, or the date part of an RFC3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

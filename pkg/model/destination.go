package model

import "time"

// TimeEntry is a Toggl Track time entry.
type TimeEntry struct {
	ID          int64      `json:"id"`
	Description string     `json:"description,omitempty"`
	ProjectID   *int64     `json:"project_id,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Start       time.Time  `json:"start"`
	Stop        *time.Time `json:"stop,omitempty"`
	Duration    int64      `json:"duration"` // negative while running
	At          *Timestamp `json:"at,omitempty"`
}

// Running reports whether the entry is an open-ended timer.
func (e *TimeEntry) Running() bool {
	return e.Duration < 0
}

// TimeEntryPayload is the write shape for creating or updating a time entry.
type TimeEntryPayload struct {
	Description string   `json:"description"`
	Start       string   `json:"start,omitempty"`
	Duration    *int64   `json:"duration,omitempty"`
	ProjectID   *int64   `json:"project_id,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	WorkspaceID int64    `json:"workspace_id,omitempty"`
	CreatedWith string   `json:"created_with,omitempty"`
}

// PlanTask is a scheduled task on a plan-style destination (Toggl Plan,
// Google Calendar). IDs are strings so both stores fit the same shape.
type PlanTask struct {
	ID           string
	Name         string
	StartDate    *time.Time
	EndDate      *time.Time
	StartTime    *TimeOfDay
	EndTime      *TimeOfDay
	Notes        string
	PlanStatusID *int64
	Status       string
	ProjectID    string
	UpdatedAt    *Timestamp
}

// PlanTaskPayload is the full write shape for a scheduled task. The
// destination replaces its record wholesale with it.
type PlanTaskPayload struct {
	Name             string
	StartDate        time.Time
	EndDate          time.Time
	StartTime        TimeOfDay
	EndTime          TimeOfDay
	Notes            string
	ProjectID        string
	EstimatedMinutes int
	// Exactly one of PlanStatusID and Status is set.
	PlanStatusID *int64
	Status       string
	// SourceID is the linked Source task, for stores that index it
	// outside the notes.
	SourceID string
}

// Project is a destination-side project with its status vocabulary.
type Project struct {
	ID       string
	Name     string
	Statuses []ProjectStatus
}

// ProjectStatus is one entry of a project's status vocabulary.
type ProjectStatus struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// ProjectOptions controls project creation.
type ProjectOptions struct {
	ColorID      int
	BoardEnabled bool
}

// Package status translates Anytype task statuses into destination status
// representations: a project-scoped status id when the destination project
// has a status vocabulary, otherwise a canonical status string.
package status

import (
	"strings"

	"github.com/harrisonrobin/anytoggl/pkg/model"
)

// Source statuses with a fixed meaning.
const (
	SourceToDo       = "To Do"
	SourceInProgress = "In Progress"
	SourceDone       = "Done"
	SourceBlocked    = "Blocked"
	SourceBacklog    = "Backlog"
	SourceCanceled   = "Canceled"
)

// Canonical is the closed set of statuses every destination understands.
type Canonical int

const (
	Todo Canonical = iota
	InProgress
	Done
	Blocked
)

var sourceToCanonical = map[string]Canonical{
	SourceToDo:       Todo,
	SourceInProgress: InProgress,
	SourceDone:       Done,
	SourceBlocked:    Blocked,
	SourceBacklog:    Todo,
	SourceCanceled:   Todo,
}

// Parse maps a source status onto the canonical set. Source statuses are
// case-sensitive. Unrecognized or empty statuses return Todo, false.
func Parse(sourceStatus string) (Canonical, bool) {
	c, ok := sourceToCanonical[sourceStatus]
	if !ok {
		return Todo, false
	}
	return c, true
}

// Key is the vocabulary key (a destination status type) for c.
func (c Canonical) Key() string {
	switch c {
	case InProgress:
		return "in_progress"
	case Done:
		return "done"
	case Blocked:
		return "blocked"
	default:
		return "todo"
	}
}

// String is the canonical status string accepted by destination APIs.
func (c Canonical) String() string {
	switch c {
	case InProgress:
		return "in_progress"
	case Done:
		return "done"
	case Blocked:
		return "blocked"
	default:
		return "to-do"
	}
}

// Vocabulary is a project's status vocabulary, keyed by status type and by
// lowercased status name.
type Vocabulary map[string]int64

// NewVocabulary indexes a project's statuses. Type keys are written before
// name keys of the same status, so a later status name may shadow an
// earlier type.
func NewVocabulary(statuses []model.ProjectStatus) Vocabulary {
	v := make(Vocabulary, len(statuses)*2)
	for _, s := range statuses {
		if s.Type != "" {
			v[s.Type] = s.ID
		}
		if s.Name != "" {
			v[strings.ToLower(s.Name)] = s.ID
		}
	}
	return v
}

// Kind tags a Result.
type Kind int

const (
	Unmapped Kind = iota
	Structured
	CanonicalString
)

func (k Kind) String() string {
	switch k {
	case Structured:
		return "structured"
	case CanonicalString:
		return "canonical"
	default:
		return "unmapped"
	}
}

// Result is the outcome of a status translation.
type Result struct {
	Kind  Kind
	ID    int64  // set when Kind == Structured
	Value string // set when Kind == CanonicalString
}

// StatusID returns the structured status id, if any.
func (r Result) StatusID() (int64, bool) {
	return r.ID, r.Kind == Structured
}

// Map resolves sourceStatus against a project vocabulary. It tries the
// canonical key, then the lowercased raw status, then the vocabulary's todo
// entry. An empty status only matches a "no status" entry.
func Map(vocab Vocabulary, sourceStatus string) Result {
	if sourceStatus == "" {
		if id, ok := vocab["no status"]; ok {
			return Result{Kind: Structured, ID: id}
		}
		return Result{Kind: Unmapped}
	}

	c, _ := Parse(sourceStatus)
	if id, ok := vocab[c.Key()]; ok {
		return Result{Kind: Structured, ID: id}
	}
	if id, ok := vocab[strings.ToLower(sourceStatus)]; ok {
		return Result{Kind: Structured, ID: id}
	}
	if id, ok := vocab[Todo.Key()]; ok {
		return Result{Kind: Structured, ID: id}
	}
	return Result{Kind: Unmapped}
}

// MapToCanonicalString maps sourceStatus to the canonical status string.
func MapToCanonicalString(sourceStatus string) string {
	c, _ := Parse(sourceStatus)
	return c.String()
}

// Resolve is Map with the canonical string as the fallback, so the result
// is never Unmapped.
func Resolve(vocab Vocabulary, sourceStatus string) Result {
	if r := Map(vocab, sourceStatus); r.Kind == Structured {
		return r
	}
	return Result{Kind: CanonicalString, Value: MapToCanonicalString(sourceStatus)}
}

// FromTimeEntry derives a source status from a time entry's state. It
// returns "" when the entry says nothing about progress.
func FromTimeEntry(entry *model.TimeEntry) string {
	switch {
	case entry.Running():
		return SourceInProgress
	case entry.Stop != nil:
		return SourceDone
	default:
		return ""
	}
}

package reconcile

import (
	"errors"
	"fmt"
)

// Guard errors for tasks the scheduled-task variant cannot write.
var (
	ErrNoDates  = errors.New("no start/end date available")
	ErrNoWindow = errors.New("no time window assigned")
)

// Kind is the decision taken for one task.
type Kind int

const (
	Skipped Kind = iota
	Created
	Updated
	Failed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Failed:
		return "failed"
	default:
		return "skipped"
	}
}

// Outcome is the result of syncing one task.
type Outcome struct {
	Kind   Kind
	Reason string
	Err    error
	// DestinationID is the matched or created record, if any.
	DestinationID string
	// Healed is set when the link was recovered from a marker and written
	// back to the Source.
	Healed bool
}

func skipped(reason string) Outcome {
	return Outcome{Kind: Skipped, Reason: reason}
}

func failed(op string, err error) Outcome {
	return Outcome{Kind: Failed, Reason: op, Err: fmt.Errorf("%s: %w", op, err)}
}

// Stats tallies one pass. Failed outcomes are also counted as Skipped.
type Stats struct {
	Created int
	Updated int
	Skipped int
	Failed  int
	Healed  int
}

// Add records o.
func (s *Stats) Add(o Outcome) {
	switch o.Kind {
	case Created:
		s.Created++
	case Updated:
		s.Updated++
	case Failed:
		s.Failed++
		s.Skipped++
	default:
		s.Skipped++
	}
	if o.Healed {
		s.Healed++
	}
}

package reconcile

import (
	"time"

	"github.com/harrisonrobin/anytoggl/pkg/model"
)

// Direction says which side of a matched pair is authoritative.
type Direction int

const (
	// Unknown means a timestamp is missing on either side.
	Unknown Direction = iota
	Equal
	SourceNewer
	DestinationNewer
)

func (d Direction) String() string {
	switch d {
	case Equal:
		return "equal"
	case SourceNewer:
		return "source_newer"
	case DestinationNewer:
		return "destination_newer"
	default:
		return "unknown"
	}
}

// Compare orders two last-modified timestamps. Naive timestamps are read
// as wall clock in ref; the stored values are not changed.
func Compare(source, destination *model.Timestamp, ref *time.Location) Direction {
	if source == nil || destination == nil || source.IsZero() || destination.IsZero() {
		return Unknown
	}
	s, d := source.In(ref), destination.In(ref)
	switch {
	case s.After(d):
		return SourceNewer
	case d.After(s):
		return DestinationNewer
	default:
		return Equal
	}
}

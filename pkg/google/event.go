package google

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/anytoggl/pkg/model"
	"github.com/harrisonrobin/anytoggl/pkg/status"
	"google.golang.org/api/calendar/v3"
)

// Private extended properties written on every managed event.
const (
	PropManaged  = "anytoggl"
	PropStatus   = "anytoggl_status"
	PropSourceID = "anytype_id"
)

// donePrefix marks completed tasks in the event title.
const donePrefix = "✓ "

// EventFromPayload converts a scheduled task into an event in loc.
func EventFromPayload(p model.PlanTaskPayload, loc *time.Location, colorID string) *calendar.Event {
	summary := p.Name
	if p.Status == status.Done.String() {
		summary = donePrefix + summary
	}

	private := map[string]string{
		PropManaged: "true",
		PropStatus:  p.Status,
	}
	if p.SourceID != "" {
		private[PropSourceID] = p.SourceID
	}

	return &calendar.Event{
		Summary:     summary,
		Description: p.Notes,
		ColorId:     colorID,
		Start: &calendar.EventDateTime{
			DateTime: p.StartTime.On(p.StartDate, loc).Format(time.RFC3339),
			TimeZone: loc.String(),
		},
		End: &calendar.EventDateTime{
			DateTime: p.EndTime.On(p.EndDate, loc).Format(time.RFC3339),
			TimeZone: loc.String(),
		},
		ExtendedProperties: &calendar.EventExtendedProperties{Private: private},
	}
}

// TaskFromEvent converts an event on calendarID back into a scheduled task.
// Timed events yield dates and a window in loc; all-day events yield only
// dates.
func TaskFromEvent(ev *calendar.Event, calendarID string, loc *time.Location) (model.PlanTask, error) {
	task := model.PlanTask{
		ID:        ev.Id,
		Name:      strings.TrimPrefix(ev.Summary, donePrefix),
		Notes:     ev.Description,
		ProjectID: calendarID,
	}
	if ev.ExtendedProperties != nil {
		task.Status = ev.ExtendedProperties.Private[PropStatus]
	}
	if ev.Updated != "" {
		ts, err := model.ParseTimestamp(ev.Updated)
		if err != nil {
			return model.PlanTask{}, fmt.Errorf("event %s: %w", ev.Id, err)
		}
		task.UpdatedAt = &ts
	}

	var err error
	task.StartDate, task.StartTime, err = splitDateTime(ev.Start, loc)
	if err != nil {
		return model.PlanTask{}, fmt.Errorf("event %s start: %w", ev.Id, err)
	}
	task.EndDate, task.EndTime, err = splitDateTime(ev.End, loc)
	if err != nil {
		return model.PlanTask{}, fmt.Errorf("event %s end: %w", ev.Id, err)
	}
	return task, nil
}

func splitDateTime(dt *calendar.EventDateTime, loc *time.Location) (*time.Time, *model.TimeOfDay, error) {
	switch {
	case dt == nil:
		return nil, nil, nil
	case dt.DateTime != "":
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return nil, nil, err
		}
		t = t.In(loc)
		date := model.DateOf(t)
		return &date, &model.TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
	case dt.Date != "":
		date, err := model.ParseDate(dt.Date)
		if err != nil {
			return nil, nil, err
		}
		return &date, nil, nil
	}
	return nil, nil, nil
}

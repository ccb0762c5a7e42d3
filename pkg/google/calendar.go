// Package google stores scheduled tasks in Google Calendar. Every writable
// calendar is a project and every managed event is a task; managed events
// are found through a private extended property.
package google

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/harrisonrobin/anytoggl/pkg/colors"
	"github.com/harrisonrobin/anytoggl/pkg/model"
	"github.com/harrisonrobin/anytoggl/pkg/retry"
	"github.com/harrisonrobin/anytoggl/pkg/status"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// DefaultLookback limits how far back ListTasks reads events.
const DefaultLookback = 30 * 24 * time.Hour

// NewService returns a Calendar service authorized by ts.
func NewService(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*calendar.Service, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}
	return srv, nil
}

// Store is a scheduled-task destination backed by Google Calendar.
type Store struct {
	srv      *calendar.Service
	loc      *time.Location
	colors   *colors.Cache
	lookback time.Duration
	now      func() time.Time
	retry    retry.Policy

	calendars     map[string]string // calendar id -> summary
	eventCalendar map[string]string // event id -> calendar id
}

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the zone event times are written and read in.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// WithColors colours events by calendar through the cache.
func WithColors(c *colors.Cache) Option {
	return func(s *Store) { s.colors = c }
}

// WithLookback overrides DefaultLookback.
func WithLookback(d time.Duration) Option {
	return func(s *Store) { s.lookback = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRetry overrides the retry policy.
func WithRetry(p retry.Policy) Option {
	return func(s *Store) { s.retry = p }
}

// NewStore wraps srv.
func NewStore(srv *calendar.Service, opts ...Option) *Store {
	s := &Store{
		srv:           srv,
		loc:           time.UTC,
		lookback:      DefaultLookback,
		now:           time.Now,
		retry:         retry.DefaultPolicy(),
		eventCalendar: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListProjects returns the calendars the user can write to. Calendars have
// no status vocabulary.
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	calendars := make(map[string]string)
	var projects []model.Project
	err := retry.Do(ctx, s.retry, func() error {
		projects = projects[:0]
		clear(calendars)
		return s.srv.CalendarList.List().MinAccessRole("writer").Pages(ctx, func(page *calendar.CalendarList) error {
			for _, item := range page.Items {
				calendars[item.Id] = item.Summary
				projects = append(projects, model.Project{ID: item.Id, Name: item.Summary})
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve calendar list: %w", err)
	}
	s.calendars = calendars
	return projects, nil
}

// CreateProject creates a secondary calendar in the store's time zone.
func (s *Store) CreateProject(ctx context.Context, name string, _ model.ProjectOptions) (*model.Project, error) {
	cal, err := retry.DoValue(ctx, s.retry, func() (*calendar.Calendar, error) {
		return s.srv.Calendars.Insert(&calendar.Calendar{Summary: name, TimeZone: s.loc.String()}).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("create calendar %q: %w", name, err)
	}
	if s.calendars == nil {
		s.calendars = make(map[string]string)
	}
	s.calendars[cal.Id] = cal.Summary
	return &model.Project{ID: cal.Id, Name: cal.Summary}, nil
}

// ListTasks returns managed events from every writable calendar, starting
// the lookback window before now.
func (s *Store) ListTasks(ctx context.Context) ([]model.PlanTask, error) {
	ids, err := s.calendarIDs(ctx)
	if err != nil {
		return nil, err
	}

	timeMin := s.now().Add(-s.lookback).Format(time.RFC3339)
	var tasks []model.PlanTask
	for _, calID := range ids {
		var events []*calendar.Event
		err := retry.Do(ctx, s.retry, func() error {
			events = events[:0]
			return s.srv.Events.List(calID).
				PrivateExtendedProperty(PropManaged+"=true").
				TimeMin(timeMin).
				SingleEvents(true).
				Pages(ctx, func(page *calendar.Events) error {
					events = append(events, page.Items...)
					return nil
				})
		})
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve events from calendar %s: %w", calID, err)
		}
		for _, ev := range events {
			task, err := TaskFromEvent(ev, calID, s.loc)
			if err != nil {
				slog.Warn("skipping unreadable event", "calendar", calID, "event", ev.Id, "error", err)
				continue
			}
			s.eventCalendar[ev.Id] = calID
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// FindTask searches every writable calendar for the managed event made for
// the Source task sourceID, ignoring the lookback window. It returns nil
// when there is none.
func (s *Store) FindTask(ctx context.Context, sourceID string) (*model.PlanTask, error) {
	ids, err := s.calendarIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, calID := range ids {
		events, err := retry.DoValue(ctx, s.retry, func() (*calendar.Events, error) {
			return s.srv.Events.List(calID).
				PrivateExtendedProperty(PropManaged+"=true", PropSourceID+"="+sourceID).
				SingleEvents(true).
				Context(ctx).
				Do()
		})
		if err != nil {
			return nil, fmt.Errorf("search calendar %s for task %s: %w", calID, sourceID, err)
		}
		for _, ev := range events.Items {
			task, err := TaskFromEvent(ev, calID, s.loc)
			if err != nil {
				slog.Warn("skipping unreadable event", "calendar", calID, "event", ev.Id, "error", err)
				continue
			}
			s.eventCalendar[ev.Id] = calID
			return &task, nil
		}
	}
	return nil, nil
}

func (s *Store) calendarIDs(ctx context.Context) ([]string, error) {
	if s.calendars == nil {
		if _, err := s.ListProjects(ctx); err != nil {
			return nil, err
		}
	}
	ids := make([]string, 0, len(s.calendars))
	for id := range s.calendars {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// CreateTask inserts an event into the payload's calendar.
func (s *Store) CreateTask(ctx context.Context, payload model.PlanTaskPayload) (*model.PlanTask, error) {
	if payload.ProjectID == "" {
		return nil, fmt.Errorf("create event %q: no calendar", payload.Name)
	}
	ev := EventFromPayload(payload, s.loc, s.colorFor(payload))
	created, err := retry.DoValue(ctx, s.retry, func() (*calendar.Event, error) {
		return s.srv.Events.Insert(payload.ProjectID, ev).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("create event %q: %w", payload.Name, err)
	}
	s.eventCalendar[created.Id] = payload.ProjectID
	task, err := TaskFromEvent(created, payload.ProjectID, s.loc)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask patches an event listed by ListTasks or made by CreateTask,
// moving it first when the payload names another calendar.
func (s *Store) UpdateTask(ctx context.Context, id string, payload model.PlanTaskPayload) error {
	calID, ok := s.eventCalendar[id]
	if !ok {
		return fmt.Errorf("update event %s: calendar unknown", id)
	}
	if payload.ProjectID != "" && payload.ProjectID != calID {
		_, err := retry.DoValue(ctx, s.retry, func() (*calendar.Event, error) {
			return s.srv.Events.Move(calID, id, payload.ProjectID).Context(ctx).Do()
		})
		if err != nil {
			return fmt.Errorf("move event %s to %s: %w", id, payload.ProjectID, err)
		}
		calID = payload.ProjectID
		s.eventCalendar[id] = calID
	}
	if payload.ProjectID == "" {
		payload.ProjectID = calID
	}

	patch := EventFromPayload(payload, s.loc, s.colorFor(payload))
	_, err := retry.DoValue(ctx, s.retry, func() (*calendar.Event, error) {
		return s.srv.Events.Patch(calID, id, patch).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("update event %s: %w", id, err)
	}
	return nil
}

// DeleteTask removes an event. The sync never calls it.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	calID, ok := s.eventCalendar[id]
	if !ok {
		return fmt.Errorf("delete event %s: calendar unknown", id)
	}
	if err := retry.Do(ctx, s.retry, func() error {
		return s.srv.Events.Delete(calID, id).Context(ctx).Do()
	}); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	delete(s.eventCalendar, id)
	return nil
}

// SaveColors persists the colour cache, if any.
func (s *Store) SaveColors() error {
	if s.colors == nil {
		return nil
	}
	return s.colors.Save()
}

func (s *Store) colorFor(p model.PlanTaskPayload) string {
	if s.colors == nil {
		return ""
	}
	return s.colors.ColorID(s.calendars[p.ProjectID], p.Status != status.Done.String())
}

// Package scheduler assigns dates and time-of-day windows to tasks that do
// not have one yet. It packs windows greedily, in the order tasks are given,
// into a daily working range. Nothing is persisted between runs.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/harrisonrobin/anytoggl/pkg/model"
)

// Config is the daily working range and the length of each window.
type Config struct {
	StartHour     int
	EndHour       int
	DurationHours int
	// RespectExisting makes windows already present on the destination
	// occupy their slots before any assignment.
	RespectExisting bool
}

// DefaultConfig is an 08:00-20:00 day with one-hour windows.
func DefaultConfig() Config {
	return Config{StartHour: 8, EndHour: 20, DurationHours: 1}
}

// Validate checks that at least one window fits in a day.
func (c Config) Validate() error {
	if c.StartHour < 0 || c.EndHour > 24 {
		return fmt.Errorf("working hours %d-%d out of range 0-24", c.StartHour, c.EndHour)
	}
	if c.StartHour >= c.EndHour {
		return fmt.Errorf("start hour %d must be before end hour %d", c.StartHour, c.EndHour)
	}
	if c.DurationHours <= 0 {
		return fmt.Errorf("duration must be positive, got %d", c.DurationHours)
	}
	if c.StartHour+c.DurationHours > c.EndHour {
		return fmt.Errorf("a %dh window does not fit in %02d:00-%02d:00", c.DurationHours, c.StartHour, c.EndHour)
	}
	return nil
}

// Scheduler is safe to reuse across passes; it keeps no state between calls.
type Scheduler struct {
	cfg    Config
	now    func() time.Time
	loc    *time.Location
	logger *slog.Logger
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock sets the source of "today".
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLocation sets the zone in which "today" is computed.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New validates cfg and returns a Scheduler.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:    cfg,
		now:    time.Now,
		loc:    time.Local,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Schedule returns copies of tasks with missing scheduling filled in.
//
// Tasks with both dates keep them and get the next free window on their
// start date; when that day is full they are returned without a window.
// Tasks without both dates get a date and a window from a cursor that
// starts today at StartHour and only moves forward. Windows never overlap
// within a calendar day. existing is read only when RespectExisting is set.
func (s *Scheduler) Schedule(tasks []model.SourceTask, existing []model.PlanTask) []model.SourceTask {
	occ := newOccupancy(s.cfg.StartHour)
	if s.cfg.RespectExisting {
		for i := range existing {
			occ.reserve(&existing[i], s.cfg.EndHour)
		}
	}

	cursor := model.DateOf(s.now().In(s.loc))
	dur := s.cfg.DurationHours
	out := make([]model.SourceTask, 0, len(tasks))

	for _, t := range tasks {
		task := t.Clone()

		switch {
		case task.HasDates() && task.HasWindow():
			// Fully scheduled already.

		case task.HasDates():
			day := *task.StartDate
			start := occ.next(day)
			if start+dur > s.cfg.EndHour {
				s.logger.Warn("no free window left on fixed date",
					"task", task.Name, "date", day.Format(model.DateLayout))
				break
			}
			assign(&task, start, start+dur)
			occ.take(day, start+dur)
			s.logger.Debug("assigned time window",
				"task", task.Name, "window", windowString(&task))

		default:
			for occ.next(cursor)+dur > s.cfg.EndHour {
				cursor = cursor.AddDate(0, 0, 1)
			}
			start := occ.next(cursor)
			day := cursor
			task.StartDate = &day
			task.EndDate = model.Ptr(day)
			assign(&task, start, start+dur)
			occ.take(cursor, start+dur)
			s.logger.Info("auto-scheduled task",
				"task", task.Name, "date", day.Format(model.DateLayout), "window", windowString(&task))
		}

		out = append(out, task)
	}
	return out
}

func assign(t *model.SourceTask, start, end int) {
	t.StartTime = model.Ptr(model.At(start))
	t.EndTime = model.Ptr(model.At(end))
}

func windowString(t *model.SourceTask) string {
	return t.StartTime.String() + "-" + t.EndTime.String()
}

// occupancy tracks the first free hour of each calendar day.
type occupancy struct {
	startHour int
	free      map[string]int
}

func newOccupancy(startHour int) *occupancy {
	return &occupancy{startHour: startHour, free: make(map[string]int)}
}

func dayKey(d time.Time) string {
	return d.Format(model.DateLayout)
}

func (o *occupancy) next(day time.Time) int {
	if h, ok := o.free[dayKey(day)]; ok {
		return h
	}
	return o.startHour
}

func (o *occupancy) take(day time.Time, until int) {
	if until > o.next(day) {
		o.free[dayKey(day)] = until
	}
}

func (o *occupancy) reserve(p *model.PlanTask, endHour int) {
	if p.StartDate == nil || p.EndTime == nil {
		return
	}
	until := p.EndTime.Hour
	if p.EndTime.Minute > 0 {
		until++
	}
	if until > endHour {
		until = endHour
	}
	o.take(*p.StartDate, until)
}

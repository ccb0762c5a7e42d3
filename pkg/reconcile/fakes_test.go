package reconcile

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/harrisonrobin/anytoggl/pkg/anytype"
	"github.com/harrisonrobin/anytoggl/pkg/model"
	"github.com/harrisonrobin/anytoggl/pkg/scheduler"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func ts(s string) *model.Timestamp {
	t, err := model.ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return &t
}

func day(s string) *time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func window(start, end int) (*model.TimeOfDay, *model.TimeOfDay) {
	s, e := model.At(start), model.At(end)
	return &s, &e
}

// scheduledTask has dates and a window, so the scheduler leaves it alone.
func scheduledTask(id, name string, lastModified string) model.SourceTask {
	st, et := window(9, 10)
	t := model.SourceTask{
		ID:        id,
		Name:      name,
		Status:    "To Do",
		StartDate: day("2024-01-02"),
		EndDate:   day("2024-01-02"),
		StartTime: st,
		EndTime:   et,
	}
	if lastModified != "" {
		t.LastModified = ts(lastModified)
	}
	return t
}

type sourceUpdate struct {
	ID     string
	Fields map[string]any
}

type fakeSource struct {
	tasks     []model.SourceTask
	updates   []sourceUpdate
	updateErr error
	searchErr error
}

func (f *fakeSource) SearchTasks(context.Context) ([]model.SourceTask, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	out := make([]model.SourceTask, len(f.tasks))
	for i := range f.tasks {
		out[i] = f.tasks[i].Clone()
	}
	return out, nil
}

func (f *fakeSource) UpdateTask(_ context.Context, id string, fields map[string]any) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, sourceUpdate{ID: id, Fields: fields})
	for i := range f.tasks {
		t := &f.tasks[i]
		if t.ID != id {
			continue
		}
		for k, v := range fields {
			s := v.(string)
			switch k {
			case anytype.KeyPlanID:
				t.PlanID = &s
			case anytype.KeyTrackID:
				t.TrackID = &s
			case anytype.KeyEventID:
				t.EventID = &s
			case anytype.KeyName:
				t.Name = s
			case anytype.KeyStatus:
				t.Status = s
			}
		}
	}
	return nil
}

type planUpdate struct {
	ID      string
	Payload model.PlanTaskPayload
}

type fakePlan struct {
	projects  []model.Project
	tasks     []model.PlanTask
	stamp     *model.Timestamp
	createErr map[string]error
	listErr   error

	listProjectsCalls int
	createdProjects   []string
	created           []model.PlanTaskPayload
	updated           []planUpdate
	nextID            int
}

func (f *fakePlan) ListProjects(context.Context) ([]model.Project, error) {
	f.listProjectsCalls++
	return append([]model.Project(nil), f.projects...), nil
}

func (f *fakePlan) CreateProject(_ context.Context, name string, _ model.ProjectOptions) (*model.Project, error) {
	f.createdProjects = append(f.createdProjects, name)
	p := model.Project{ID: "p-" + name, Name: name}
	f.projects = append(f.projects, p)
	return &p, nil
}

func (f *fakePlan) ListTasks(context.Context) ([]model.PlanTask, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.PlanTask(nil), f.tasks...), nil
}

func (f *fakePlan) CreateTask(_ context.Context, p model.PlanTaskPayload) (*model.PlanTask, error) {
	if err := f.createErr[p.Name]; err != nil {
		return nil, err
	}
	f.created = append(f.created, p)
	f.nextID++
	rec := model.PlanTask{
		ID:        "r" + strconv.Itoa(f.nextID),
		Name:      p.Name,
		StartDate: model.Ptr(p.StartDate),
		Notes:     p.Notes,
		ProjectID: p.ProjectID,
		UpdatedAt: f.stamp,
	}
	f.tasks = append(f.tasks, rec)
	return &rec, nil
}

func (f *fakePlan) UpdateTask(_ context.Context, id string, p model.PlanTaskPayload) error {
	f.updated = append(f.updated, planUpdate{ID: id, Payload: p})
	return nil
}

// boundedPlan lists only records starting on or after visibleFrom, like a
// calendar read through a lookback window. FindTask sees everything.
type boundedPlan struct {
	*fakePlan
	visibleFrom time.Time
	findErr     error
	finds       []string
}

func (b *boundedPlan) ListTasks(ctx context.Context) ([]model.PlanTask, error) {
	all, err := b.fakePlan.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	var visible []model.PlanTask
	for _, r := range all {
		if r.StartDate != nil && !r.StartDate.Before(b.visibleFrom) {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

func (b *boundedPlan) FindTask(_ context.Context, sourceID string) (*model.PlanTask, error) {
	b.finds = append(b.finds, sourceID)
	if b.findErr != nil {
		return nil, b.findErr
	}
	for _, r := range b.tasks {
		if ExtractMarker(r.Notes, MarkerKey) == sourceID {
			return &r, nil
		}
	}
	return nil, nil
}

type fakeTrack struct {
	projects map[string]int64
	entries  []model.TimeEntry
	stamp    *model.Timestamp

	createdProjects []string
	created         []model.TimeEntryPayload
	updated         map[int64]model.TimeEntryPayload
	nextID          int64
}

func (f *fakeTrack) ListProjects(context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(f.projects))
	for k, v := range f.projects {
		out[k] = v
	}
	return out, nil
}

func (f *fakeTrack) CreateProject(_ context.Context, name string) (int64, error) {
	f.createdProjects = append(f.createdProjects, name)
	return 900 + int64(len(f.createdProjects)), nil
}

func (f *fakeTrack) ListTimeEntries(context.Context) ([]model.TimeEntry, error) {
	return append([]model.TimeEntry(nil), f.entries...), nil
}

func (f *fakeTrack) CreateTimeEntry(_ context.Context, p model.TimeEntryPayload) (*model.TimeEntry, error) {
	f.created = append(f.created, p)
	f.nextID++
	e := model.TimeEntry{ID: 100 + f.nextID, Description: p.Description, ProjectID: p.ProjectID, Tags: p.Tags, Duration: *p.Duration, At: f.stamp}
	f.entries = append(f.entries, e)
	return &e, nil
}

func (f *fakeTrack) UpdateTimeEntry(_ context.Context, id int64, p model.TimeEntryPayload) error {
	if f.updated == nil {
		f.updated = make(map[int64]model.TimeEntryPayload)
	}
	f.updated[id] = p
	return nil
}

func newTestScheduler(t *testing.T, cfg scheduler.Config) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New(cfg, scheduler.WithClock(func() time.Time {
		return time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC)
	}), scheduler.WithLocation(time.UTC))
	require.NoError(t, err)
	return s
}

func newPlanEngine(t *testing.T, src *fakeSource, dst PlanStore, opts ...Option) *PlanEngine {
	t.Helper()
	return NewPlanEngine(src, dst, newTestScheduler(t, scheduler.DefaultConfig()), PlanConfig{}, opts...)
}

package reconcile

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/harrisonrobin/anytoggl/pkg/anytype"
	"github.com/harrisonrobin/anytoggl/pkg/model"
	"github.com/harrisonrobin/anytoggl/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stamp = "2024-01-01T10:00:00Z"

func TestPlanCreateTagsMarkerWithoutDescription(t *testing.T) {
	src := &fakeSource{tasks: []model.SourceTask{scheduledTask("T1", "Write", stamp)}}
	dst := &fakePlan{stamp: ts(stamp)}

	stats, err := newPlanEngine(t, src, dst).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Created: 1}, stats)

	require.Len(t, dst.created, 1)
	p := dst.created[0]
	assert.Equal(t, "#anytype_id:T1", p.Notes)
	assert.Equal(t, "T1", p.SourceID)
	assert.Equal(t, "p-"+DefaultProjectName, p.ProjectID)
	assert.Equal(t, DefaultEstimatedMinutes, p.EstimatedMinutes)
	assert.Equal(t, "to-do", p.Status)
	assert.Nil(t, p.PlanStatusID)

	require.Len(t, src.updates, 1)
	assert.Equal(t, map[string]any{anytype.KeyPlanID: "r1"}, src.updates[0].Fields)
}

func TestPlanCreateKeepsDescriptionBeforeMarker(t *testing.T) {
	task := scheduledTask("T1", "Write", stamp)
	task.Description = model.Ptr("first line")
	src := &fakeSource{tasks: []model.SourceTask{task}}
	dst := &fakePlan{}

	_, err := newPlanEngine(t, src, dst).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, dst.created, 1)
	assert.Equal(t, "first line\n\n#anytype_id:T1", dst.created[0].Notes)
}

func TestPlanSecondPassIsNoop(t *testing.T) {
	src := &fakeSource{tasks: []model.SourceTask{
		scheduledTask("T1", "Write", stamp),
		scheduledTask("T2", "Read", stamp),
	}}
	dst := &fakePlan{stamp: ts(stamp)}
	engine := newPlanEngine(t, src, dst)

	first, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	second, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 2}, second)
	assert.Len(t, dst.created, 2)
	assert.Empty(t, dst.updated)
}

func TestPlanHealsLinkOnce(t *testing.T) {
	src := &fakeSource{tasks: []model.SourceTask{scheduledTask("T1", "Write", stamp)}}
	dst := &fakePlan{tasks: []model.PlanTask{{
		ID:        "r9",
		Name:      "Write",
		Notes:     "typed by hand\n\n#anytype_id:T1",
		UpdatedAt: ts(stamp),
	}}}
	engine := newPlanEngine(t, src, dst)

	stats, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 1, Healed: 1}, stats)
	require.Len(t, src.updates, 1)
	assert.Equal(t, map[string]any{anytype.KeyPlanID: "r9"}, src.updates[0].Fields)
	require.NotNil(t, src.tasks[0].PlanID)

	// The link is now stored; no marker scan or heal write is needed.
	stats, err = engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 1}, stats)
	assert.Len(t, src.updates, 1)
	assert.Empty(t, dst.created)
}

func TestPlanHealFailureDoesNotBlockSync(t *testing.T) {
	src := &fakeSource{
		tasks:     []model.SourceTask{scheduledTask("T1", "Write", "2024-01-02T00:00:00Z")},
		updateErr: errBoom,
	}
	dst := &fakePlan{tasks: []model.PlanTask{{ID: "r9", Notes: "#anytype_id:T1", UpdatedAt: ts(stamp)}}}

	stats, err := newPlanEngine(t, src, dst).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Updated: 1}, stats)
	require.Len(t, dst.updated, 1)
	assert.Equal(t, "r9", dst.updated[0].ID)
}

func TestPlanFreshnessDecidesDirection(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		destination *model.Timestamp
		wantUpdates int
	}{
		{"source newer", "2024-01-01T11:00:00Z", ts(stamp), 1},
		{"destination newer", "2024-01-01T09:00:00Z", ts(stamp), 0},
		{"equal", stamp, ts(stamp), 0},
		{"source missing", "", ts(stamp), 0},
		{"destination missing", stamp, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := scheduledTask("T1", "Renamed", tt.source)
			task.PlanID = model.Ptr("r1")
			task.Status = "Done"
			src := &fakeSource{tasks: []model.SourceTask{task}}
			dst := &fakePlan{tasks: []model.PlanTask{{ID: "r1", Name: "Old", UpdatedAt: tt.destination}}}

			stats, err := newPlanEngine(t, src, dst).Run(context.Background())
			require.NoError(t, err)
			require.Len(t, dst.updated, tt.wantUpdates)
			assert.Equal(t, tt.wantUpdates, stats.Updated)
			assert.Empty(t, dst.created)
			if tt.wantUpdates == 1 {
				p := dst.updated[0].Payload
				assert.Equal(t, "Renamed", p.Name)
				assert.Equal(t, "done", p.Status)
				assert.Equal(t, "#anytype_id:T1", p.Notes)
			}
		})
	}
}

func TestPlanNaiveSourceTimestampUsesReferenceZone(t *testing.T) {
	loc := mustLoad(t, "Europe/Berlin")
	// 10:30 Berlin is 09:30Z, older than the record.
	task := scheduledTask("T1", "Write", "2024-01-01T10:30:00")
	task.PlanID = model.Ptr("r1")
	src := &fakeSource{tasks: []model.SourceTask{task}}
	dst := &fakePlan{tasks: []model.PlanTask{{ID: "r1", UpdatedAt: ts(stamp)}}}

	_, err := newPlanEngine(t, src, dst, WithReferenceZone(loc)).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dst.updated)

	// Read as UTC the same wall clock is newer.
	_, err = newPlanEngine(t, src, dst).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, dst.updated, 1)
	assert.True(t, src.tasks[0].LastModified.Naive, "stored timestamp untouched")
}

func TestPlanStatusUsesProjectVocabulary(t *testing.T) {
	done := scheduledTask("T1", "Ship", stamp)
	done.Status = "Done"
	done.Project = model.Ptr("Work")
	running := scheduledTask("T2", "Build", stamp)
	running.Status = "In Progress"
	running.Project = model.Ptr("Work")

	src := &fakeSource{tasks: []model.SourceTask{done, running}}
	dst := &fakePlan{projects: []model.Project{
		{ID: "p-default", Name: DefaultProjectName},
		{ID: "p-work", Name: "Work", Statuses: []model.ProjectStatus{{ID: 55, Type: "done", Name: "Done"}}},
	}}

	stats, err := newPlanEngine(t, src, dst).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Created)
	require.Len(t, dst.created, 2)

	require.NotNil(t, dst.created[0].PlanStatusID)
	assert.Equal(t, int64(55), *dst.created[0].PlanStatusID)
	assert.Empty(t, dst.created[0].Status)

	assert.Nil(t, dst.created[1].PlanStatusID)
	assert.Equal(t, "in_progress", dst.created[1].Status)
	assert.Equal(t, "p-work", dst.created[1].ProjectID)
}

func TestPlanListsProjectsAtMostOncePerPass(t *testing.T) {
	withProject := scheduledTask("T4", "D", stamp)
	withProject.Project = model.Ptr("Home")
	src := &fakeSource{tasks: []model.SourceTask{
		scheduledTask("T1", "A", stamp),
		scheduledTask("T2", "B", stamp),
		scheduledTask("T3", "C", stamp),
		withProject,
	}}
	dst := &fakePlan{}
	engine := newPlanEngine(t, src, dst)

	_, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, dst.listProjectsCalls)
	assert.Equal(t, []string{DefaultProjectName, "Home"}, dst.createdProjects)

	// The default project is remembered across passes.
	_, err = engine.Run(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, dst.listProjectsCalls, 2)
	assert.Len(t, dst.createdProjects, 2)
}

func TestPlanProjectIDOnlySentWhenProjectChanged(t *testing.T) {
	moved := scheduledTask("T1", "A", "2024-01-02T00:00:00Z")
	moved.PlanID = model.Ptr("r1")
	moved.Project = model.Ptr("Home")
	stayed := scheduledTask("T2", "B", "2024-01-02T00:00:00Z")
	stayed.PlanID = model.Ptr("r2")
	stayed.Project = model.Ptr("Work")

	src := &fakeSource{tasks: []model.SourceTask{moved, stayed}}
	dst := &fakePlan{
		projects: []model.Project{{ID: "p-work", Name: "Work"}, {ID: "p-home", Name: "Home"}, {ID: "p-def", Name: DefaultProjectName}},
		tasks: []model.PlanTask{
			{ID: "r1", ProjectID: "p-work", UpdatedAt: ts(stamp)},
			{ID: "r2", ProjectID: "p-work", UpdatedAt: ts(stamp)},
		},
	}

	_, err := newPlanEngine(t, src, dst).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, dst.updated, 2)
	assert.Equal(t, "p-home", dst.updated[0].Payload.ProjectID)
	assert.Empty(t, dst.updated[1].Payload.ProjectID)
}

func TestPlanCreateFailureIsIsolated(t *testing.T) {
	src := &fakeSource{tasks: []model.SourceTask{
		scheduledTask("T1", "bad", stamp),
		scheduledTask("T2", "good", stamp),
	}}
	dst := &fakePlan{createErr: map[string]error{"bad": errBoom}}

	stats, err := newPlanEngine(t, src, dst).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Created: 1, Skipped: 1, Failed: 1}, stats)
	require.Len(t, dst.created, 1)
	assert.Equal(t, "good", dst.created[0].Name)
}

func TestPlanBulkFetchFailureIsFatal(t *testing.T) {
	src := &fakeSource{tasks: []model.SourceTask{scheduledTask("T1", "A", stamp)}}
	dst := &fakePlan{listErr: errBoom}

	_, err := newPlanEngine(t, src, dst).Run(context.Background())
	assert.ErrorIs(t, err, errBoom)

	src.searchErr = errBoom
	dst.listErr = nil
	_, err = newPlanEngine(t, src, dst).Run(context.Background())
	assert.ErrorIs(t, err, errBoom)
}

func TestPlanSchedulesAndSkipsFullDay(t *testing.T) {
	undated := model.SourceTask{ID: "T1", Name: "Undated", LastModified: ts(stamp)}
	first := model.SourceTask{ID: "T2", Name: "Fixed", StartDate: day("2024-01-05"), EndDate: day("2024-01-05")}
	second := model.SourceTask{ID: "T3", Name: "Fixed too", StartDate: day("2024-01-05"), EndDate: day("2024-01-05")}
	src := &fakeSource{tasks: []model.SourceTask{undated, first, second}}
	dst := &fakePlan{}

	sched := newTestScheduler(t, scheduler.Config{StartHour: 8, EndHour: 9, DurationHours: 1})
	stats, err := NewPlanEngine(src, dst, sched, PlanConfig{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Created: 2, Skipped: 1}, stats)

	require.Len(t, dst.created, 2)
	assert.Equal(t, "2024-01-02", dst.created[0].StartDate.Format(model.DateLayout))
	assert.Equal(t, "08:00", dst.created[0].StartTime.String())
	assert.Equal(t, "Fixed", dst.created[1].Name)
}

func TestPlanDryRunWritesNothing(t *testing.T) {
	linked := scheduledTask("T2", "B", "2024-01-02T00:00:00Z")
	src := &fakeSource{tasks: []model.SourceTask{scheduledTask("T1", "A", stamp), linked}}
	dst := &fakePlan{tasks: []model.PlanTask{{ID: "r2", Notes: "#anytype_id:T2", UpdatedAt: ts(stamp)}}}

	stats, err := newPlanEngine(t, src, dst, WithDryRun(true)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Created: 1, Updated: 1}, stats)
	assert.Empty(t, dst.created)
	assert.Empty(t, dst.updated)
	assert.Empty(t, dst.createdProjects)
	assert.Empty(t, src.updates)
}

func TestPlanEventLink(t *testing.T) {
	src := &fakeSource{tasks: []model.SourceTask{scheduledTask("T1", "A", stamp)}}
	dst := &fakePlan{}

	_, err := newPlanEngine(t, src, dst, WithLink(EventLink)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, src.updates, 1)
	assert.Contains(t, src.updates[0].Fields, anytype.KeyEventID)
	require.NotNil(t, src.tasks[0].EventID)
	assert.Nil(t, src.tasks[0].PlanID)
}

func TestPlanLinkedRecordOutsideListingIsNotDuplicated(t *testing.T) {
	src := &fakeSource{tasks: []model.SourceTask{scheduledTask("T1", "Old", stamp)}}
	dst := &boundedPlan{
		fakePlan:    &fakePlan{stamp: ts(stamp)},
		visibleFrom: time.Date(2024, 2, 4, 0, 0, 0, 0, time.UTC),
	}
	engine := newPlanEngine(t, src, dst, WithLink(EventLink))

	for pass := 0; pass < 3; pass++ {
		_, err := engine.Run(context.Background())
		require.NoError(t, err)
	}
	assert.Len(t, dst.created, 1)
	require.NotNil(t, src.tasks[0].EventID)
	assert.Equal(t, "r1", *src.tasks[0].EventID)
	assert.Equal(t, []string{"T1", "T1", "T1"}, dst.finds)
}

func TestPlanHealsRecordOutsideListing(t *testing.T) {
	src := &fakeSource{tasks: []model.SourceTask{scheduledTask("T1", "Old", stamp)}}
	dst := &boundedPlan{
		fakePlan: &fakePlan{tasks: []model.PlanTask{{
			ID:        "r9",
			Notes:     "#anytype_id:T1",
			StartDate: day("2023-12-01"),
			UpdatedAt: ts(stamp),
		}}},
		visibleFrom: time.Date(2024, 2, 4, 0, 0, 0, 0, time.UTC),
	}
	engine := newPlanEngine(t, src, dst)

	stats, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 1, Healed: 1}, stats)
	assert.Empty(t, dst.created)
	require.Len(t, src.updates, 1)
	assert.Equal(t, map[string]any{anytype.KeyPlanID: "r9"}, src.updates[0].Fields)
}

func TestPlanLookupFailureSkipsInsteadOfCreating(t *testing.T) {
	src := &fakeSource{tasks: []model.SourceTask{scheduledTask("T1", "Old", stamp)}}
	dst := &boundedPlan{fakePlan: &fakePlan{}, findErr: errBoom}
	engine := newPlanEngine(t, src, dst)

	stats, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 1, Failed: 1}, stats)
	assert.Empty(t, dst.created)
}

func TestPlanHealsTaskWithoutWindow(t *testing.T) {
	placed := model.SourceTask{ID: "T2", Name: "Placed", StartDate: day("2024-01-05"), EndDate: day("2024-01-05")}
	full := model.SourceTask{ID: "T3", Name: "Day full", StartDate: day("2024-01-05"), EndDate: day("2024-01-05")}
	src := &fakeSource{tasks: []model.SourceTask{placed, full}}
	dst := &fakePlan{tasks: []model.PlanTask{{ID: "r5", Notes: "#anytype_id:T3", UpdatedAt: ts(stamp)}}}

	sched := newTestScheduler(t, scheduler.Config{StartHour: 8, EndHour: 9, DurationHours: 1})
	stats, err := NewPlanEngine(src, dst, sched, PlanConfig{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Created: 1, Skipped: 1, Healed: 1}, stats)
	assert.Contains(t, src.updates, sourceUpdate{ID: "T3", Fields: map[string]any{anytype.KeyPlanID: "r5"}})
	assert.Empty(t, dst.updated)
}

func TestPlanLogsIndexCounts(t *testing.T) {
	src := &fakeSource{tasks: []model.SourceTask{scheduledTask("T1", "Write", stamp)}}
	dst := &fakePlan{tasks: []model.PlanTask{
		{ID: "r1", Notes: "#anytype_id:T1", UpdatedAt: ts(stamp)},
		{ID: "r2", Notes: "added by hand", UpdatedAt: ts(stamp)},
	}}
	var logs bytes.Buffer
	engine := newPlanEngine(t, src, dst, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	_, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "msg=fetched")
	assert.Contains(t, logs.String(), "tasks=1 records=2 marked=1")
}

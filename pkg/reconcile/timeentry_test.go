package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/harrisonrobin/anytoggl/pkg/anytype"
	"github.com/harrisonrobin/anytoggl/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)

func newTimeEntryEngine(src *fakeSource, dst *fakeTrack, opts ...Option) *TimeEntryEngine {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewTimeEntryEngine(src, dst, opts...)
}

func TestTimeEntryCreate(t *testing.T) {
	running := model.SourceTask{ID: "T1", Name: "Code", Status: "In Progress", Project: model.Ptr("Work")}
	stopped := model.SourceTask{ID: "T2", Name: "Plan", Status: "To Do", Project: model.Ptr("New")}
	src := &fakeSource{tasks: []model.SourceTask{running, stopped}}
	dst := &fakeTrack{projects: map[string]int64{"Work": 7}}

	stats, err := newTimeEntryEngine(src, dst).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Created: 2}, stats)

	require.Len(t, dst.created, 2)
	assert.Equal(t, "Code", dst.created[0].Description)
	assert.Equal(t, int64(-1), *dst.created[0].Duration)
	assert.Equal(t, int64(7), *dst.created[0].ProjectID)
	assert.Equal(t, "2024-01-02T08:00:00Z", dst.created[0].Start)
	assert.Equal(t, []string{"#anytype_id:T1"}, dst.created[0].Tags)

	assert.Equal(t, int64(0), *dst.created[1].Duration)
	assert.Equal(t, []string{"New"}, dst.createdProjects)
	assert.Equal(t, int64(901), *dst.created[1].ProjectID)

	require.Len(t, src.updates, 2)
	assert.Equal(t, map[string]any{anytype.KeyTrackID: "101"}, src.updates[0].Fields)
}

func TestTimeEntrySecondPassIsNoop(t *testing.T) {
	src := &fakeSource{tasks: []model.SourceTask{{ID: "T1", Name: "Code", LastModified: ts(stamp)}}}
	dst := &fakeTrack{stamp: ts(stamp)}
	engine := newTimeEntryEngine(src, dst)

	_, err := engine.Run(context.Background())
	require.NoError(t, err)
	stats, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 1}, stats)
	assert.Len(t, dst.created, 1)
	assert.Empty(t, dst.updated)
}

func TestTimeEntryPushesWhenSourceNewer(t *testing.T) {
	task := model.SourceTask{ID: "T1", Name: "Renamed", TrackID: model.Ptr("5"), Project: model.Ptr("Work"), LastModified: ts("2024-01-01T11:00:00Z")}
	src := &fakeSource{tasks: []model.SourceTask{task}}
	dst := &fakeTrack{
		projects: map[string]int64{"Work": 7},
		entries:  []model.TimeEntry{{ID: 5, Description: "Old", At: ts(stamp)}},
	}

	stats, err := newTimeEntryEngine(src, dst).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Updated: 1}, stats)
	require.Contains(t, dst.updated, int64(5))
	assert.Equal(t, "Renamed", dst.updated[5].Description)
	assert.Equal(t, int64(7), *dst.updated[5].ProjectID)
	assert.Empty(t, src.updates)
}

func TestTimeEntryPullsWhenDestinationNewer(t *testing.T) {
	stop := fixedNow
	task := model.SourceTask{ID: "T1", Name: "Old", Status: "In Progress", TrackID: model.Ptr("5"), LastModified: ts("2024-01-01T09:00:00Z")}
	src := &fakeSource{tasks: []model.SourceTask{task}}
	dst := &fakeTrack{entries: []model.TimeEntry{{ID: 5, Description: "New name", Duration: 600, Stop: &stop, At: ts(stamp)}}}

	stats, err := newTimeEntryEngine(src, dst).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Updated: 1}, stats)
	assert.Empty(t, dst.updated)
	require.Len(t, src.updates, 1)
	assert.Equal(t, map[string]any{anytype.KeyName: "New name", anytype.KeyStatus: "Done"}, src.updates[0].Fields)
}

func TestTimeEntryHealsViaTag(t *testing.T) {
	src := &fakeSource{tasks: []model.SourceTask{{ID: "T1", Name: "Code", LastModified: ts(stamp)}}}
	dst := &fakeTrack{entries: []model.TimeEntry{{ID: 42, Tags: []string{"billable", "#anytype_id:T1"}, At: ts(stamp)}}}

	stats, err := newTimeEntryEngine(src, dst).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 1, Healed: 1}, stats)
	assert.Empty(t, dst.created)
	require.Len(t, src.updates, 1)
	assert.Equal(t, map[string]any{anytype.KeyTrackID: "42"}, src.updates[0].Fields)
}

func TestTimeEntrySkipsUnlistedLink(t *testing.T) {
	src := &fakeSource{tasks: []model.SourceTask{{ID: "T1", Name: "Code", TrackID: model.Ptr("999")}}}
	dst := &fakeTrack{}

	stats, err := newTimeEntryEngine(src, dst).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 1}, stats)
	assert.Empty(t, dst.created)
}

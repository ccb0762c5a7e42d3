package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/harrisonrobin/anytoggl/pkg/anytype"
	"github.com/harrisonrobin/anytoggl/pkg/index"
	"github.com/harrisonrobin/anytoggl/pkg/model"
	"github.com/harrisonrobin/anytoggl/pkg/status"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TimeEntryEngine syncs Source tasks with time entries. An "In Progress"
// task becomes a running entry, anything else a zero-length one. The
// marker travels as an entry tag since entries have no notes.
//
// When the entry is newer than the task, its description and running
// state are pulled back into the Source.
type TimeEntryEngine struct {
	base
	dest TimeEntryStore
}

// NewTimeEntryEngine returns an engine writing to dest.
func NewTimeEntryEngine(source SourceStore, dest TimeEntryStore, opts ...Option) *TimeEntryEngine {
	return &TimeEntryEngine{
		base: newBase("toggl_track", source, TrackLink, opts),
		dest: dest,
	}
}

type timeEntryPass struct {
	projects map[string]int64
}

// Run executes one pass.
func (e *TimeEntryEngine) Run(ctx context.Context) (Stats, error) {
	ctx, span := e.startPass(ctx)
	defer span.End()

	tasks, err := e.source.SearchTasks(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Stats{}, fmt.Errorf("fetch source tasks: %w", err)
	}
	entries, err := e.dest.ListTimeEntries(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Stats{}, fmt.Errorf("fetch time entries: %w", err)
	}
	projects, err := e.dest.ListProjects(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Stats{}, fmt.Errorf("fetch projects: %w", err)
	}
	if projects == nil {
		projects = make(map[string]int64)
	}

	pass := &timeEntryPass{projects: projects}
	idx := index.New(entries,
		func(r *model.TimeEntry) string { return strconv.FormatInt(r.ID, 10) },
		func(r *model.TimeEntry) string { return ExtractMarkerFromTags(r.Tags, MarkerKey) },
	)
	e.logger.Info("fetched", "tasks", len(tasks), "entries", idx.Len(), "marked", idx.Linked(), "projects", len(projects))

	var stats Stats
	for i := range tasks {
		t := &tasks[i]
		tctx, tspan := e.startTask(ctx, t)
		o := e.syncTask(tctx, pass, idx, t)
		tspan.SetAttributes(attribute.String("outcome", o.Kind.String()))
		tspan.End()
		e.record(ctx, &stats, t, o)
	}
	e.summary(stats)
	return stats, nil
}

func (e *TimeEntryEngine) syncTask(ctx context.Context, pass *timeEntryPass, idx *index.RecordIndex[model.TimeEntry], t *model.SourceTask) Outcome {
	entry, healed := match(ctx, &e.base, idx, t, func(r *model.TimeEntry) string { return strconv.FormatInt(r.ID, 10) })
	if entry == nil {
		if id := e.link.Get(t); id != nil && *id != "" {
			return Outcome{Kind: Skipped, Reason: "linked time entry not listed", DestinationID: *id}
		}
		return e.create(ctx, pass, t)
	}

	o := e.reconcile(ctx, pass, t, entry)
	o.Healed = healed
	o.DestinationID = strconv.FormatInt(entry.ID, 10)
	return o
}

func (e *TimeEntryEngine) create(ctx context.Context, pass *timeEntryPass, t *model.SourceTask) Outcome {
	projectID, err := e.resolveProject(ctx, pass, t)
	if err != nil {
		return failed("resolve project", err)
	}

	payload := model.TimeEntryPayload{
		Description: t.Name,
		Start:       e.now().UTC().Format(time.RFC3339),
		Duration:    model.Ptr(int64(0)),
		ProjectID:   projectID,
		Tags:        []string{Marker(MarkerKey, t.ID)},
	}
	if t.Status == status.SourceInProgress {
		payload.Duration = model.Ptr(int64(-1))
	}
	if e.dryRun {
		return Outcome{Kind: Created, Reason: "dry run"}
	}

	entry, err := e.dest.CreateTimeEntry(ctx, payload)
	if err != nil {
		return failed("create time entry", err)
	}
	id := strconv.FormatInt(entry.ID, 10)
	e.writeLink(ctx, t, id)
	return Outcome{Kind: Created, DestinationID: id}
}

func (e *TimeEntryEngine) reconcile(ctx context.Context, pass *timeEntryPass, t *model.SourceTask, entry *model.TimeEntry) Outcome {
	switch dir := Compare(t.LastModified, entry.At, e.ref); dir {
	case SourceNewer:
		projectID, err := e.resolveProject(ctx, pass, t)
		if err != nil {
			return failed("resolve project", err)
		}
		if e.dryRun {
			return Outcome{Kind: Updated, Reason: "dry run"}
		}
		payload := model.TimeEntryPayload{Description: t.Name, ProjectID: projectID}
		if err := e.dest.UpdateTimeEntry(ctx, entry.ID, payload); err != nil {
			return failed("update time entry", err)
		}
		return Outcome{Kind: Updated, Reason: "pushed"}

	case DestinationNewer:
		fields := map[string]any{}
		if entry.Description != "" && entry.Description != t.Name {
			fields[anytype.KeyName] = entry.Description
		}
		if s := status.FromTimeEntry(entry); s != "" && s != t.Status {
			fields[anytype.KeyStatus] = s
		}
		if len(fields) == 0 {
			return skipped("time entry newer, nothing to pull")
		}
		if e.dryRun {
			return Outcome{Kind: Updated, Reason: "dry run"}
		}
		if err := e.source.UpdateTask(ctx, t.ID, fields); err != nil {
			return failed("pull time entry", err)
		}
		return Outcome{Kind: Updated, Reason: "pulled"}

	default:
		return skipped("timestamps " + dir.String())
	}
}

// resolveProject maps the task's project name to an id, creating the
// project on first use. Tasks without a project get no project.
func (e *TimeEntryEngine) resolveProject(ctx context.Context, pass *timeEntryPass, t *model.SourceTask) (*int64, error) {
	name := t.ProjectName()
	if name == "" {
		return nil, nil
	}
	if id, ok := pass.projects[name]; ok {
		return &id, nil
	}
	if e.dryRun {
		return nil, nil
	}
	id, err := e.dest.CreateProject(ctx, name)
	if err != nil {
		return nil, err
	}
	e.logger.Info("created project", "project", name, "project_id", id)
	pass.projects[name] = id
	return &id, nil
}

package reconcile

import (
	"context"
	"fmt"

	"github.com/harrisonrobin/anytoggl/pkg/index"
	"github.com/harrisonrobin/anytoggl/pkg/model"
	"github.com/harrisonrobin/anytoggl/pkg/scheduler"
	"github.com/harrisonrobin/anytoggl/pkg/status"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Defaults for PlanConfig.
const (
	DefaultProjectName      = "Anytype Sync"
	DefaultEstimatedMinutes = 60
)

// PlanConfig holds the scheduled-task variant's settings.
type PlanConfig struct {
	// Name is used in logs and metrics, e.g. "toggl_plan".
	Name                    string
	DefaultProjectName      string
	DefaultEstimatedMinutes int
}

// PlanEngine syncs Source tasks one way into a scheduled-task store. Tasks
// without a date or time window are scheduled first; tasks still lacking
// one are skipped.
type PlanEngine struct {
	base
	dest      PlanStore
	scheduler *scheduler.Scheduler
	cfg       PlanConfig

	// Memoized for the engine's lifetime.
	defaultProjectID string
}

// NewPlanEngine returns an engine writing to dest. The Source link
// defaults to PlanLink; override it with WithLink.
func NewPlanEngine(source SourceStore, dest PlanStore, sched *scheduler.Scheduler, cfg PlanConfig, opts ...Option) *PlanEngine {
	if cfg.Name == "" {
		cfg.Name = "toggl_plan"
	}
	if cfg.DefaultProjectName == "" {
		cfg.DefaultProjectName = DefaultProjectName
	}
	if cfg.DefaultEstimatedMinutes <= 0 {
		cfg.DefaultEstimatedMinutes = DefaultEstimatedMinutes
	}
	return &PlanEngine{
		base:      newBase(cfg.Name, source, PlanLink, opts),
		dest:      dest,
		scheduler: sched,
		cfg:       cfg,
	}
}

// planPass holds the caches of one pass. Projects are listed at most once.
type planPass struct {
	listed       bool
	projects     map[string]string // name -> id
	vocabularies map[string]status.Vocabulary
}

func newPlanPass() *planPass {
	return &planPass{
		projects:     make(map[string]string),
		vocabularies: make(map[string]status.Vocabulary),
	}
}

func (p *planPass) add(project model.Project) {
	if _, exists := p.projects[project.Name]; !exists {
		p.projects[project.Name] = project.ID
	}
	if len(project.Statuses) > 0 {
		p.vocabularies[project.ID] = status.NewVocabulary(project.Statuses)
	}
}

// Run executes one pass.
func (e *PlanEngine) Run(ctx context.Context) (Stats, error) {
	ctx, span := e.startPass(ctx)
	defer span.End()

	pass := newPlanPass()
	if _, err := e.ensureDefaultProject(ctx, pass); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Stats{}, fmt.Errorf("resolve default project %q: %w", e.cfg.DefaultProjectName, err)
	}

	tasks, err := e.source.SearchTasks(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Stats{}, fmt.Errorf("fetch source tasks: %w", err)
	}
	records, err := e.dest.ListTasks(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Stats{}, fmt.Errorf("fetch destination tasks: %w", err)
	}

	scheduled := e.scheduler.Schedule(tasks, records)
	idx := index.New(records,
		func(r *model.PlanTask) string { return r.ID },
		func(r *model.PlanTask) string { return ExtractMarker(r.Notes, MarkerKey) },
	)
	e.logger.Info("fetched", "tasks", len(tasks), "records", idx.Len(), "marked", idx.Linked())

	var stats Stats
	for i := range scheduled {
		t := &scheduled[i]
		tctx, tspan := e.startTask(ctx, t)
		o := e.syncTask(tctx, pass, idx, t)
		tspan.SetAttributes(attribute.String("outcome", o.Kind.String()))
		tspan.End()
		e.record(ctx, &stats, t, o)
	}
	e.summary(stats)
	return stats, nil
}

func (e *PlanEngine) syncTask(ctx context.Context, pass *planPass, idx *index.RecordIndex[model.PlanTask], t *model.SourceTask) Outcome {
	idOf := func(r *model.PlanTask) string { return r.ID }
	rec, healed := match(ctx, &e.base, idx, t, idOf)
	if rec == nil {
		found, err := e.find(ctx, idx, t)
		if err != nil {
			return failed("look up record", err)
		}
		if found != nil {
			rec, healed = match(ctx, &e.base, idx, t, idOf)
		}
	}

	var o Outcome
	switch {
	case !t.HasDates():
		o = Outcome{Kind: Skipped, Reason: "not scheduled", Err: ErrNoDates}
	case !t.HasWindow():
		o = Outcome{Kind: Skipped, Reason: "not scheduled", Err: ErrNoWindow}
	case rec == nil:
		return e.create(ctx, pass, t)
	default:
		switch dir := Compare(t.LastModified, rec.UpdatedAt, e.ref); dir {
		case SourceNewer:
			o = e.update(ctx, pass, t, rec)
		case DestinationNewer:
			o = skipped("destination newer")
		default:
			o = skipped("timestamps " + dir.String())
		}
	}
	o.Healed = healed
	if rec != nil {
		o.DestinationID = rec.ID
	}
	return o
}

// find asks a PlanFinder for t's record when the listing missed it, and
// indexes what it finds.
func (e *PlanEngine) find(ctx context.Context, idx *index.RecordIndex[model.PlanTask], t *model.SourceTask) (*model.PlanTask, error) {
	finder, ok := e.dest.(PlanFinder)
	if !ok {
		return nil, nil
	}
	rec, err := finder.FindTask(ctx, t.ID)
	if err != nil || rec == nil {
		return nil, err
	}
	e.logger.Debug("found record outside listing", "task_id", t.ID, "record_id", rec.ID)
	return idx.Add(*rec), nil
}

func (e *PlanEngine) create(ctx context.Context, pass *planPass, t *model.SourceTask) Outcome {
	projectID, err := e.projectID(ctx, pass, t)
	if err != nil {
		return failed("resolve project", err)
	}
	payload := e.payload(ctx, pass, t, projectID)
	if e.dryRun {
		return Outcome{Kind: Created, Reason: "dry run"}
	}

	created, err := e.dest.CreateTask(ctx, payload)
	if err != nil {
		return failed("create task", err)
	}
	e.writeLink(ctx, t, created.ID)
	return Outcome{Kind: Created, DestinationID: created.ID}
}

func (e *PlanEngine) update(ctx context.Context, pass *planPass, t *model.SourceTask, rec *model.PlanTask) Outcome {
	projectID, err := e.projectID(ctx, pass, t)
	if err != nil {
		return failed("resolve project", err)
	}
	payload := e.payload(ctx, pass, t, projectID)
	// The record keeps its project unless the Source moved it.
	if projectID == rec.ProjectID {
		payload.ProjectID = ""
	}
	if e.dryRun {
		return Outcome{Kind: Updated, Reason: "dry run"}
	}
	if err := e.dest.UpdateTask(ctx, rec.ID, payload); err != nil {
		return failed("update task", err)
	}
	return Outcome{Kind: Updated}
}

// payload builds the full write shape. t must have dates and a window.
func (e *PlanEngine) payload(ctx context.Context, pass *planPass, t *model.SourceTask, projectID string) model.PlanTaskPayload {
	p := model.PlanTaskPayload{
		Name:             t.Name,
		StartDate:        *t.StartDate,
		EndDate:          *t.EndDate,
		StartTime:        *t.StartTime,
		EndTime:          *t.EndTime,
		Notes:            BuildNotes(t.Description, MarkerKey, t.ID),
		ProjectID:        projectID,
		EstimatedMinutes: e.cfg.DefaultEstimatedMinutes,
		SourceID:         t.ID,
	}
	r := status.Resolve(e.vocabulary(ctx, pass, projectID), t.Status)
	if id, ok := r.StatusID(); ok {
		p.PlanStatusID = &id
	} else {
		p.Status = r.Value
	}
	return p
}

// vocabulary returns the project's status vocabulary, listing projects
// if this pass has not done so yet.
func (e *PlanEngine) vocabulary(ctx context.Context, pass *planPass, projectID string) status.Vocabulary {
	if v, ok := pass.vocabularies[projectID]; ok || pass.listed {
		return v
	}
	if err := e.listProjects(ctx, pass); err != nil {
		e.logger.Warn("could not load status vocabulary", "project_id", projectID, "error", err)
	}
	return pass.vocabularies[projectID]
}

func (e *PlanEngine) listProjects(ctx context.Context, pass *planPass) error {
	if pass.listed {
		return nil
	}
	projects, err := e.dest.ListProjects(ctx)
	if err != nil {
		return err
	}
	pass.listed = true
	for _, p := range projects {
		pass.add(p)
	}
	return nil
}

// projectID resolves the task's project by name, creating it on a miss.
// Tasks without a project use the default project.
func (e *PlanEngine) projectID(ctx context.Context, pass *planPass, t *model.SourceTask) (string, error) {
	name := t.ProjectName()
	if name == "" {
		return e.ensureDefaultProject(ctx, pass)
	}
	return e.findOrCreateProject(ctx, pass, name)
}

func (e *PlanEngine) ensureDefaultProject(ctx context.Context, pass *planPass) (string, error) {
	if e.defaultProjectID != "" {
		return e.defaultProjectID, nil
	}
	id, err := e.findOrCreateProject(ctx, pass, e.cfg.DefaultProjectName)
	if err != nil {
		return "", err
	}
	e.defaultProjectID = id
	return id, nil
}

func (e *PlanEngine) findOrCreateProject(ctx context.Context, pass *planPass, name string) (string, error) {
	if id, ok := pass.projects[name]; ok {
		return id, nil
	}
	if err := e.listProjects(ctx, pass); err != nil {
		return "", err
	}
	if id, ok := pass.projects[name]; ok {
		return id, nil
	}
	if e.dryRun {
		e.logger.Info("would create project", "project", name)
		return "", nil
	}

	project, err := e.dest.CreateProject(ctx, name, model.ProjectOptions{BoardEnabled: true})
	if err != nil {
		return "", fmt.Errorf("create project %q: %w", name, err)
	}
	e.logger.Info("created project", "project", name, "project_id", project.ID)
	pass.add(*project)
	return project.ID, nil
}

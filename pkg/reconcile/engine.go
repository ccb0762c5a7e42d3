// Package reconcile runs sync passes between the Anytype task store and a
// destination. A pass fetches both sides, matches each Source task to at
// most one destination record (by stored link, then by back-reference
// marker), and creates, updates or skips it. Per-task failures never abort
// a pass; only the bulk fetches and the default project are pass-fatal.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/harrisonrobin/anytoggl/pkg/anytype"
	"github.com/harrisonrobin/anytoggl/pkg/index"
	"github.com/harrisonrobin/anytoggl/pkg/model"
	"github.com/harrisonrobin/anytoggl/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/harrisonrobin/anytoggl/reconcile"

// SourceStore is the canonical task store.
type SourceStore interface {
	SearchTasks(ctx context.Context) ([]model.SourceTask, error)
	// UpdateTask patches only the given fields.
	UpdateTask(ctx context.Context, id string, fields map[string]any) error
}

// TimeEntryStore is a time-tracking destination.
type TimeEntryStore interface {
	ListProjects(ctx context.Context) (map[string]int64, error)
	CreateProject(ctx context.Context, name string) (int64, error)
	ListTimeEntries(ctx context.Context) ([]model.TimeEntry, error)
	CreateTimeEntry(ctx context.Context, payload model.TimeEntryPayload) (*model.TimeEntry, error)
	UpdateTimeEntry(ctx context.Context, id int64, payload model.TimeEntryPayload) error
}

// PlanStore is a scheduled-task destination.
type PlanStore interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
	CreateProject(ctx context.Context, name string, opts model.ProjectOptions) (*model.Project, error)
	ListTasks(ctx context.Context) ([]model.PlanTask, error)
	CreateTask(ctx context.Context, payload model.PlanTaskPayload) (*model.PlanTask, error)
	UpdateTask(ctx context.Context, id string, payload model.PlanTaskPayload) error
}

// PlanFinder is implemented by plan stores whose ListTasks only covers a
// window of time. FindTask looks up the record made for the Source task
// sourceID outside that window and returns nil when there is none.
type PlanFinder interface {
	FindTask(ctx context.Context, sourceID string) (*model.PlanTask, error)
}

// Link is the Source property holding a destination's foreign id.
type Link struct {
	Property string
	Get      func(*model.SourceTask) *string
}

// Links for each destination kind.
var (
	TrackLink = Link{Property: anytype.KeyTrackID, Get: func(t *model.SourceTask) *string { return t.TrackID }}
	PlanLink  = Link{Property: anytype.KeyPlanID, Get: func(t *model.SourceTask) *string { return t.PlanID }}
	EventLink = Link{Property: anytype.KeyEventID, Get: func(t *model.SourceTask) *string { return t.EventID }}
)

// Option configures an engine.
type Option func(*base)

// WithLogger sets the logger; slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(b *base) { b.logger = l }
}

// WithDryRun computes and logs decisions without writing anything.
func WithDryRun(dryRun bool) Option {
	return func(b *base) { b.dryRun = dryRun }
}

// WithReferenceZone sets the zone naive timestamps are read in (UTC).
func WithReferenceZone(loc *time.Location) Option {
	return func(b *base) { b.ref = loc }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithLink overrides the destination's default Source link property.
func WithLink(l Link) Option {
	return func(b *base) { b.link = l }
}

// base holds what both engine variants share.
type base struct {
	name   string
	source SourceStore
	link   Link
	logger *slog.Logger
	dryRun bool
	ref    *time.Location
	now    func() time.Time

	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

func newBase(name string, source SourceStore, link Link, opts []Option) base {
	b := base{
		name:   name,
		source: source,
		link:   link,
		logger: slog.Default(),
		ref:    time.UTC,
		now:    time.Now,
		tracer: telemetry.Tracer(scope),
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.With("destination", name)
	b.outcomes, _ = telemetry.Meter(scope).Int64Counter("anytoggl.sync.outcomes",
		metric.WithDescription("Per-task sync decisions"),
		metric.WithUnit("{task}"),
	)
	return b
}

// match finds t's record: by stored link first, then by marker. A marker
// match is healed by writing the record id back to the Source.
func match[R any](ctx context.Context, b *base, idx *index.RecordIndex[R], t *model.SourceTask, idOf func(*R) string) (rec *R, healed bool) {
	if id := b.link.Get(t); id != nil && *id != "" {
		if rec := idx.Get(*id); rec != nil {
			return rec, false
		}
	}
	rec = idx.BySource(t.ID)
	if rec == nil {
		return nil, false
	}

	foreign := idOf(rec)
	b.logger.Info("matched task via marker, healing link", "task_id", t.ID, "task", t.Name, "record_id", foreign)
	if b.dryRun {
		return rec, false
	}
	if err := b.source.UpdateTask(ctx, t.ID, map[string]any{b.link.Property: foreign}); err != nil {
		b.logger.Error("failed to heal link", "task_id", t.ID, "task", t.Name, "error", err)
		return rec, false
	}
	return rec, true
}

// writeLink stores a newly created record's id on the Source task. A
// failure is only logged: the marker lets the next pass heal the link.
func (b *base) writeLink(ctx context.Context, t *model.SourceTask, id string) {
	if err := b.source.UpdateTask(ctx, t.ID, map[string]any{b.link.Property: id}); err != nil {
		b.logger.Error("failed to store link", "task_id", t.ID, "task", t.Name, "record_id", id, "error", err)
	}
}

func (b *base) record(ctx context.Context, stats *Stats, t *model.SourceTask, o Outcome) {
	stats.Add(o)
	b.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("destination", b.name),
		attribute.String("kind", o.Kind.String()),
	))

	attrs := []any{"task_id", t.ID, "task", t.Name, "outcome", o.Kind.String()}
	if o.DestinationID != "" {
		attrs = append(attrs, "record_id", o.DestinationID)
	}
	if o.Reason != "" {
		attrs = append(attrs, "reason", o.Reason)
	}
	if b.dryRun {
		attrs = append(attrs, "dry_run", true)
	}
	switch o.Kind {
	case Failed:
		b.logger.Error("task sync failed", append(attrs, "error", o.Err)...)
	case Created, Updated:
		b.logger.Info("task synced", attrs...)
	default:
		if o.Err != nil {
			b.logger.Warn("skipping task", append(attrs, "error", o.Err)...)
		} else {
			b.logger.Debug("skipping task", attrs...)
		}
	}
}

func (b *base) summary(stats Stats) {
	b.logger.Info("sync complete",
		"created", stats.Created,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"healed", stats.Healed,
	)
}

func (b *base) startPass(ctx context.Context) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, "reconcile.pass", trace.WithAttributes(
		attribute.String("destination", b.name),
		attribute.Bool("dry_run", b.dryRun),
	))
}

func (b *base) startTask(ctx context.Context, t *model.SourceTask) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, "reconcile.task", trace.WithAttributes(
		attribute.String("task.id", t.ID),
	))
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrisonrobin/anytoggl/pkg/anytype"
	"github.com/harrisonrobin/anytoggl/pkg/auth"
	"github.com/harrisonrobin/anytoggl/pkg/colors"
	"github.com/harrisonrobin/anytoggl/pkg/config"
	"github.com/harrisonrobin/anytoggl/pkg/google"
	"github.com/harrisonrobin/anytoggl/pkg/plan"
	"github.com/harrisonrobin/anytoggl/pkg/reconcile"
	"github.com/harrisonrobin/anytoggl/pkg/scheduler"
	"github.com/harrisonrobin/anytoggl/pkg/toggl"
)

// engine is one sync variant.
type engine interface {
	Run(ctx context.Context) (reconcile.Stats, error)
}

// app holds the loaded config and the resources opened for one command.
type app struct {
	opts   *RootOptions
	cfg    *config.Config
	loc    *time.Location
	logger *slog.Logger
	tokens *auth.TokenStore
}

func newApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &app{opts: opts, cfg: cfg, loc: loc, logger: slog.Default()}, nil
}

func (a *app) Close() error {
	if a.tokens == nil {
		return nil
	}
	return a.tokens.Close()
}

func (a *app) require(target string) error {
	if missing := a.cfg.Missing(target); len(missing) > 0 {
		return fmt.Errorf("missing configuration for %s: %s (see `anytoggl config set`)", target, strings.Join(missing, ", "))
	}
	return nil
}

func (a *app) tokenStore() (*auth.TokenStore, error) {
	if a.tokens != nil {
		return a.tokens, nil
	}
	store, err := auth.OpenTokenStore(a.cfg.Sync.TokenDB)
	if err != nil {
		return nil, err
	}
	a.tokens = store
	return store, nil
}

func (a *app) source() *anytype.Client {
	c := a.cfg.Anytype
	return anytype.NewClient(c.APIURL, c.Token, c.SpaceID).
		WithTag(c.Tag).
		WithLogger(a.logger.With("store", "anytype"))
}

func (a *app) engineOptions(name string) []reconcile.Option {
	return []reconcile.Option{
		reconcile.WithLogger(a.logger.With("engine", name)),
		reconcile.WithDryRun(a.opts.DryRun),
		reconcile.WithReferenceZone(a.loc),
	}
}

func (a *app) scheduler() (*scheduler.Scheduler, error) {
	c := a.cfg.Scheduler
	return scheduler.New(scheduler.Config{
		StartHour:       c.StartHour,
		EndHour:         c.EndHour,
		DurationHours:   c.DurationHours,
		RespectExisting: c.RespectExisting,
	}, scheduler.WithLocation(a.loc), scheduler.WithLogger(a.logger.With("component", "scheduler")))
}

func (a *app) trackEngine() (engine, error) {
	if err := a.require(config.TargetTrack); err != nil {
		return nil, err
	}
	dest := toggl.NewClient(a.cfg.Toggl.APIToken, a.cfg.Toggl.WorkspaceID)
	return reconcile.NewTimeEntryEngine(a.source(), dest, a.engineOptions("toggl_track")...), nil
}

func (a *app) planClient(ctx context.Context) (*plan.Client, error) {
	if err := a.require(config.TargetPlan); err != nil {
		return nil, err
	}
	store, err := a.tokenStore()
	if err != nil {
		return nil, err
	}
	c := a.cfg.Plan
	oauthCfg := plan.OAuthConfig(c.BaseURL, c.ClientID, c.ClientSecret)
	authenticate, refresh := auth.PasswordGrant(oauthCfg, c.Username, c.Password)
	ts, err := auth.NewCachingTokenSource(ctx, store, auth.KeyTogglPlan, a.cfg.Sync.RefreshBuffer, authenticate, refresh)
	if err != nil {
		return nil, err
	}
	return plan.NewClient(c.BaseURL, c.WorkspaceID, ts), nil
}

func (a *app) planEngine(ctx context.Context) (engine, error) {
	dest, err := a.planClient(ctx)
	if err != nil {
		return nil, err
	}
	sched, err := a.scheduler()
	if err != nil {
		return nil, err
	}
	cfg := reconcile.PlanConfig{
		Name:                    "toggl_plan",
		DefaultProjectName:      a.cfg.Sync.DefaultProject,
		DefaultEstimatedMinutes: a.cfg.Sync.EstimatedMinutes,
	}
	return reconcile.NewPlanEngine(a.source(), dest, sched, cfg, a.engineOptions(cfg.Name)...), nil
}

func (a *app) calendarStore(ctx context.Context) (*google.Store, error) {
	if err := a.require(config.TargetCalendar); err != nil {
		return nil, err
	}
	oauthCfg, err := auth.GoogleConfig(a.cfg.Google.Credentials, auth.CalendarScopes...)
	if err != nil {
		return nil, err
	}
	store, err := a.tokenStore()
	if err != nil {
		return nil, err
	}
	ts, err := auth.GoogleTokenSource(ctx, store, oauthCfg, a.cfg.Sync.RefreshBuffer)
	if err != nil {
		return nil, err
	}
	srv, err := google.NewService(ctx, ts)
	if err != nil {
		return nil, err
	}

	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	palette, err := colors.Open(filepath.Join(dir, colors.FileName))
	if err != nil {
		return nil, err
	}
	opts := []google.Option{google.WithLocation(a.loc), google.WithColors(palette)}
	if days := a.cfg.Google.LookbackDays; days > 0 {
		opts = append(opts, google.WithLookback(time.Duration(days)*24*time.Hour))
	}
	return google.NewStore(srv, opts...), nil
}

// calendarEngine saves the colour cache after every pass.
type calendarEngine struct {
	*reconcile.PlanEngine
	store *google.Store
}

func (e calendarEngine) Run(ctx context.Context) (reconcile.Stats, error) {
	stats, err := e.PlanEngine.Run(ctx)
	if saveErr := e.store.SaveColors(); saveErr != nil {
		err = errors.Join(err, fmt.Errorf("save colour cache: %w", saveErr))
	}
	return stats, err
}

func (a *app) calendarEngine(ctx context.Context) (engine, error) {
	dest, err := a.calendarStore(ctx)
	if err != nil {
		return nil, err
	}
	sched, err := a.scheduler()
	if err != nil {
		return nil, err
	}
	cfg := reconcile.PlanConfig{
		Name:                    "google_calendar",
		DefaultProjectName:      a.cfg.Sync.DefaultProject,
		DefaultEstimatedMinutes: a.cfg.Sync.EstimatedMinutes,
	}
	opts := append(a.engineOptions(cfg.Name), reconcile.WithLink(reconcile.EventLink))
	return calendarEngine{
		PlanEngine: reconcile.NewPlanEngine(a.source(), dest, sched, cfg, opts...),
		store:      dest,
	}, nil
}

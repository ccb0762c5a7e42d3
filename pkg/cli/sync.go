package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// engineFactory builds the engine for one command invocation.
type engineFactory func(ctx context.Context, a *app) (engine, error)

func trackFactory(_ context.Context, a *app) (engine, error) { return a.trackEngine() }
func planFactory(ctx context.Context, a *app) (engine, error) { return a.planEngine(ctx) }
func calendarFactory(ctx context.Context, a *app) (engine, error) { return a.calendarEngine(ctx) }

// NewOnceCommand runs one Toggl Track pass.
func NewOnceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run one Toggl Track sync pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), opts, trackFactory)
		},
	}
}

// NewRunCommand runs Toggl Track passes on an interval.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync with Toggl Track on an interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForever(cmd.Context(), opts, interval, trackFactory)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between passes (default sync.interval)")
	return cmd
}

// NewPlanCommand groups the Toggl Plan commands.
func NewPlanCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Sync scheduled tasks with Toggl Plan",
	}
	cmd.AddCommand(destinationCommands(opts, "Toggl Plan", planFactory)...)
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a Toggl Plan task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			client, err := a.planClient(cmd.Context())
			if err != nil {
				return err
			}
			if err := client.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted task %s\n", args[0])
			return nil
		},
	})
	return cmd
}

// NewCalendarCommand groups the Google Calendar commands.
func NewCalendarCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Sync scheduled tasks with Google Calendar",
	}
	cmd.AddCommand(destinationCommands(opts, "Google Calendar", calendarFactory)...)
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <event-id>",
		Short: "Delete a synced Google Calendar event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			store, err := a.calendarStore(cmd.Context())
			if err != nil {
				return err
			}
			// Listing records which calendar holds the event.
			if _, err := store.ListTasks(cmd.Context()); err != nil {
				return err
			}
			if err := store.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted event %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func destinationCommands(opts *RootOptions, name string, factory engineFactory) []*cobra.Command {
	once := &cobra.Command{
		Use:   "once",
		Short: "Run one " + name + " sync pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), opts, factory)
		},
	}
	var interval time.Duration
	run := &cobra.Command{
		Use:   "run",
		Short: "Sync with " + name + " on an interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForever(cmd.Context(), opts, interval, factory)
		},
	}
	run.Flags().DurationVar(&interval, "interval", 0, "time between passes (default sync.interval)")
	return []*cobra.Command{once, run}
}

func runOnce(ctx context.Context, opts *RootOptions, factory engineFactory) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := factory(ctx, a)
	if err != nil {
		return err
	}
	_, err = e.Run(ctx)
	return err
}

func runForever(ctx context.Context, opts *RootOptions, interval time.Duration, factory engineFactory) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()
	if interval <= 0 {
		interval = a.cfg.Sync.Interval
	}

	e, err := factory(ctx, a)
	if err != nil {
		return err
	}
	a.logger.Info("starting sync loop", "interval", interval, "dry_run", opts.DryRun)
	return loop(ctx, a.logger, interval, e)
}

// loop runs passes back to back, waiting interval after each one returns.
// Passes never overlap. A failed pass is logged and the loop carries on.
func loop(ctx context.Context, logger *slog.Logger, interval time.Duration, e engine) error {
	for ctx.Err() == nil {
		if _, err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sync pass failed", "error", err)
		}
		if !wait(ctx, interval) {
			break
		}
	}
	logger.Info("sync loop stopped")
	return nil
}

// wait reports whether d elapsed before ctx was done.
func wait(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

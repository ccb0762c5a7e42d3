// Package cli is the anytoggl command tree.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/harrisonrobin/anytoggl/pkg/telemetry"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DryRun     bool
	Verbose    bool
	LogFormat  string // "text" | "json"

	// Stderr receives logs. Defaults to os.Stderr.
	Stderr io.Writer
}

// ValidLogFormats are the accepted --log-format values.
var ValidLogFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Stderr: os.Stderr}

	cmd := &cobra.Command{
		Use:   "anytoggl",
		Short: "Sync Anytype tasks to Toggl Track, Toggl Plan and Google Calendar",
		Long: `anytoggl keeps Anytype tasks tagged "Toggl" in step with time entries in
Toggl Track, scheduled tasks in Toggl Plan, and events in Google Calendar.

Each pass fetches both sides, links records through a stored id or the
#anytype_id:<id> marker, and lets the more recently modified side win.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := opts.newLogger()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return telemetry.Init(cmd.Context(), "anytoggl", version)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			telemetry.Shutdown(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ~/.config/anytoggl/config.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "log sync decisions without writing")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")

	cmd.AddCommand(NewOnceCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewCalendarCommand(opts))
	cmd.AddCommand(NewAuthCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewDoctorCommand(opts))

	return cmd
}

func (o *RootOptions) newLogger() (*slog.Logger, error) {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	w := o.Stderr
	if w == nil {
		w = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	switch o.LogFormat {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be one of %v", o.LogFormat, ValidLogFormats)
	}
}

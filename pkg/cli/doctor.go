package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harrisonrobin/anytoggl/pkg/auth"
	"github.com/harrisonrobin/anytoggl/pkg/config"
	"github.com/spf13/cobra"
)

// NewDoctorCommand reports which destinations are ready to sync.
func NewDoctorCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and cached credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := runDoctor(cmd, opts, cmd.OutOrStdout())
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func runDoctor(cmd *cobra.Command, opts *RootOptions, w io.Writer) int {
	failed := 0
	check := func(name string, ok bool, detail string) {
		if ok {
			fmt.Fprintf(w, "  ✓ %s\n", name)
			return
		}
		fmt.Fprintf(w, "  ✗ %s: %s\n", name, detail)
		failed++
	}

	fmt.Fprintln(w, "Configuration:")
	a, err := newApp(opts)
	if err != nil {
		check("config readable", false, err.Error())
		return failed
	}
	defer a.Close()
	check("config readable", true, "")
	_, schedErr := a.scheduler()
	check("scheduler hours", schedErr == nil, errString(schedErr))

	targets := []struct{ name, target string }{
		{"Toggl Track", config.TargetTrack},
		{"Toggl Plan", config.TargetPlan},
		{"Google Calendar", config.TargetCalendar},
	}
	for _, t := range targets {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s:\n", t.name)
		missing := a.cfg.Missing(t.target)
		check("settings", len(missing) == 0, "missing "+strings.Join(missing, ", "))
	}

	_, statErr := os.Stat(a.cfg.Google.Credentials)
	check("client secrets file", statErr == nil, "download OAuth client credentials to "+a.cfg.Google.Credentials)

	store, err := a.tokenStore()
	if err != nil {
		check("token database", false, err.Error())
		return failed
	}
	tok, err := store.Load(cmd.Context(), auth.KeyGoogle)
	switch {
	case err != nil:
		check("google token", false, err.Error())
	default:
		check("google token", tok != nil, "run: anytoggl auth google")
	}
	return failed
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

package cli

import (
	"fmt"

	"github.com/harrisonrobin/anytoggl/pkg/auth"
	"github.com/spf13/cobra"
)

// NewAuthCommand groups the interactive authorization flows.
func NewAuthCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize destinations that need a browser login",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "google",
		Short: "Authorize Google Calendar access",
		Long: `Opens the Google consent page and captures the redirect on a local port.
The token is cached in the token database and refreshed automatically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			oauthCfg, err := auth.GoogleConfig(a.cfg.Google.Credentials, auth.CalendarScopes...)
			if err != nil {
				return err
			}
			store, err := a.tokenStore()
			if err != nil {
				return err
			}
			if err := auth.AuthorizeGoogle(cmd.Context(), store, oauthCfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Google Calendar authorized.")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "logout <google|toggl_plan>",
		Short:     "Forget a cached token",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{auth.KeyGoogle, auth.KeyTogglPlan},
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] != auth.KeyGoogle && args[0] != auth.KeyTogglPlan {
				return fmt.Errorf("unknown token %q", args[0])
			}
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			store, err := a.tokenStore()
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s token\n", args[0])
			return nil
		},
	})
	return cmd
}

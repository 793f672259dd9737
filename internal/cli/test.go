package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check the stored Cloudflare credentials",
		Long: `Verify the stored account ID and API token against the Cloudflare
Images API. Exits 2 when credentials are missing and 1 when the API
rejects them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Settings.Get()
			if err != nil {
				return WrapExitError(ExitCommandError, "loading settings", err)
			}

			if !s.HasCredentials() {
				return NewExitError(ExitCommandError, "credentials not configured: set account ID and API token")
			}

			if err := rootOpts.NewTester(s.AccountID, s.APIToken).TestConnection(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "connection failed", err)
			}

			result := map[string]any{"ok": true, "account_id": s.AccountID}

			return emit(cmd, rootOpts, result, func(w io.Writer) {
				fmt.Fprintf(w, "Connection OK (account %s)\n", s.AccountID)
			})
		},
	}
}

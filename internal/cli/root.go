// Package cli implements the cfi-sync command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/investblog/cloudflare-images-sync/internal/app"
	"github.com/investblog/cloudflare-images-sync/internal/cloudflare"
	"github.com/investblog/cloudflare-images-sync/internal/config"
	"github.com/spf13/cobra"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ConnectionTester checks the remote API.
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

// RootOptions holds global flags and the hooks tests use to swap out
// remote clients.
type RootOptions struct {
	Format  string
	Verbose bool
	Version string

	// AppOptions is passed to app.Open.
	AppOptions app.Options

	// NewTester builds the connection tester; nil uses Cloudflare.
	NewTester func(accountID, token string) ConnectionTester
}

// NewRootCommand creates the root command for the cfi-sync CLI.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(&RootOptions{Version: version})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.NewTester == nil {
		opts.NewTester = func(accountID, token string) ConnectionTester {
			return cloudflare.NewClient(accountID, token, nil)
		}
	}

	cmd := &cobra.Command{
		Use:   "cfi-sync",
		Short: "Sync post images to Cloudflare Images",
		Long: `cfi-sync keeps post images mirrored on Cloudflare Images and writes
their delivery URLs back onto the posts.

Configuration comes from CFI_* environment variables or a .env file.`,
		Version:       opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewWorkerCommand(opts))
	cmd.AddCommand(NewBulkCommand(opts))
	cmd.AddCommand(NewHookCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewSettingsCommand(opts))
	cmd.AddCommand(NewMappingsCommand(opts))
	cmd.AddCommand(NewPresetsCommand(opts))
	cmd.AddCommand(NewLogsCommand(opts))
	cmd.AddCommand(NewKeygenCommand(opts))

	return cmd
}

// openApp loads configuration and wires the application. Log output
// goes to the command's error stream.
func openApp(cmd *cobra.Command, opts *RootOptions) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}

	appOpts := opts.AppOptions
	if appOpts.Console == nil {
		appOpts.Console = cmd.ErrOrStderr()
	}

	a, err := app.Open(cfg, appOpts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening state", err)
	}

	return a, nil
}

// emit writes data as indented JSON or through text, per --format.
func emit(cmd *cobra.Command, opts *RootOptions, data any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()

	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(data)
	}

	text(w)

	return nil
}

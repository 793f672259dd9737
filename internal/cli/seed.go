package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/investblog/cloudflare-images-sync/internal/repos"
	"github.com/spf13/cobra"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Import settings, presets, mappings and posts from YAML",
		Long: `Apply a YAML seed document to the state store. Presets are matched by
name and mappings by ID, so applying the same file twice updates in
place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "reading seed file", err)
			}

			doc, err := repos.ParseSeed(data)
			if err != nil {
				return WrapExitError(ExitCommandError, "parsing seed file", err)
			}

			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			seeder := &repos.Seeder{
				Settings: a.Settings,
				Presets:  a.Presets,
				Mappings: a.Mappings,
				Posts:    a.State,
			}

			res, err := seeder.Apply(doc)
			if err != nil {
				return WrapExitError(ExitFailure, "applying seed", err)
			}

			return emit(cmd, rootOpts, res, func(w io.Writer) {
				fmt.Fprintf(w, "Seeded %d presets, %d mappings, %d posts\n", res.Presets, res.Mappings, res.Posts)
			})
		},
	}
}

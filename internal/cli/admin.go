package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/investblog/cloudflare-images-sync/internal/auth"
	"github.com/investblog/cloudflare-images-sync/internal/models"
	"github.com/investblog/cloudflare-images-sync/internal/repos"
	"github.com/spf13/cobra"
)

// --- settings ---

// SettingsView is settings as printed, with the token masked.
type SettingsView struct {
	models.Settings
	APIToken string `json:"api_token"`
}

// NewSettingsCommand creates the settings command group.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change plugin settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print settings with the API token masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Settings.Masked()
			if err != nil {
				return WrapExitError(ExitFailure, "loading settings", err)
			}

			return printSettings(cmd, rootOpts, s)
		},
	})

	cmd.AddCommand(newSettingsSetCommand(rootOpts))

	return cmd
}

func newSettingsSetCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		accountID, accountHash, token string
		debug, useQueue               bool
		logsMax                       int
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update selected settings",
		Long: `Update only the settings whose flags are given. An empty --api-token
removes the stored token. --logs-max is clamped to 50..1000.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch repos.SettingsPatch

			flags := cmd.Flags()
			if flags.Changed("account-id") {
				patch.AccountID = &accountID
			}

			if flags.Changed("account-hash") {
				patch.AccountHash = &accountHash
			}

			if flags.Changed("api-token") {
				patch.APIToken = &token
			}

			if flags.Changed("debug") {
				patch.Debug = &debug
			}

			if flags.Changed("use-queue") {
				patch.UseQueue = &useQueue
			}

			if flags.Changed("logs-max") {
				patch.LogsMax = &logsMax
			}

			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Settings.Update(patch)
			if err != nil {
				return WrapExitError(ExitFailure, "saving settings", err)
			}

			s.APIToken = repos.MaskToken(s.APIToken)

			return printSettings(cmd, rootOpts, s)
		},
	}

	cmd.Flags().StringVar(&accountID, "account-id", "", "Cloudflare account ID")
	cmd.Flags().StringVar(&accountHash, "account-hash", "", "Cloudflare Images delivery hash")
	cmd.Flags().StringVar(&token, "api-token", "", "Cloudflare API token")
	cmd.Flags().BoolVar(&debug, "debug", false, "record debug entries in the activity log")
	cmd.Flags().BoolVar(&useQueue, "use-queue", true, "queue syncs raised by save events")
	cmd.Flags().IntVar(&logsMax, "logs-max", models.DefaultSettings().LogsMax, "activity log capacity")

	return cmd
}

func printSettings(cmd *cobra.Command, opts *RootOptions, s models.Settings) error {
	view := SettingsView{Settings: s, APIToken: s.APIToken}

	return emit(cmd, opts, view, func(w io.Writer) {
		fmt.Fprintf(w, "account_id:   %s\n", s.AccountID)
		fmt.Fprintf(w, "account_hash: %s\n", s.AccountHash)
		fmt.Fprintf(w, "api_token:    %s\n", s.APIToken)
		fmt.Fprintf(w, "debug:        %t\n", s.Debug)
		fmt.Fprintf(w, "use_queue:    %t\n", s.UseQueue)
		fmt.Fprintf(w, "logs_max:     %d\n", s.LogsMax)
	})
}

// --- mappings ---

// NewMappingsCommand creates the mappings command group.
func NewMappingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "List or delete mappings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			all, err := a.Mappings.All()
			if err != nil {
				return WrapExitError(ExitFailure, "loading mappings", err)
			}

			if all == nil {
				all = []models.Mapping{}
			}

			return emit(cmd, rootOpts, all, func(w io.Writer) {
				for _, m := range all {
					src := m.Source.Type
					if m.Source.Key != "" {
						src += ":" + m.Source.Key
					}

					fmt.Fprintf(w, "%s  %s/%s  %s -> %s\n", m.ID, m.PostType, m.Status, src, m.Target.URLMeta)
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Mappings.Delete(args[0]); err != nil {
				return WrapExitError(ExitCommandError, "deleting mapping", err)
			}

			return emit(cmd, rootOpts, map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted mapping %s\n", args[0])
			})
		},
	})

	return cmd
}

// --- presets ---

// NewPresetsCommand creates the presets command group.
func NewPresetsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Manage delivery variant presets",
	}

	printPresets := func(cmd *cobra.Command, all []models.Preset) error {
		if all == nil {
			all = []models.Preset{}
		}

		return emit(cmd, rootOpts, all, func(w io.Writer) {
			for _, p := range all {
				fmt.Fprintf(w, "%s  %-18s %s\n", p.ID, p.Name, p.Variant)
			}
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			all, err := a.Presets.All()
			if err != nil {
				return WrapExitError(ExitFailure, "loading presets", err)
			}

			return printPresets(cmd, all)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <variant>",
		Short: "Create a preset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.Presets.Create(args[0], args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "creating preset", err)
			}

			return printPresets(cmd, []models.Preset{p})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Presets.Delete(args[0]); err != nil {
				return WrapExitError(ExitCommandError, "deleting preset", err)
			}

			return emit(cmd, rootOpts, map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted preset %s\n", args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "defaults",
		Short: "Seed the recommended presets into an empty store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.Presets.SeedDefaults(); err != nil {
				return WrapExitError(ExitFailure, "seeding presets", err)
			}

			all, err := a.Presets.All()
			if err != nil {
				return WrapExitError(ExitFailure, "loading presets", err)
			}

			return printPresets(cmd, all)
		},
	})

	return cmd
}

// --- logs ---

// NewLogsCommand creates the logs command.
func NewLogsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		limit    int
		clearLog bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show or clear the activity log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if clearLog {
				if err := a.Logs.Clear(); err != nil {
					return WrapExitError(ExitFailure, "clearing logs", err)
				}

				return emit(cmd, rootOpts, map[string]bool{"cleared": true}, func(w io.Writer) {
					fmt.Fprintln(w, "Activity log cleared")
				})
			}

			all, err := a.Logs.All()
			if err != nil {
				return WrapExitError(ExitFailure, "loading logs", err)
			}

			if limit > 0 && len(all) > limit {
				all = all[len(all)-limit:]
			}

			if all == nil {
				all = []models.LogEntry{}
			}

			return emit(cmd, rootOpts, all, func(w io.Writer) {
				for _, e := range all {
					ts := time.Unix(e.Time, 0).UTC().Format(time.DateTime)
					fmt.Fprintf(w, "%s %-7s %s post=%d mapping=%s %s\n", ts, e.Level, e.Message, e.PostID, e.MappingID, e.Extra)
				}
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "newest entries to show (0 for all)")
	cmd.Flags().BoolVar(&clearLog, "clear", false, "clear the log")

	return cmd
}

// --- keygen ---

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen <user>",
		Short: "Generate an API key entry for CFI_API_KEYS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := auth.GenerateAPIKey()
			entry := args[0] + ":" + key

			return emit(cmd, rootOpts, map[string]string{"user": args[0], "key": key, "entry": entry}, func(w io.Writer) {
				fmt.Fprintln(w, entry)
			})
		},
	}
}

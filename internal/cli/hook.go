package cli

import (
	"fmt"
	"io"

	"github.com/investblog/cloudflare-images-sync/internal/imagesync"
	"github.com/investblog/cloudflare-images-sync/internal/models"
	"github.com/spf13/cobra"
)

// HookOptions holds flags for the hook command.
type HookOptions struct {
	*RootOptions
	PostID   int64
	Trigger  string
	Autosave bool
	Revision bool
	Inline   bool
}

// HookDispatch is one mapping run reported by the hook command.
type HookDispatch struct {
	MappingID string `json:"mapping_id"`
	Mode      string `json:"mode"`
	Error     string `json:"error,omitempty"`
}

// NewHookCommand creates the hook command.
func NewHookCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HookOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Deliver a save event for a stored post",
		Long: `Raise a save event for a post already in the state store, as the host
would after an edit. Post type and status are read from the store.
Matching mappings are queued or synced according to the use_queue
setting; --inline always syncs in this process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(cmd, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.PostID, "post_id", 0, "post ID (required)")
	cmd.Flags().StringVar(&opts.Trigger, "trigger", models.TriggerSavePost, "save_post or acf_save_post")
	cmd.Flags().BoolVar(&opts.Autosave, "autosave", false, "mark the event as an autosave")
	cmd.Flags().BoolVar(&opts.Revision, "revision", false, "mark the event as a revision save")
	cmd.Flags().BoolVar(&opts.Inline, "inline", false, "sync immediately instead of queueing")
	_ = cmd.MarkFlagRequired("post_id")

	return cmd
}

func runHook(cmd *cobra.Command, opts *HookOptions) error {
	if opts.Trigger != models.TriggerSavePost && opts.Trigger != models.TriggerACFSavePost {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown trigger %q", opts.Trigger))
	}

	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.State.GetPost(opts.PostID)
	if err != nil {
		return WrapExitError(ExitFailure, "loading post", err)
	}

	if p == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("post %d not found", opts.PostID))
	}

	hooks := a.Hooks
	if opts.Inline {
		hooks = imagesync.NewHooks(a.Mappings, a.Settings, a.Engine, nil, a.Logger)
	}

	ev := imagesync.SaveEvent{
		PostID:   p.ID,
		PostType: p.Type,
		Status:   p.Status,
		Trigger:  opts.Trigger,
		Autosave: opts.Autosave,
		Revision: opts.Revision || p.IsRevision,
	}

	failed := 0
	out := []HookDispatch{}

	for _, d := range hooks.Handle(cmd.Context(), imagesync.NewGuard(), ev) {
		hd := HookDispatch{MappingID: d.MappingID, Mode: string(d.Mode)}
		if d.Err != nil {
			hd.Error = d.Err.Error()
			failed++
		}

		out = append(out, hd)
	}

	err = emit(cmd, opts.RootOptions, out, func(w io.Writer) {
		if len(out) == 0 {
			fmt.Fprintln(w, "No mapping matched")
		}

		for _, d := range out {
			if d.Error != "" {
				fmt.Fprintf(w, "%s: %s ERROR %s\n", d.MappingID, d.Mode, d.Error)
			} else {
				fmt.Fprintf(w, "%s: %s\n", d.MappingID, d.Mode)
			}
		}
	})
	if err != nil {
		return err
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d mappings failed", failed))
	}

	return nil
}

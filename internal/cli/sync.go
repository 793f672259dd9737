package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/investblog/cloudflare-images-sync/internal/app"
	"github.com/investblog/cloudflare-images-sync/internal/imagesync"
	"github.com/investblog/cloudflare-images-sync/internal/models"
	"github.com/investblog/cloudflare-images-sync/internal/repos"
	"github.com/spf13/cobra"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	MappingID string
	PostID    int64
	Limit     int
	Offset    int
	DryRun    bool
}

// PostReport is one post's outcome.
type PostReport struct {
	PostID int64  `json:"post_id"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Action string `json:"action,omitempty"`
	Reason string `json:"reason,omitempty"`
	URL    string `json:"url,omitempty"`
}

// SyncReport summarizes a sync run.
type SyncReport struct {
	MappingID string       `json:"mapping_id"`
	DryRun    bool         `json:"dry_run"`
	OK        int          `json:"ok"`
	Failed    int          `json:"failed"`
	Posts     []PostReport `json:"posts"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync posts of a mapping in the foreground",
		Long: `Sync posts of one mapping immediately, bypassing the job queue.

Posts are taken in ascending ID order, filtered by the mapping's post type
and status. With --dry-run nothing is uploaded or written; the decision
for each post is printed instead.

Example:
  cfi-sync sync --mapping map_1a2b3c4d
  cfi-sync sync --mapping map_1a2b3c4d --post_id 42
  cfi-sync sync --mapping map_1a2b3c4d --limit 50 --offset 100 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.MappingID, "mapping", "", "mapping ID (required)")
	cmd.Flags().Int64Var(&opts.PostID, "post_id", 0, "sync only this post")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum posts to process")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "posts to skip")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "show decisions without uploading")
	_ = cmd.MarkFlagRequired("mapping")

	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions) error {
	if !repos.ValidMappingID(opts.MappingID) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid mapping ID %q", opts.MappingID))
	}

	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.Mappings.Find(opts.MappingID)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading mapping", err)
	}

	ids := []int64{opts.PostID}
	if opts.PostID <= 0 {
		ids, err = a.State.QueryPosts(m.PostType, m.Status, opts.Offset, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "querying posts", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report := SyncReport{MappingID: m.ID, DryRun: opts.DryRun, Posts: []PostReport{}}
	g := imagesync.NewGuard()

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		var pr PostReport
		if opts.DryRun {
			pr = previewPost(ctx, a, id, m)
		} else {
			g.Reset()
			pr = syncPost(ctx, a, g, id, m)
		}

		if pr.OK {
			report.OK++
		} else {
			report.Failed++
		}

		report.Posts = append(report.Posts, pr)
	}

	err = emit(cmd, opts.RootOptions, report, func(w io.Writer) {
		printSyncReport(w, report, opts.Verbose || opts.DryRun)
	})
	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		return WrapExitError(ExitFailure, "interrupted", ctx.Err())
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d posts failed", report.Failed, len(ids)))
	}

	return nil
}

func syncPost(ctx context.Context, a *app.App, g *imagesync.Guard, id int64, m models.Mapping) PostReport {
	pr := PostReport{PostID: id, OK: true}

	if err := a.Engine.Sync(ctx, g, id, m); err != nil {
		pr.OK = false
		pr.Error = err.Error()

		return pr
	}

	pr.URL, _ = a.State.GetMeta(id, m.Target.URLMeta)

	return pr
}

func previewPost(ctx context.Context, a *app.App, id int64, m models.Mapping) PostReport {
	pv, err := a.Engine.Preview(ctx, id, m)
	if err != nil {
		return PostReport{PostID: id, Error: err.Error()}
	}

	return PostReport{
		PostID: id,
		OK:     true,
		Action: pv.Decision.Action.String(),
		Reason: pv.Decision.Reason,
		URL:    pv.URL,
	}
}

func printSyncReport(w io.Writer, r SyncReport, detailed bool) {
	fmt.Fprintf(w, "Processing %d posts for mapping %s\n", len(r.Posts), r.MappingID)

	for _, p := range r.Posts {
		switch {
		case !p.OK:
			fmt.Fprintf(w, "  post #%d: ERROR %s\n", p.PostID, p.Error)
		case !detailed:
		case p.Action != "":
			fmt.Fprintf(w, "  post #%d: %s %s %s\n", p.PostID, p.Action, p.Reason, p.URL)
		default:
			fmt.Fprintf(w, "  post #%d: OK %s\n", p.PostID, p.URL)
		}
	}

	fmt.Fprintf(w, "Done. OK: %d, errors: %d\n", r.OK, r.Failed)
}

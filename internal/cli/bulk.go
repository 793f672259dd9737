package cli

import (
	"fmt"
	"io"

	"github.com/investblog/cloudflare-images-sync/internal/repos"
	"github.com/spf13/cobra"
)

// BulkOptions holds flags for the bulk command.
type BulkOptions struct {
	*RootOptions
	MappingID string
	ChunkSize int
	Run       bool
}

// BulkReport is printed by the bulk command.
type BulkReport struct {
	MappingID string `json:"mapping_id"`
	ChunkSize int    `json:"chunk_size"`
	Queued    bool   `json:"queued"`
	JobsRun   int    `json:"jobs_run,omitempty"`
}

// NewBulkCommand creates the bulk command.
func NewBulkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BulkOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Queue a chunked resync of every post of a mapping",
		Long: `Queue the first chunk of a bulk sync. Each chunk syncs up to --chunk
posts and queues the next one when it was full. A running worker picks
the chunks up; --run drains the queue in this process instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBulk(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.MappingID, "mapping", "", "mapping ID (required)")
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk", 0, "posts per chunk (default CFI_CHUNK_SIZE)")
	cmd.Flags().BoolVar(&opts.Run, "run", false, "drain the queue after queueing")
	_ = cmd.MarkFlagRequired("mapping")

	return cmd
}

func runBulk(cmd *cobra.Command, opts *BulkOptions) error {
	if !repos.ValidMappingID(opts.MappingID) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid mapping ID %q", opts.MappingID))
	}

	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = a.Config.ChunkSize
	}

	if err := a.Bulk.Start(cmd.Context(), opts.MappingID, chunk); err != nil {
		return WrapExitError(ExitCommandError, "starting bulk sync", err)
	}

	report := BulkReport{MappingID: opts.MappingID, ChunkSize: chunk, Queued: true}

	if opts.Run {
		report.JobsRun, err = a.NewWorker().Drain(cmd.Context())
		if err != nil {
			return WrapExitError(ExitFailure, "draining queue", err)
		}
	}

	return emit(cmd, opts.RootOptions, report, func(w io.Writer) {
		fmt.Fprintf(w, "Bulk sync queued for mapping %s (chunk %d)\n", report.MappingID, report.ChunkSize)

		if opts.Run {
			fmt.Fprintf(w, "Ran %d jobs\n", report.JobsRun)
		}
	})
}

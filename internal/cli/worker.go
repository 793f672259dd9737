package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/investblog/cloudflare-images-sync/internal/jobs"
	"github.com/spf13/cobra"
)

// WorkerOptions holds flags for the worker command.
type WorkerOptions struct {
	*RootOptions
	Once bool
}

// WorkerReport is printed by worker --once.
type WorkerReport struct {
	Ran      int `json:"ran"`
	Pending  int `json:"pending"`
	Retrying int `json:"retrying"`
}

// NewWorkerCommand creates the worker command.
func NewWorkerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WorkerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run queued sync jobs",
		Long: `Run queued single-post syncs and bulk chunks. Without --once the worker
polls every CFI_WORKER_POLL until interrupted. Failed jobs with a
transient cause are retried with backoff.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "run due jobs and exit")

	return cmd
}

func runWorker(cmd *cobra.Command, opts *WorkerOptions) error {
	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := a.NewWorker()

	if !opts.Once {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return WrapExitError(ExitFailure, "worker", err)
		}

		return nil
	}

	ran, err := w.Drain(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "draining queue", err)
	}

	stats, err := jobs.QueueStats(a.State)
	if err != nil {
		return WrapExitError(ExitFailure, "reading queue", err)
	}

	report := WorkerReport{Ran: ran, Pending: stats.Pending, Retrying: stats.Retrying}

	return emit(cmd, opts.RootOptions, report, func(w io.Writer) {
		fmt.Fprintf(w, "Ran %d jobs. Pending: %d (retrying %d)\n", report.Ran, report.Pending, report.Retrying)
	})
}

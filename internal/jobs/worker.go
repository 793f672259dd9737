package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/investblog/cloudflare-images-sync/internal/cloudflare"
	"github.com/investblog/cloudflare-images-sync/internal/state"
)

const (
	// maxAttempts is how many times a job runs before it is dropped.
	maxAttempts = 5

	// retryBaseDelay is the base delay for job retries: 5s * 2^attempts.
	retryBaseDelay = 5 * time.Second

	// retryMaxDelay is the ceiling for job retry backoff.
	retryMaxDelay = 5 * time.Minute

	// maxRetryShift caps the bit-shift exponent in the retry backoff to
	// prevent integer overflow of time.Duration.
	maxRetryShift = 10
)

// Handler runs one job's payload.
type Handler func(ctx context.Context, args json.RawMessage) error

// Worker drains the queue one job at a time. Jobs failing with a
// transient error are retried with exponential backoff; any other
// failure drops the job.
type Worker struct {
	store    Store
	handlers map[string]Handler
	poll     time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewWorker creates a worker polling store every poll interval.
func NewWorker(store Store, poll time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		store:    store,
		handlers: make(map[string]Handler),
		poll:     poll,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle registers the handler for hook.
func (w *Worker) Handle(hook string, h Handler) {
	w.handlers[hook] = h
}

// Run processes due jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		if _, err := w.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			w.logger.Error("job queue failure", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain runs due jobs until none is left and returns how many ran.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	n := 0

	for ctx.Err() == nil {
		ran, err := w.RunOnce(ctx)
		if err != nil || !ran {
			return n, err
		}

		n++
	}

	return n, ctx.Err()
}

// RunOnce runs the oldest due job, if any. It reports whether a job
// was taken. A failing job is not an error here; only queue storage
// failures are returned.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.NextJob(w.now().Unix())
	if err != nil {
		return false, fmt.Errorf("reading next job: %w", err)
	}

	if job == nil {
		return false, nil
	}

	log := w.logger.With(slog.String("job_id", job.ID), slog.String("hook", job.Hook))

	h, ok := w.handlers[job.Hook]
	if !ok {
		log.Error("dropping job with unknown hook")
		return true, w.store.DeleteJob(job.Seq)
	}

	runErr := h(ctx, job.Args)
	if runErr == nil {
		return true, w.store.DeleteJob(job.Seq)
	}

	job.Attempts++
	job.LastError = runErr.Error()

	if !cloudflare.IsTransient(runErr) || job.Attempts >= maxAttempts {
		log.Error("job failed",
			slog.Int("attempts", job.Attempts),
			slog.String("error", runErr.Error()),
		)

		return true, w.store.DeleteJob(job.Seq)
	}

	delay := retryDelay(job.Attempts)
	job.NotBefore = w.now().Add(delay).Unix()

	log.Warn("job failed, will retry",
		slog.Int("attempts", job.Attempts),
		slog.Duration("backoff", delay),
		slog.String("error", runErr.Error()),
	)

	return true, w.store.SaveJob(*job)
}

func retryDelay(attempts int) time.Duration {
	shift := min(attempts-1, maxRetryShift)
	shift = max(shift, 0)

	return min(retryBaseDelay*time.Duration(1<<shift), retryMaxDelay)
}

// Stats summarizes the queue.
type Stats struct {
	Pending  int `json:"pending"`
	Retrying int `json:"retrying"`
}

// QueueStats counts queued jobs and those waiting out a backoff.
func QueueStats(store Store) (Stats, error) {
	all, err := store.AllJobs()
	if err != nil {
		return Stats{}, err
	}

	s := Stats{Pending: len(all)}

	for _, j := range all {
		if j.Attempts > 0 {
			s.Retrying++
		}
	}

	return s, nil
}

var _ Store = (*state.State)(nil)

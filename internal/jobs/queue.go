// Package jobs runs deferred syncs: a bbolt-backed FIFO queue, the
// worker that drains it, and the chunked bulk sync built on both.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/investblog/cloudflare-images-sync/internal/imagesync"
	"github.com/investblog/cloudflare-images-sync/internal/state"
)

// Store persists queued jobs.
type Store interface {
	EnqueueJob(j state.Job) (state.Job, error)
	NextJob(now int64) (*state.Job, error)
	SaveJob(j state.Job) error
	DeleteJob(seq uint64) error
	AllJobs() ([]state.Job, error)
}

var _ imagesync.Queue = (*Queue)(nil)

// Queue enqueues jobs under the cfi group.
type Queue struct {
	store Store
	now   func() time.Time
}

// NewQueue creates a queue over store.
func NewQueue(store Store) *Queue {
	return &Queue{store: store, now: time.Now}
}

// Available reports whether jobs can be enqueued.
func (q *Queue) Available() bool {
	return q != nil && q.store != nil
}

// Enqueue stores a job for hook with JSON-encoded args.
func (q *Queue) Enqueue(ctx context.Context, hook string, args any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding %s args: %w", hook, err)
	}

	_, err = q.store.EnqueueJob(state.Job{
		ID:        uuid.NewString(),
		Hook:      hook,
		Group:     imagesync.QueueGroup,
		Args:      data,
		CreatedAt: q.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("enqueueing %s: %w", hook, err)
	}

	return nil
}

// Pending returns every queued job, oldest first.
func (q *Queue) Pending() ([]state.Job, error) {
	return q.store.AllJobs()
}

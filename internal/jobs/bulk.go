package jobs

import (
	"context"
	"fmt"
	"log/slog"

	cfierrors "github.com/investblog/cloudflare-images-sync/internal/errors"
	"github.com/investblog/cloudflare-images-sync/internal/imagesync"
	"github.com/investblog/cloudflare-images-sync/internal/models"
	"github.com/investblog/cloudflare-images-sync/internal/repos"
)

// HookBulkSync is the queue hook of one bulk sync chunk.
const HookBulkSync = "cfi_bulk_sync"

// DefaultChunkSize is used when a chunk size is not positive.
const DefaultChunkSize = 20

// BulkArgs is the payload of a queued bulk chunk.
type BulkArgs struct {
	MappingID string `json:"mapping_id"`
	Offset    int    `json:"offset"`
	ChunkSize int    `json:"chunk_size"`
}

// ChunkResult reports one processed chunk. NextOffset is set only
// when a continuation was enqueued.
type ChunkResult struct {
	MappingID  string `json:"mapping_id"`
	Offset     int    `json:"offset"`
	Processed  int    `json:"processed"`
	OK         int    `json:"ok"`
	Failed     int    `json:"failed"`
	Continued  bool   `json:"continued"`
	NextOffset int    `json:"next_offset,omitempty"`
}

// Syncer syncs one post under one mapping inside the unit of work g.
type Syncer interface {
	Sync(ctx context.Context, g *imagesync.Guard, postID int64, m models.Mapping) error
}

// MappingFinder loads a mapping by ID.
type MappingFinder interface {
	Find(id string) (models.Mapping, error)
}

// PostQuery pages through post IDs of a type in ascending ID order.
type PostQuery interface {
	QueryPosts(postType, status string, offset, limit int) ([]int64, error)
}

// Bulk re-syncs every post of a mapping in queued chunks.
type Bulk struct {
	mappings MappingFinder
	posts    PostQuery
	engine   Syncer
	queue    imagesync.Queue
	logger   *slog.Logger
}

// NewBulk creates a bulk runner. queue may be nil; chunks then do not
// enqueue their continuation.
func NewBulk(mappings MappingFinder, posts PostQuery, engine Syncer, queue imagesync.Queue, logger *slog.Logger) *Bulk {
	return &Bulk{
		mappings: mappings,
		posts:    posts,
		engine:   engine,
		queue:    queue,
		logger:   logger,
	}
}

// Start enqueues the first chunk of a bulk sync.
func (b *Bulk) Start(ctx context.Context, mappingID string, chunkSize int) error {
	if _, err := b.mapping(mappingID); err != nil {
		return err
	}

	if b.queue == nil || !b.queue.Available() {
		return fmt.Errorf("starting bulk sync: job queue unavailable")
	}

	return b.queue.Enqueue(ctx, HookBulkSync, BulkArgs{
		MappingID: mappingID,
		ChunkSize: chunkOrDefault(chunkSize),
	})
}

// Process syncs one chunk of posts starting at offset. A full chunk
// enqueues the next one.
func (b *Bulk) Process(ctx context.Context, mappingID string, offset, chunkSize int) (ChunkResult, error) {
	chunkSize = chunkOrDefault(chunkSize)
	offset = max(offset, 0)
	res := ChunkResult{MappingID: mappingID, Offset: offset}

	m, err := b.mapping(mappingID)
	if err != nil {
		return res, err
	}

	ids, err := b.posts.QueryPosts(m.PostType, m.Status, offset, chunkSize)
	if err != nil {
		return res, fmt.Errorf("querying %s posts: %w", m.PostType, err)
	}

	res.Processed = len(ids)
	res.OK, res.Failed = b.SyncPosts(ctx, m, ids)

	if err := ctx.Err(); err != nil {
		return res, err
	}

	if len(ids) == chunkSize && b.queue != nil && b.queue.Available() {
		next := BulkArgs{MappingID: mappingID, Offset: offset + chunkSize, ChunkSize: chunkSize}
		if err := b.queue.Enqueue(ctx, HookBulkSync, next); err != nil {
			return res, err
		}

		res.Continued = true
		res.NextOffset = next.Offset
	}

	b.logger.Info("bulk chunk processed",
		slog.String("mapping_id", mappingID),
		slog.Int("offset", offset),
		slog.Int("ok", res.OK),
		slog.Int("failed", res.Failed),
		slog.Bool("continued", res.Continued),
	)

	return res, nil
}

// SyncPosts syncs each post in turn with a guard that is reset per
// post, so one post never blocks the next. It stops early when ctx is
// cancelled.
func (b *Bulk) SyncPosts(ctx context.Context, m models.Mapping, ids []int64) (ok, failed int) {
	g := imagesync.NewGuard()

	for _, id := range ids {
		if ctx.Err() != nil {
			return ok, failed
		}

		g.Reset()

		err := b.engine.Sync(ctx, g, id, m)

		if err != nil {
			failed++

			b.logger.Warn("bulk sync failed",
				slog.Int64("post_id", id),
				slog.String("mapping_id", m.ID),
				slog.String("error", err.Error()),
			)

			continue
		}

		ok++
	}

	return ok, failed
}

func (b *Bulk) mapping(id string) (models.Mapping, error) {
	if !repos.ValidMappingID(id) {
		return models.Mapping{}, fmt.Errorf("%w: malformed mapping id %q", cfierrors.ErrInvalidMapping, id)
	}

	return b.mappings.Find(id)
}

func chunkOrDefault(n int) int {
	if n <= 0 {
		return DefaultChunkSize
	}

	return n
}

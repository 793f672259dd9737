package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/investblog/cloudflare-images-sync/internal/imagesync"
)

// Register installs the single-post and bulk chunk handlers on w.
func Register(w *Worker, engine Syncer, mappings MappingFinder, bulk *Bulk) {
	w.Handle(imagesync.HookSyncSingle, SyncSingleHandler(engine, mappings))
	w.Handle(HookBulkSync, BulkHandler(bulk))
}

// SyncSingleHandler runs a queued single-post sync under a fresh guard.
func SyncSingleHandler(engine Syncer, mappings MappingFinder) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var args imagesync.SyncSingleArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("decoding %s args: %w", imagesync.HookSyncSingle, err)
		}

		m, err := mappings.Find(args.MappingID)
		if err != nil {
			return err
		}

		return engine.Sync(ctx, imagesync.NewGuard(), args.PostID, m)
	}
}

// BulkHandler processes one queued bulk chunk.
func BulkHandler(bulk *Bulk) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var args BulkArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("decoding %s args: %w", HookBulkSync, err)
		}

		_, err := bulk.Process(ctx, args.MappingID, args.Offset, args.ChunkSize)

		return err
	}
}

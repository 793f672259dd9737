package imagesync

import (
	"context"
	"log/slog"
	"sort"

	"github.com/investblog/cloudflare-images-sync/internal/models"
)

// Queue hook names and group.
const (
	HookSyncSingle = "cfi_sync_single"
	QueueGroup     = "cfi"
)

// SyncSingleArgs is the payload of a queued single-post sync.
type SyncSingleArgs struct {
	PostID    int64  `json:"post_id"`
	MappingID string `json:"mapping_id"`
}

// SaveEvent is one save notification from the host. Trigger is
// models.TriggerSavePost or models.TriggerACFSavePost.
type SaveEvent struct {
	PostID   int64  `json:"post_id"`
	PostType string `json:"post_type"`
	Status   string `json:"status"`
	Trigger  string `json:"trigger"`
	Autosave bool   `json:"autosave,omitempty"`
	Revision bool   `json:"revision,omitempty"`
}

// DispatchMode says how a matched mapping was run.
type DispatchMode string

const (
	DispatchQueued DispatchMode = "queued"
	DispatchSynced DispatchMode = "synced"
)

// Dispatch records one mapping run for an event. Err is the enqueue or
// sync error, if any.
type Dispatch struct {
	MappingID string       `json:"mapping_id"`
	Mode      DispatchMode `json:"mode"`
	Err       error        `json:"-"`
}

// Hooks turns save events into syncs for every matching mapping.
type Hooks struct {
	mappings MappingSource
	settings SettingsSource
	engine   *Engine
	queue    Queue
	logger   *slog.Logger
}

// NewHooks creates a dispatcher. queue may be nil, in which case every
// mapping is synced in the caller.
func NewHooks(mappings MappingSource, settings SettingsSource, engine *Engine, queue Queue, logger *slog.Logger) *Hooks {
	return &Hooks{
		mappings: mappings,
		settings: settings,
		engine:   engine,
		queue:    queue,
		logger:   logger,
	}
}

// PostTypes returns the distinct post types that have at least one
// mapping, sorted. Adapters only need to report saves of these types.
func (h *Hooks) PostTypes() ([]string, error) {
	all, err := h.mappings.All()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})

	var types []string

	for _, m := range all {
		if m.PostType == "" {
			continue
		}

		if _, ok := seen[m.PostType]; ok {
			continue
		}

		seen[m.PostType] = struct{}{}
		types = append(types, m.PostType)
	}

	sort.Strings(types)

	return types, nil
}

// Handle processes one save event using g for dedupe and recursion
// suppression. It returns one Dispatch per mapping that ran.
func (h *Hooks) Handle(ctx context.Context, g *Guard, ev SaveEvent) []Dispatch {
	settings, err := h.settings.Get()
	if err != nil {
		h.logger.ErrorContext(ctx, "loading settings failed", slog.String("error", err.Error()))
		return nil
	}

	debug := func(msg string, attrs ...any) {
		if settings.Debug {
			h.logger.DebugContext(ctx, msg, append([]any{slog.Int64("post_id", ev.PostID)}, attrs...)...)
		}
	}

	debug("save event", slog.String("trigger", ev.Trigger), slog.String("post_type", ev.PostType))

	if reason := h.rejectReason(g, ev); reason != "" {
		debug("save event ignored", slog.String("extra", reason))
		return nil
	}

	mappings, err := h.mappings.ForPostType(ev.PostType)
	if err != nil {
		h.logger.ErrorContext(ctx, "loading mappings failed", slog.String("error", err.Error()))
		return nil
	}

	debug("matching mappings", slog.Int("count", len(mappings)))

	var out []Dispatch

	for _, m := range mappings {
		if !m.Triggers.Enabled(ev.Trigger) {
			debug("trigger not enabled", slog.String("mapping_id", m.ID))
			continue
		}

		if m.Status == models.StatusPublish && ev.Status != models.StatusPublish {
			debug("status filter not met", slog.String("mapping_id", m.ID), slog.String("extra", ev.Status))
			continue
		}

		if !g.Acquire(ev.PostID, m.ID) {
			debug("already processed", slog.String("mapping_id", m.ID))
			continue
		}

		if settings.UseQueue && h.queue != nil && h.queue.Available() {
			err := h.queue.Enqueue(ctx, HookSyncSingle, SyncSingleArgs{PostID: ev.PostID, MappingID: m.ID})
			if err != nil {
				h.logger.ErrorContext(ctx, "enqueue failed",
					slog.Int64("post_id", ev.PostID),
					slog.String("mapping_id", m.ID),
					slog.String("error", err.Error()),
				)
			}

			debug("queued", slog.String("mapping_id", m.ID))
			out = append(out, Dispatch{MappingID: m.ID, Mode: DispatchQueued, Err: err})

			continue
		}

		debug("syncing directly", slog.String("mapping_id", m.ID))

		err := h.engine.Sync(ctx, g, ev.PostID, m)

		out = append(out, Dispatch{MappingID: m.ID, Mode: DispatchSynced, Err: err})
	}

	return out
}

func (h *Hooks) rejectReason(g *Guard, ev SaveEvent) string {
	switch {
	case g.IsLocked():
		return "guard locked"
	case ev.Autosave:
		return "autosave"
	case ev.Revision:
		return "revision"
	case ev.Status == models.PostStatusAutoDraft:
		return "auto-draft"
	case ev.PostID <= 0:
		return "no post"
	case ev.Trigger == models.TriggerACFSavePost && !h.engine.Resolver().FieldsAvailable():
		return "custom fields unavailable"
	}

	return ""
}

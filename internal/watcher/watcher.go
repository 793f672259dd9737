// Package watcher turns rewritten media files into save events, so
// mappings pick up edited images without a manual save.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/investblog/cloudflare-images-sync/internal/imagesync"
	"github.com/investblog/cloudflare-images-sync/internal/models"
)

const (
	// debounceInterval is how often pending writes are checked.
	debounceInterval = 500 * time.Millisecond

	// settleDelay is how long a file must be quiet before it is
	// reported. Uploads arrive as several writes.
	settleDelay = 300 * time.Millisecond
)

// Posts maps files back to the attachments that own them.
type Posts interface {
	AttachmentIDByFile(path string) (int64, error)
	GetPost(id int64) (*models.Post, error)
}

// Dispatcher handles save events.
type Dispatcher interface {
	Handle(ctx context.Context, g *imagesync.Guard, ev imagesync.SaveEvent) []imagesync.Dispatch
}

// Watcher monitors the uploads directory. When an attachment's file is
// written it emits a save_post event for the attachment and, when the
// attachment belongs to a post, for that post too.
type Watcher struct {
	dir    string
	posts  Posts
	hooks  Dispatcher
	logger *slog.Logger
	now    func() time.Time
}

// New creates a watcher for dir.
func New(dir string, posts Posts, hooks Dispatcher, logger *slog.Logger) *Watcher {
	return &Watcher{
		dir:    dir,
		posts:  posts,
		hooks:  hooks,
		logger: logger,
		now:    time.Now,
	}
}

// Watch blocks until ctx is cancelled. Directories are watched
// recursively.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, w.dir); err != nil {
		return fmt.Errorf("watching uploads dir: %w", err)
	}

	w.logger.Info("uploads watcher started", slog.String("dir", w.dir))

	pending := make(map[string]time.Time)

	ticker := time.NewTicker(debounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if shouldIgnore(event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) {
				info, err := os.Lstat(event.Name)
				if err == nil && info.IsDir() {
					_ = addRecursive(watcher, event.Name)
					continue
				}
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				pending[event.Name] = w.now()
			}

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				delete(pending, event.Name)
				_ = watcher.Remove(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			now := w.now()
			for path, t := range pending {
				if now.Sub(t) < settleDelay {
					continue
				}

				delete(pending, path)
				w.FileChanged(ctx, path)
			}
		}
	}
}

// FileChanged dispatches save events for the attachment stored at path.
// Files that belong to no attachment are ignored.
func (w *Watcher) FileChanged(ctx context.Context, path string) []imagesync.Dispatch {
	id, err := w.posts.AttachmentIDByFile(path)
	if err != nil {
		w.logger.Warn("looking up attachment", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}

	if id == 0 {
		w.logger.Debug("no attachment for file", slog.String("path", path))
		return nil
	}

	att, err := w.posts.GetPost(id)
	if err != nil || att == nil {
		return nil
	}

	out := w.dispatch(ctx, att)

	if att.ParentID > 0 {
		parent, err := w.posts.GetPost(att.ParentID)
		if err == nil && parent != nil {
			out = append(out, w.dispatch(ctx, parent)...)
		}
	}

	return out
}

func (w *Watcher) dispatch(ctx context.Context, p *models.Post) []imagesync.Dispatch {
	ds := w.hooks.Handle(ctx, imagesync.NewGuard(), imagesync.SaveEvent{
		PostID:   p.ID,
		PostType: p.Type,
		Status:   p.Status,
		Trigger:  models.TriggerSavePost,
		Revision: p.IsRevision,
	})

	for _, d := range ds {
		if d.Err != nil {
			w.logger.Warn("file change sync failed",
				slog.Int64("post_id", p.ID),
				slog.String("mapping_id", d.MappingID),
				slog.String("error", d.Err.Error()),
			)
		}
	}

	return ds
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		return watcher.Add(path)
	})
}

// shouldIgnore skips hidden files and editor or upload temp files.
func shouldIgnore(path string) bool {
	name := filepath.Base(path)

	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".tmp") ||
		strings.HasSuffix(name, ".part")
}

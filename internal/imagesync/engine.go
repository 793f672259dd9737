package imagesync

import (
	"context"
	"fmt"
	"log/slog"

	cfierrors "github.com/investblog/cloudflare-images-sync/internal/errors"
	"github.com/investblog/cloudflare-images-sync/internal/models"
)

// EngineConfig holds the engine's collaborators.
type EngineConfig struct {
	Meta      MetaStore
	Resolver  *Resolver
	Settings  SettingsSource
	Presets   PresetFinder
	NewClient ClientFactory
}

// WriteListener is told that Sync wrote target fields on postID. It is
// called while g is still locked, so save events a host raises for its
// own meta writes can be passed back through Hooks.Handle with g and
// are ignored there.
type WriteListener func(ctx context.Context, g *Guard, postID int64)

// Engine syncs one post against one mapping. Sync is safe to retry:
// with an unchanged file a repeated call makes no remote calls.
type Engine struct {
	meta      MetaStore
	resolver  *Resolver
	settings  SettingsSource
	presets   PresetFinder
	newClient ClientFactory
	onWrite   WriteListener
	logger    *slog.Logger
}

// NewEngine creates an engine from cfg. A nil NewClient uses the real
// Cloudflare client.
func NewEngine(cfg EngineConfig, logger *slog.Logger) *Engine {
	newClient := cfg.NewClient
	if newClient == nil {
		newClient = NewCloudflareClient
	}

	return &Engine{
		meta:      cfg.Meta,
		resolver:  cfg.Resolver,
		settings:  cfg.Settings,
		presets:   cfg.Presets,
		newClient: newClient,
		logger:    logger,
	}
}

// Resolver returns the engine's source resolver.
func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

// OnPostWrite sets the listener called after target fields are written.
func (e *Engine) OnPostWrite(l WriteListener) {
	e.onWrite = l
}

// Sync brings the mapping's target fields on postID up to date,
// uploading the source image when needed. An empty source is not an
// error. Remote errors are returned unchanged for the caller to retry.
//
// g is the unit of work's guard. Sync holds its lock while running; a
// lock the caller already holds is left held. A nil g gets a fresh one.
func (e *Engine) Sync(ctx context.Context, g *Guard, postID int64, m models.Mapping) error {
	if g == nil {
		g = NewGuard()
	}

	if !g.IsLocked() {
		g.Lock()
		defer g.Unlock()
	}

	log := e.logger.With(slog.Int64("post_id", postID), slog.String("mapping_id", m.ID))

	src := e.resolver.Resolve(ctx, postID, m.Source)
	if src.Empty {
		cleared, err := e.handleEmpty(ctx, log, postID, m)
		if cleared {
			e.notify(ctx, g, postID)
		}

		return err
	}

	settings, err := e.settings.Get()
	if err != nil {
		log.ErrorContext(ctx, "loading settings failed", slog.String("error", err.Error()))
		return fmt.Errorf("loading settings: %w", err)
	}

	cache, err := e.readCache(src.AttachmentID)
	if err != nil {
		log.ErrorContext(ctx, "reading attachment cache failed", slog.String("error", err.Error()))
		return err
	}

	post, err := e.readPostFields(postID, m.Target)
	if err != nil {
		log.ErrorContext(ctx, "reading post fields failed", slog.String("error", err.Error()))
		return err
	}

	sig, _ := ComputeSignature(src.FilePath)

	d := Decide(DecisionInput{
		Cache:     cache,
		Post:      post,
		Signature: sig,
		Behavior:  m.Behavior,
	})

	urls := NewURLBuilder(settings.AccountHash)
	preset := e.preset(ctx, m.PresetID)

	switch d.Action {
	case DecisionReuse:
		// The image ID and signature are still recorded when the URL
		// cannot be built; the next sync with a fixed account hash fills it.
		url, err := urls.URLFromPreset(cache.ImageID, preset)
		if err != nil {
			log.WarnContext(ctx, "could not build delivery URL, check account_hash", slog.String("error", err.Error()))
			url = ""
		}

		if err := e.writePostFields(postID, m.Target, PostFields{URL: url, ImageID: cache.ImageID, Signature: cache.Signature}); err != nil {
			log.ErrorContext(ctx, "writing post fields failed", slog.String("error", err.Error()))
			return err
		}

		e.notify(ctx, g, postID)
		log.InfoContext(ctx, "reused existing image from attachment cache")

		return nil

	case DecisionSkip:
		wrote, err := e.refreshURL(postID, m.Target, post.ImageID, urls, preset)
		if err != nil {
			log.ErrorContext(ctx, "refreshing delivery URL failed", slog.String("error", err.Error()))
			return err
		}

		if wrote {
			e.notify(ctx, g, postID)
		}

		log.InfoContext(ctx, "no upload needed")

		return nil
	}

	err = e.upload(ctx, log, uploadPlan{
		postID:   postID,
		mapping:  m,
		source:   src,
		cache:    cache,
		post:     post,
		settings: settings,
		urls:     urls,
		preset:   preset,
		reason:   d.Reason,
	})
	if err != nil {
		return err
	}

	e.notify(ctx, g, postID)

	return nil
}

func (e *Engine) notify(ctx context.Context, g *Guard, postID int64) {
	if e.onWrite != nil {
		e.onWrite(ctx, g, postID)
	}
}

type uploadPlan struct {
	postID   int64
	mapping  models.Mapping
	source   ResolvedSource
	cache    AttachmentCache
	post     PostFields
	settings models.Settings
	urls     URLBuilder
	preset   *models.Preset
	reason   string
}

func (e *Engine) upload(ctx context.Context, log *slog.Logger, p uploadPlan) error {
	if !p.settings.HasCredentials() {
		log.ErrorContext(ctx, "cloudflare client not configured")
		return cfierrors.ErrNotConfigured
	}

	client := e.newClient(p.settings.AccountID, p.settings.APIToken)

	// The old image stays when the attachment cache still points at it.
	if p.post.ImageID != "" && p.post.ImageID != p.cache.ImageID {
		if err := client.Delete(ctx, p.post.ImageID); err != nil {
			log.WarnContext(ctx, "deleting previous image failed",
				slog.String("image_id", p.post.ImageID),
				slog.String("error", err.Error()),
			)
		}
	} else if p.post.ImageID != "" {
		log.DebugContext(ctx, "kept previous image, still referenced by attachment cache")
	}

	img, err := client.Upload(ctx, p.source.FilePath, map[string]any{
		"post_id":       p.postID,
		"attachment_id": p.source.AttachmentID,
		"mapping_id":    p.mapping.ID,
	})
	if err != nil {
		log.ErrorContext(ctx, "upload failed", slog.String("error", err.Error()))
		return err
	}

	if img == nil || img.ID == "" {
		log.ErrorContext(ctx, "upload succeeded but no image ID returned")
		return cfierrors.ErrNoImageID
	}

	sig, err := ComputeSignature(p.source.FilePath)
	if err != nil {
		sig = ""
	}

	if p.source.AttachmentID > 0 {
		if err := e.writeCache(p.source.AttachmentID, AttachmentCache{ImageID: img.ID, Signature: sig}); err != nil {
			log.ErrorContext(ctx, "writing attachment cache failed", slog.String("error", err.Error()))
			return err
		}
	}

	url, err := p.urls.URLFromPreset(img.ID, p.preset)
	if err != nil {
		log.ErrorContext(ctx, "could not build delivery URL, check account_hash", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", cfierrors.ErrURLBuildFailed, err)
	}

	if err := e.writePostFields(p.postID, p.mapping.Target, PostFields{URL: url, ImageID: img.ID, Signature: sig}); err != nil {
		log.ErrorContext(ctx, "writing post fields failed", slog.String("error", err.Error()))
		return err
	}

	log.InfoContext(ctx, "synced", slog.String("extra", p.reason), slog.String("image_id", img.ID))

	return nil
}

// handleEmpty reports whether target meta was cleared.
func (e *Engine) handleEmpty(ctx context.Context, log *slog.Logger, postID int64, m models.Mapping) (bool, error) {
	if !m.Behavior.ClearOnEmpty {
		log.InfoContext(ctx, "source empty, nothing to do")
		return false, nil
	}

	for _, key := range targetKeys(m.Target) {
		if err := e.meta.DeleteMeta(postID, key); err != nil {
			log.ErrorContext(ctx, "clearing target meta failed", slog.String("error", err.Error()))
			return false, fmt.Errorf("clearing %s: %w", key, err)
		}
	}

	log.InfoContext(ctx, "source empty, cleared target meta")

	return true, nil
}

// refreshURL rewrites only the URL field from the post's recorded image
// ID, picking up preset changes. Nothing is written when there is no
// recorded ID or the URL cannot be built.
func (e *Engine) refreshURL(postID int64, t models.Target, imageID string, urls URLBuilder, preset *models.Preset) (bool, error) {
	if imageID == "" || t.URLMeta == "" {
		return false, nil
	}

	url, err := urls.URLFromPreset(imageID, preset)
	if err != nil {
		return false, nil
	}

	return true, e.meta.SetMeta(postID, t.URLMeta, url)
}

func (e *Engine) preset(ctx context.Context, id string) *models.Preset {
	if id == "" || e.presets == nil {
		return nil
	}

	p, err := e.presets.Find(id)
	if err != nil {
		e.logger.DebugContext(ctx, "loading preset", slog.String("preset_id", id), slog.String("error", err.Error()))
		return nil
	}

	return p
}

func (e *Engine) readCache(attachmentID int64) (AttachmentCache, error) {
	var c AttachmentCache
	if attachmentID <= 0 {
		return c, nil
	}

	var err error
	if c.ImageID, err = e.meta.GetMeta(attachmentID, CacheImageIDKey); err != nil {
		return c, fmt.Errorf("reading attachment cache: %w", err)
	}

	if c.Signature, err = e.meta.GetMeta(attachmentID, CacheSignatureKey); err != nil {
		return c, fmt.Errorf("reading attachment cache: %w", err)
	}

	return c, nil
}

func (e *Engine) writeCache(attachmentID int64, c AttachmentCache) error {
	if err := e.meta.SetMeta(attachmentID, CacheImageIDKey, c.ImageID); err != nil {
		return fmt.Errorf("writing attachment cache: %w", err)
	}

	if err := e.meta.SetMeta(attachmentID, CacheSignatureKey, c.Signature); err != nil {
		return fmt.Errorf("writing attachment cache: %w", err)
	}

	return nil
}

func (e *Engine) readPostFields(postID int64, t models.Target) (PostFields, error) {
	var f PostFields

	read := func(key string, dst *string) error {
		if key == "" {
			return nil
		}

		v, err := e.meta.GetMeta(postID, key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", key, err)
		}

		*dst = v

		return nil
	}

	if err := read(t.URLMeta, &f.URL); err != nil {
		return f, err
	}

	if err := read(t.IDMeta, &f.ImageID); err != nil {
		return f, err
	}

	if err := read(t.SigMeta, &f.Signature); err != nil {
		return f, err
	}

	return f, nil
}

func (e *Engine) writePostFields(postID int64, t models.Target, f PostFields) error {
	pairs := []struct{ key, value string }{
		{t.URLMeta, f.URL},
		{t.IDMeta, f.ImageID},
		{t.SigMeta, f.Signature},
	}

	for _, p := range pairs {
		if p.key == "" {
			continue
		}

		if err := e.meta.SetMeta(postID, p.key, p.value); err != nil {
			return fmt.Errorf("writing %s: %w", p.key, err)
		}
	}

	return nil
}

func targetKeys(t models.Target) []string {
	var keys []string

	for _, k := range []string{t.URLMeta, t.IDMeta, t.SigMeta} {
		if k != "" {
			keys = append(keys, k)
		}
	}

	return keys
}

package imagesync

import (
	"context"
	"fmt"

	"github.com/investblog/cloudflare-images-sync/internal/models"
)

// Preview is a dry run of Sync: what the engine would see and decide
// for a post, without remote calls or writes.
type Preview struct {
	PostID    int64           `json:"post_id"`
	MappingID string          `json:"mapping_id"`
	Source    ResolvedSource  `json:"source"`
	Cache     AttachmentCache `json:"attachment_cache"`
	Post      PostFields      `json:"post_fields"`
	Signature string          `json:"signature,omitempty"`
	Decision  Decision        `json:"decision"`
	Variant   string          `json:"variant"`

	// URL is the delivery URL the post would end up with when it can be
	// known without uploading.
	URL      string `json:"url,omitempty"`
	URLError string `json:"url_error,omitempty"`
}

// Preview runs resolution and the upload decision for postID without
// side effects.
func (e *Engine) Preview(ctx context.Context, postID int64, m models.Mapping) (Preview, error) {
	pv := Preview{PostID: postID, MappingID: m.ID}

	pv.Source = e.resolver.Resolve(ctx, postID, m.Source)

	post, err := e.readPostFields(postID, m.Target)
	if err != nil {
		return pv, err
	}

	pv.Post = post

	preset := e.preset(ctx, m.PresetID)
	pv.Variant = preset.VariantOrDefault()

	if pv.Source.Empty {
		pv.Decision = Decision{Action: DecisionNone}
		return pv, nil
	}

	settings, err := e.settings.Get()
	if err != nil {
		return pv, fmt.Errorf("loading settings: %w", err)
	}

	if pv.Cache, err = e.readCache(pv.Source.AttachmentID); err != nil {
		return pv, err
	}

	pv.Signature, _ = ComputeSignature(pv.Source.FilePath)

	pv.Decision = Decide(DecisionInput{
		Cache:     pv.Cache,
		Post:      pv.Post,
		Signature: pv.Signature,
		Behavior:  m.Behavior,
	})

	imageID := ""

	switch pv.Decision.Action {
	case DecisionReuse:
		imageID = pv.Cache.ImageID
	case DecisionSkip:
		imageID = pv.Post.ImageID
	}

	if imageID != "" {
		url, err := NewURLBuilder(settings.AccountHash).URLFromPreset(imageID, preset)
		if err != nil {
			pv.URLError = err.Error()
		} else {
			pv.URL = url
		}
	}

	return pv, nil
}

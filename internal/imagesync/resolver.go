package imagesync

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/investblog/cloudflare-images-sync/internal/models"
	"github.com/tidwall/gjson"
)

// ResolvedSource is the local image a mapping's source points at for
// one post. Empty is true when nothing usable was found.
type ResolvedSource struct {
	AttachmentID int64  `json:"attachment_id"`
	FilePath     string `json:"file_path"`
	Empty        bool   `json:"is_empty"`
}

// Resolver maps a mapping's source descriptor onto an attachment with a
// readable local file. It never fails; anything unresolvable is empty.
type Resolver struct {
	host   Host
	meta   MetaStore
	fields FieldReader
	logger *slog.Logger
}

// NewResolver creates a resolver. fields may be nil, in which case
// custom-field sources always resolve empty.
func NewResolver(host Host, meta MetaStore, fields FieldReader, logger *slog.Logger) *Resolver {
	return &Resolver{
		host:   host,
		meta:   meta,
		fields: fields,
		logger: logger,
	}
}

// FieldsAvailable reports whether custom-field sources can resolve.
func (r *Resolver) FieldsAvailable() bool {
	return r.fields != nil
}

// Resolve finds the attachment for src on the given post.
func (r *Resolver) Resolve(ctx context.Context, postID int64, src models.Source) ResolvedSource {
	var candidate int64

	switch src.Type {
	case models.SourceACFField:
		candidate = r.fromField(ctx, postID, src.Key)
	case models.SourceFeaturedImage:
		id, err := r.host.ThumbnailID(postID)
		if err != nil {
			r.logger.DebugContext(ctx, "reading thumbnail", slog.Int64("post_id", postID), slog.String("error", err.Error()))
		}
		candidate = id
	case models.SourcePostMetaAttachmentID:
		candidate = parseID(r.metaValue(ctx, postID, src.Key))
	case models.SourcePostMetaURL:
		candidate = r.fromURL(ctx, r.metaValue(ctx, postID, src.Key))
	case models.SourceAttachmentID:
		candidate = postID
	}

	return r.attachment(ctx, candidate)
}

func (r *Resolver) metaValue(ctx context.Context, postID int64, key string) string {
	if key == "" {
		return ""
	}

	v, err := r.meta.GetMeta(postID, key)
	if err != nil {
		r.logger.DebugContext(ctx, "reading source meta",
			slog.Int64("post_id", postID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	return strings.TrimSpace(v)
}

// fromField accepts the three shapes a custom image field is stored in:
// an attachment ID (number or numeric string), an object carrying "ID",
// or a URL string.
func (r *Resolver) fromField(ctx context.Context, postID int64, key string) int64 {
	if r.fields == nil || key == "" {
		return 0
	}

	raw, err := r.fields.Field(postID, key)
	if err != nil {
		r.logger.DebugContext(ctx, "reading custom field",
			slog.Int64("post_id", postID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)

		return 0
	}

	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return 0
	}

	v := gjson.ParseBytes(raw)

	switch {
	case v.Type == gjson.Number:
		return v.Int()
	case v.IsObject():
		return v.Get("ID").Int()
	case v.Type == gjson.String:
		s := strings.TrimSpace(v.String())
		if id := parseID(s); id > 0 {
			return id
		}

		return r.fromURL(ctx, s)
	}

	return 0
}

func (r *Resolver) fromURL(ctx context.Context, rawURL string) int64 {
	if rawURL == "" {
		return 0
	}

	id, err := r.host.AttachmentIDByURL(rawURL)
	if err != nil {
		r.logger.DebugContext(ctx, "resolving attachment url", slog.String("error", err.Error()))
		return 0
	}

	return id
}

// attachment confirms the candidate is an attachment whose file exists.
func (r *Resolver) attachment(ctx context.Context, id int64) ResolvedSource {
	empty := ResolvedSource{Empty: true}

	if id <= 0 {
		return empty
	}

	typ, err := r.host.PostType(id)
	if err != nil || typ != models.PostTypeAttachment {
		return empty
	}

	path, err := r.host.AttachedFile(id)
	if err != nil || path == "" {
		return empty
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		r.logger.DebugContext(ctx, "attachment file missing", slog.Int64("attachment_id", id))
		return empty
	}

	return ResolvedSource{AttachmentID: id, FilePath: path}
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}

	return id
}

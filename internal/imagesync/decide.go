package imagesync

import "github.com/investblog/cloudflare-images-sync/internal/models"

// Fixed meta keys of the attachment cache. They are shared by every
// mapping that resolves to the same attachment and never collide with
// mapping-configured target keys.
const (
	CacheImageIDKey   = "_cfi_cf_image_id"
	CacheSignatureKey = "_cfi_sig"
)

// AttachmentCache is the remote image ID and signature recorded on the
// attachment itself the last time its file was uploaded.
type AttachmentCache struct {
	ImageID   string `json:"image_id"`
	Signature string `json:"signature"`
}

// PostFields are the values a mapping stores on the post under its own
// target keys.
type PostFields struct {
	URL       string `json:"url"`
	ImageID   string `json:"image_id"`
	Signature string `json:"signature"`
}

// SyncAction is what the engine does for a resolved source.
type SyncAction int

const (
	// DecisionNone means the source resolved empty. Target fields are
	// cleared when the mapping asks for it.
	DecisionNone SyncAction = iota

	// DecisionReuse means the attachment cache matches the file. The
	// cached image is written to the post without uploading.
	DecisionReuse

	// DecisionSkip means no upload is needed. Only the URL is rebuilt
	// from the post's recorded image ID.
	DecisionSkip

	// DecisionUpload means the file is sent to the remote API.
	DecisionUpload
)

func (a SyncAction) String() string {
	switch a {
	case DecisionNone:
		return "none"
	case DecisionReuse:
		return "reuse"
	case DecisionSkip:
		return "skip"
	case DecisionUpload:
		return "upload"
	}

	return "unknown"
}

// MarshalText renders the action by name in JSON output.
func (a SyncAction) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Upload reasons.
const (
	ReasonFirstUpload    = "first_upload"
	ReasonContentChanged = "content_changed"
	ReasonStaleCache     = "stale_attachment_cache"
)

// Decision is the outcome of Decide.
type Decision struct {
	Action SyncAction `json:"action"`
	Reason string     `json:"reason,omitempty"`
}

// DecisionInput is everything Decide looks at. Signature is the current
// file signature, "" when it could not be computed.
type DecisionInput struct {
	Cache     AttachmentCache
	Post      PostFields
	Signature string
	Behavior  models.Behavior
}

// Decide picks the action for a resolved, non-empty source. It is a
// pure function; the engine performs the I/O it calls for.
//
// A fresh attachment cache always wins. Otherwise the first matching
// rule uploads:
//   - nothing recorded anywhere and upload_if_missing is set
//   - the post has an image, reupload_if_changed is set and the file
//     differs from the post's signature
//   - the attachment cache holds an image for an older file
//
// The stale-cache rule also uploads when reupload_if_changed is off.
func Decide(in DecisionInput) Decision {
	if in.Cache.ImageID != "" && !signatureDiffers(in.Signature, in.Cache.Signature) {
		return Decision{Action: DecisionReuse}
	}

	switch {
	case in.Post.ImageID == "" && in.Cache.ImageID == "" && in.Behavior.UploadIfMissing:
		return Decision{Action: DecisionUpload, Reason: ReasonFirstUpload}
	case in.Post.ImageID != "" && in.Behavior.ReuploadIfChanged:
		if signatureDiffers(in.Signature, in.Post.Signature) {
			return Decision{Action: DecisionUpload, Reason: ReasonContentChanged}
		}
	case in.Cache.ImageID != "":
		return Decision{Action: DecisionUpload, Reason: ReasonStaleCache}
	}

	return Decision{Action: DecisionSkip}
}

// Package imagesync decides, for one post and one mapping, whether an
// image has to be sent to Cloudflare Images and what gets written back
// onto the post afterwards.
package imagesync

import (
	"context"

	"github.com/investblog/cloudflare-images-sync/internal/cloudflare"
	"github.com/investblog/cloudflare-images-sync/internal/models"
)

//go:generate mockgen -destination=mocks_test.go -package=imagesync . ImagesAPI,Queue

// MetaStore reads and writes string meta values scoped to a post or
// attachment. Missing keys read as "".
type MetaStore interface {
	GetMeta(objectID int64, key string) (string, error)
	SetMeta(objectID int64, key, value string) error
	DeleteMeta(objectID int64, key string) error
}

// Host answers questions about posts and their media.
type Host interface {
	PostType(id int64) (string, error)
	AttachedFile(id int64) (string, error)
	ThumbnailID(id int64) (int64, error)
	AttachmentIDByURL(url string) (int64, error)
}

// FieldReader returns the raw JSON value of a custom field, or nil when
// the field is unset.
type FieldReader interface {
	Field(objectID int64, name string) ([]byte, error)
}

// ImagesAPI is the part of the remote images client the engine calls.
type ImagesAPI interface {
	Upload(ctx context.Context, path string, meta map[string]any) (*cloudflare.Image, error)
	Delete(ctx context.Context, imageID string) error
}

// ClientFactory builds an ImagesAPI for the configured account.
type ClientFactory func(accountID, token string) ImagesAPI

// SettingsSource returns the current plugin settings, with the API
// token decrypted.
type SettingsSource interface {
	Get() (models.Settings, error)
}

// PresetFinder looks up a preset by ID. It returns nil when no preset
// has that ID.
type PresetFinder interface {
	Find(id string) (*models.Preset, error)
}

// MappingSource lists the configured mappings.
type MappingSource interface {
	All() ([]models.Mapping, error)
	ForPostType(postType string) ([]models.Mapping, error)
}

// Queue defers work to a background worker. Availability is asked for
// on every dispatch.
type Queue interface {
	Available() bool
	Enqueue(ctx context.Context, hook string, args any) error
}

// NewCloudflareClient is the default ClientFactory.
func NewCloudflareClient(accountID, token string) ImagesAPI {
	return cloudflare.NewClient(accountID, token, nil)
}

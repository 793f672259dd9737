// Package models defines types shared across internal packages.
package models

// Source types a mapping can read its image from.
const (
	SourceACFField             = "acf_field"
	SourceFeaturedImage        = "featured_image"
	SourcePostMetaAttachmentID = "post_meta_attachment_id"
	SourcePostMetaURL          = "post_meta_url"
	SourceAttachmentID         = "attachment_id"
)

// SourceTypes lists every allowed source type.
var SourceTypes = []string{
	SourceACFField,
	SourceFeaturedImage,
	SourcePostMetaAttachmentID,
	SourcePostMetaURL,
	SourceAttachmentID,
}

// Status filters.
const (
	StatusAny     = "any"
	StatusPublish = "publish"
)

// Trigger names, matching the host save events.
const (
	TriggerSavePost    = "save_post"
	TriggerACFSavePost = "acf_save_post"
)

// Mapping binds one post type to one image sync behavior.
type Mapping struct {
	ID        string   `json:"id" yaml:"id"`
	PostType  string   `json:"post_type" yaml:"post_type"`
	Status    string   `json:"status" yaml:"status"`
	Triggers  Triggers `json:"triggers" yaml:"triggers"`
	Source    Source   `json:"source" yaml:"source"`
	Target    Target   `json:"target" yaml:"target"`
	Behavior  Behavior `json:"behavior" yaml:"behavior"`
	PresetID  string   `json:"preset_id" yaml:"preset_id"`
	UpdatedAt int64    `json:"updated_at,omitempty" yaml:"-"`
}

// Triggers selects which save events activate a mapping.
type Triggers struct {
	SavePost    bool `json:"save_post" yaml:"save_post"`
	ACFSavePost bool `json:"acf_save_post" yaml:"acf_save_post"`
}

// Enabled reports whether the named trigger is switched on.
func (t Triggers) Enabled(trigger string) bool {
	switch trigger {
	case TriggerSavePost:
		return t.SavePost
	case TriggerACFSavePost:
		return t.ACFSavePost
	}

	return false
}

// Source describes where the original image lives on a post.
type Source struct {
	Type string `json:"type" yaml:"type"`
	Key  string `json:"key" yaml:"key"`
}

// RequiresKey reports whether this source type needs a field/meta key.
func (s Source) RequiresKey() bool {
	return s.Type != SourceFeaturedImage && s.Type != SourceAttachmentID
}

// Target names the post meta keys sync results are written to.
// URLMeta is always set; IDMeta and SigMeta are optional.
type Target struct {
	URLMeta string `json:"url_meta" yaml:"url_meta"`
	IDMeta  string `json:"id_meta" yaml:"id_meta"`
	SigMeta string `json:"sig_meta" yaml:"sig_meta"`
}

// Behavior holds the mapping's upload policy flags.
type Behavior struct {
	UploadIfMissing    bool `json:"upload_if_missing" yaml:"upload_if_missing"`
	ReuploadIfChanged  bool `json:"reupload_if_changed" yaml:"reupload_if_changed"`
	ClearOnEmpty       bool `json:"clear_on_empty" yaml:"clear_on_empty"`

	// StoreCFIDOnPost and DeleteCFOnReupload are stored and round-tripped
	// only. The ID field is written whenever Target.IDMeta is set, and a
	// replaced image is deleted unless the attachment cache still uses it.
	StoreCFIDOnPost    bool `json:"store_cf_id_on_post" yaml:"store_cf_id_on_post"`
	DeleteCFOnReupload bool `json:"delete_cf_on_reupload" yaml:"delete_cf_on_reupload"`
}

// DefaultMapping returns the defaults new and partially specified
// mappings are normalized against.
func DefaultMapping() Mapping {
	return Mapping{
		Status: StatusAny,
		Triggers: Triggers{
			SavePost:    true,
			ACFSavePost: true,
		},
		Source: Source{Type: SourceACFField},
		Behavior: Behavior{
			UploadIfMissing:   true,
			ReuploadIfChanged: true,
			ClearOnEmpty:      true,
			StoreCFIDOnPost:   true,
		},
	}
}

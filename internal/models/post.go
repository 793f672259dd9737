package models

// PostTypeAttachment is the post type of media objects.
const PostTypeAttachment = "attachment"

// PostStatusAutoDraft marks posts the host created but the user never saved.
const PostStatusAutoDraft = "auto-draft"

// Post is a host content object. Attachments carry the local file path
// and public URL of the media they represent.
type Post struct {
	ID          int64  `json:"id" yaml:"id"`
	Type        string `json:"type" yaml:"type"`
	Status      string `json:"status" yaml:"status"`
	ParentID    int64  `json:"parent_id,omitempty" yaml:"parent_id"`
	IsRevision  bool   `json:"is_revision,omitempty" yaml:"is_revision"`
	ThumbnailID int64  `json:"thumbnail_id,omitempty" yaml:"thumbnail_id"`
	File        string `json:"file,omitempty" yaml:"file"`
	URL         string `json:"url,omitempty" yaml:"url"`
}

// IsAttachment reports whether the post is a media object.
func (p *Post) IsAttachment() bool {
	return p != nil && p.Type == PostTypeAttachment
}

// LogEntry is one record in the sync log ring buffer.
type LogEntry struct {
	Time      int64  `json:"t"`
	Level     string `json:"lvl"`
	Message   string `json:"msg"`
	PostID    int64  `json:"post_id,omitempty"`
	MappingID string `json:"mapping_id,omitempty"`
	Extra     string `json:"extra,omitempty"`
}

package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/investblog/cloudflare-images-sync/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.cfi-sync/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	postsBucket   = []byte("posts")
	urlIndex      = []byte("post_urls")
	optionsBucket = []byte("options")
	jobsBucket    = []byte("jobs")
)

func metaBucket(objectID int64) []byte {
	return []byte("meta:" + strconv.FormatInt(objectID, 10))
}

func fieldsBucket(objectID int64) []byte {
	return []byte("fields:" + strconv.FormatInt(objectID, 10))
}

// idKey encodes an ID big-endian so bolt's byte ordering matches
// numeric ordering. Paginated post queries rely on this.
func idKey(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))

	return b
}

func keyID(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// State wraps a bbolt database holding the host content model: posts,
// post meta, custom fields, options and the job queue.
type State struct {
	db *bolt.DB
}

// Load opens the state database at ~/.cfi-sync/state.db, creating it
// if it does not exist.
func Load() (*State, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}

	return LoadAt(path)
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{postsBucket, urlIndex, optionsBucket, jobsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// DefaultPath returns ~/.cfi-sync/state.db.
func DefaultPath() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(dir, ".cfi-sync", "state.db"), nil
}

// --- Posts ---

// GetPost returns the post with the given ID, or nil if not found.
func (s *State) GetPost(id int64) (*models.Post, error) {
	var p *models.Post

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(postsBucket).Get(idKey(id))
		if v == nil {
			return nil
		}

		p = &models.Post{}

		return json.Unmarshal(v, p)
	})

	return p, err
}

// PutPost creates or replaces a post. Attachment URLs are indexed for
// reverse URL lookups; a changed URL drops the stale index entry.
func (s *State) PutPost(p models.Post) error {
	if p.ID <= 0 {
		return fmt.Errorf("post ID must be positive, got %d", p.ID)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		posts := tx.Bucket(postsBucket)
		urls := tx.Bucket(urlIndex)

		if old := posts.Get(idKey(p.ID)); old != nil {
			var prev models.Post
			if err := json.Unmarshal(old, &prev); err != nil {
				return err
			}

			if prev.URL != "" && prev.URL != p.URL {
				if err := urls.Delete([]byte(normalizeURL(prev.URL))); err != nil {
					return err
				}
			}
		}

		data, err := json.Marshal(p)
		if err != nil {
			return err
		}

		if err := posts.Put(idKey(p.ID), data); err != nil {
			return err
		}

		if p.URL != "" && p.IsAttachment() {
			return urls.Put([]byte(normalizeURL(p.URL)), idKey(p.ID))
		}

		return nil
	})
}

// PostType returns the post's type, or "" when the post does not exist.
func (s *State) PostType(id int64) (string, error) {
	p, err := s.GetPost(id)
	if err != nil || p == nil {
		return "", err
	}

	return p.Type, nil
}

// AttachedFile returns the local file path recorded for an attachment.
func (s *State) AttachedFile(id int64) (string, error) {
	p, err := s.GetPost(id)
	if err != nil || p == nil {
		return "", err
	}

	return p.File, nil
}

// ThumbnailID returns the featured image attachment ID of a post, or 0.
func (s *State) ThumbnailID(id int64) (int64, error) {
	p, err := s.GetPost(id)
	if err != nil || p == nil {
		return 0, err
	}

	return p.ThumbnailID, nil
}

// AttachmentIDByURL maps a public media URL back to its attachment ID.
// Query strings, fragments and the URL scheme are ignored. Returns 0
// when nothing matches.
func (s *State) AttachmentIDByURL(rawURL string) (int64, error) {
	key := normalizeURL(rawURL)
	if key == "" {
		return 0, nil
	}

	var id int64

	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(urlIndex).Get([]byte(key)); v != nil {
			id = keyID(v)
		}

		return nil
	})

	return id, err
}

// AttachmentIDByFile finds the attachment whose local file is path.
// Used by the uploads watcher; a linear scan is fine at that rate.
func (s *State) AttachmentIDByFile(path string) (int64, error) {
	want := filepath.Clean(path)

	var id int64

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(postsBucket).ForEach(func(k, v []byte) error {
			if id != 0 {
				return nil
			}

			var p models.Post
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}

			if p.IsAttachment() && p.File != "" && filepath.Clean(p.File) == want {
				id = p.ID
			}

			return nil
		})
	})

	return id, err
}

// QueryPosts returns post IDs of the given type in ascending ID order,
// skipping offset matches and returning at most limit. Status "any"
// matches every status except trash and auto-draft; any other status
// must match exactly. Revisions are never returned.
func (s *State) QueryPosts(postType, status string, offset, limit int) ([]int64, error) {
	var ids []int64

	if limit <= 0 {
		return ids, nil
	}

	skipped := 0

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(postsBucket).Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var p models.Post
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}

			if p.Type != postType || p.IsRevision || !statusMatches(p.Status, status) {
				continue
			}

			if skipped < offset {
				skipped++
				continue
			}

			ids = append(ids, p.ID)
			if len(ids) >= limit {
				return nil
			}
		}

		return nil
	})

	return ids, err
}

func statusMatches(postStatus, filter string) bool {
	if filter == models.StatusAny || filter == "" {
		return postStatus != "trash" && postStatus != models.PostStatusAutoDraft
	}

	return postStatus == filter
}

// --- Post meta ---

// GetMeta returns a meta value, or "" when the key is not set.
func (s *State) GetMeta(objectID int64, key string) (string, error) {
	var val string

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket(objectID))
		if b == nil {
			return nil
		}

		if v := b.Get([]byte(key)); v != nil {
			val = string(v)
		}

		return nil
	})

	return val, err
}

// SetMeta stores a meta value on a post or attachment.
func (s *State) SetMeta(objectID int64, key, value string) error {
	if key == "" {
		return fmt.Errorf("meta key is required")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(metaBucket(objectID))
		if err != nil {
			return err
		}

		return b.Put([]byte(key), []byte(value))
	})
}

// DeleteMeta removes a meta key. Deleting a missing key is not an error.
func (s *State) DeleteMeta(objectID int64, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket(objectID))
		if b == nil {
			return nil
		}

		return b.Delete([]byte(key))
	})
}

// AllMeta returns every meta value stored on an object.
func (s *State) AllMeta(objectID int64) (map[string]string, error) {
	result := make(map[string]string)

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket(objectID))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			result[string(k)] = string(v)
			return nil
		})
	})

	return result, err
}

// --- Custom fields ---

// Field returns the raw JSON value of a custom field, or nil when unset.
func (s *State) Field(objectID int64, name string) ([]byte, error) {
	var raw []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(fieldsBucket(objectID))
		if b == nil {
			return nil
		}

		if v := b.Get([]byte(name)); v != nil {
			raw = append([]byte(nil), v...)
		}

		return nil
	})

	return raw, err
}

// SetField stores a custom field value, JSON-encoded.
func (s *State) SetField(objectID int64, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding field %s: %w", name, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(fieldsBucket(objectID))
		if err != nil {
			return err
		}

		return b.Put([]byte(name), data)
	})
}

// --- Options ---

// GetOption decodes a named option into v. It reports false when the
// option has never been written.
func (s *State) GetOption(name string, v any) (bool, error) {
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(optionsBucket).Get([]byte(name))
		if data == nil {
			return nil
		}

		found = true

		return json.Unmarshal(data, v)
	})

	return found, err
}

// SetOption JSON-encodes v under the given option name.
func (s *State) SetOption(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding option %s: %w", name, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(optionsBucket).Put([]byte(name), data)
	})
}

// DeleteOption removes a named option.
func (s *State) DeleteOption(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(optionsBucket).Delete([]byte(name))
	})
}

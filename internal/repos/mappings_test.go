package repos

import (
	"testing"

	cfierrors "github.com/investblog/cloudflare-images-sync/internal/errors"
	"github.com/investblog/cloudflare-images-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMapping() models.Mapping {
	m := models.DefaultMapping()
	m.PostType = "product"
	m.Source = models.Source{Type: models.SourceACFField, Key: "hero"}
	m.Target = models.Target{URLMeta: "_hero_url"}

	return m
}

// --- Validation ---

func TestValidateMapping(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Mapping)
		ok     bool
	}{
		{"valid", func(*models.Mapping) {}, true},
		{"missing post type", func(m *models.Mapping) { m.PostType = "" }, false},
		{"bad source type", func(m *models.Mapping) { m.Source.Type = "gallery" }, false},
		{"missing key", func(m *models.Mapping) { m.Source.Key = "" }, false},
		{"featured image needs no key", func(m *models.Mapping) { m.Source = models.Source{Type: models.SourceFeaturedImage} }, true},
		{"attachment needs no key", func(m *models.Mapping) { m.Source = models.Source{Type: models.SourceAttachmentID} }, true},
		{"meta url needs key", func(m *models.Mapping) { m.Source = models.Source{Type: models.SourcePostMetaURL} }, false},
		{"missing url meta", func(m *models.Mapping) { m.Target.URLMeta = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMapping()
			tt.mutate(&m)

			err := ValidateMapping(m)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, cfierrors.ErrInvalidMapping)
			}
		})
	}
}

func TestNormalizeMapping(t *testing.T) {
	m := validMapping()
	m.Status = "draft"
	m.PostType = "  product "
	m.Target.URLMeta = " _u "

	n := NormalizeMapping(m)
	assert.Equal(t, models.StatusAny, n.Status)
	assert.Equal(t, "product", n.PostType)
	assert.Equal(t, "_u", n.Target.URLMeta)

	m.Status = models.StatusPublish
	assert.Equal(t, models.StatusPublish, NormalizeMapping(m).Status)
}

// --- CRUD ---

func TestMappings_CreateFindUpdateDelete(t *testing.T) {
	r := NewMappingsRepo(testDB(t))

	created, err := r.Create(validMapping())
	require.NoError(t, err)
	assert.True(t, ValidMappingID(created.ID))
	assert.NotZero(t, created.UpdatedAt)

	found, err := r.Find(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, found)

	upd := found
	upd.Target.IDMeta = "_hero_id"
	_, err = r.Update(created.ID, upd)
	require.NoError(t, err)

	found, err = r.Find(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "_hero_id", found.Target.IDMeta)

	require.NoError(t, r.Delete(created.ID))
	_, err = r.Find(created.ID)
	assert.ErrorIs(t, err, cfierrors.ErrMappingNotFound)
}

func TestMappings_CreateRejectsInvalid(t *testing.T) {
	r := NewMappingsRepo(testDB(t))

	m := validMapping()
	m.Target.URLMeta = ""

	_, err := r.Create(m)
	assert.ErrorIs(t, err, cfierrors.ErrInvalidMapping)

	all, err := r.All()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMappings_CreateKeepsWellFormedID(t *testing.T) {
	r := NewMappingsRepo(testDB(t))

	m := validMapping()
	m.ID = "map_0badc0de"
	created, err := r.Create(m)
	require.NoError(t, err)
	assert.Equal(t, "map_0badc0de", created.ID)

	// The same ID again gets a fresh one.
	again, err := r.Create(m)
	require.NoError(t, err)
	assert.NotEqual(t, "map_0badc0de", again.ID)

	m.ID = "custom"
	other, err := r.Create(m)
	require.NoError(t, err)
	assert.True(t, ValidMappingID(other.ID))
}

func TestMappings_UpdateAndDeleteMissing(t *testing.T) {
	r := NewMappingsRepo(testDB(t))

	_, err := r.Update("map_00000000", validMapping())
	assert.ErrorIs(t, err, cfierrors.ErrMappingNotFound)
	assert.ErrorIs(t, r.Delete("map_00000000"), cfierrors.ErrMappingNotFound)
}

func TestMappings_ForPostTypeKeepsOrder(t *testing.T) {
	r := NewMappingsRepo(testDB(t))

	a, err := r.Create(validMapping())
	require.NoError(t, err)

	page := validMapping()
	page.PostType = "page"
	_, err = r.Create(page)
	require.NoError(t, err)

	b, err := r.Create(validMapping())
	require.NoError(t, err)

	got, err := r.ForPostType("product")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, b.ID, got[1].ID)
}

func TestIDs(t *testing.T) {
	assert.Regexp(t, `^map_[0-9a-f]{8}$`, NewMappingID())
	assert.Regexp(t, `^preset_[0-9a-f]{8}$`, NewPresetID())
	assert.False(t, ValidMappingID("map_XYZ"))
	assert.False(t, ValidMappingID("map_0123456789"))
}

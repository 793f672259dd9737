package imagesync

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/investblog/cloudflare-images-sync/internal/models"
	"github.com/investblog/cloudflare-images-sync/internal/state"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type staticSettings struct {
	s models.Settings
}

func (f *staticSettings) Get() (models.Settings, error) { return f.s, nil }

type presetMap map[string]models.Preset

func (p presetMap) Find(id string) (*models.Preset, error) {
	preset, ok := p[id]
	if !ok {
		return nil, nil
	}

	return &preset, nil
}

type mappingList []models.Mapping

func (l mappingList) All() ([]models.Mapping, error) { return l, nil }

func (l mappingList) ForPostType(postType string) ([]models.Mapping, error) {
	var out []models.Mapping

	for _, m := range l {
		if m.PostType == postType {
			out = append(out, m)
		}
	}

	return out, nil
}

type testEnv struct {
	state    *state.State
	api      *MockImagesAPI
	settings *staticSettings
	presets  presetMap
	engine   *Engine
	dir      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	st, err := state.LoadAt(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctrl := gomock.NewController(t)
	env := &testEnv{
		state: st,
		api:   NewMockImagesAPI(ctrl),
		settings: &staticSettings{s: models.Settings{
			AccountID:   "acct",
			AccountHash: "myhash",
			APIToken:    "token",
			UseQueue:    true,
		}},
		presets: presetMap{},
		dir:     dir,
	}

	env.engine = NewEngine(EngineConfig{
		Meta:      st,
		Resolver:  NewResolver(st, st, st, testLogger),
		Settings:  env.settings,
		Presets:   env.presets,
		NewClient: func(string, string) ImagesAPI { return env.api },
	}, testLogger)

	return env
}

// attachment creates an attachment post backed by a real file.
func (e *testEnv) attachment(t *testing.T, id int64, content string) string {
	t.Helper()

	path := filepath.Join(e.dir, "uploads", filepath.Base(t.Name())+"-"+strconv.FormatInt(id, 10)+".jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, e.state.PutPost(models.Post{
		ID:     id,
		Type:   models.PostTypeAttachment,
		Status: "inherit",
		File:   path,
		URL:    "https://example.com/uploads/" + strconv.FormatInt(id, 10) + ".jpg",
	}))

	return path
}

func (e *testEnv) post(t *testing.T, id int64, postType string) {
	t.Helper()
	require.NoError(t, e.state.PutPost(models.Post{ID: id, Type: postType, Status: "publish"}))
}

func (e *testEnv) meta(t *testing.T, id int64, key string) string {
	t.Helper()
	v, err := e.state.GetMeta(id, key)
	require.NoError(t, err)

	return v
}

func fullMapping(id string) models.Mapping {
	m := models.DefaultMapping()
	m.ID = id
	m.PostType = "product"
	m.Source = models.Source{Type: models.SourceFeaturedImage}
	m.Target = models.Target{URLMeta: "_cdn_url", IDMeta: "_cdn_id", SigMeta: "_cdn_sig"}

	return m
}

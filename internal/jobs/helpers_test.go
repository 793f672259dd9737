package jobs

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/investblog/cloudflare-images-sync/internal/imagesync"
	"github.com/investblog/cloudflare-images-sync/internal/models"
	"github.com/investblog/cloudflare-images-sync/internal/repos"
	"github.com/investblog/cloudflare-images-sync/internal/state"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDB(t *testing.T) *state.State {
	t.Helper()
	s, err := state.LoadAt(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

type syncCall struct {
	postID    int64
	mappingID string
	// acquired is whether the guard still admitted the pair on entry.
	acquired bool
}

// fakeSyncer records calls and fails for posts listed in fail.
type fakeSyncer struct {
	mu    sync.Mutex
	calls []syncCall
	fail  map[int64]error
}

func (f *fakeSyncer) Sync(_ context.Context, g *imagesync.Guard, postID int64, m models.Mapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, syncCall{postID, m.ID, g.Acquire(postID, m.ID)})

	return f.fail[postID]
}

func (f *fakeSyncer) postIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]int64, 0, len(f.calls))
	for _, c := range f.calls {
		ids = append(ids, c.postID)
	}

	return ids
}

// seedProducts stores n published products with IDs 1..n and returns
// a mapping for them.
func seedProducts(t *testing.T, db *state.State, n int) models.Mapping {
	t.Helper()

	for i := 1; i <= n; i++ {
		require.NoError(t, db.PutPost(models.Post{ID: int64(i), Type: "product", Status: "publish"}))
	}

	m := models.DefaultMapping()
	m.PostType = "product"
	m.Source = models.Source{Type: models.SourceFeaturedImage}
	m.Target = models.Target{URLMeta: "_cdn_url"}

	created, err := repos.NewMappingsRepo(db).Create(m)
	require.NoError(t, err)

	return created
}

package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/investblog/cloudflare-images-sync/internal/app"
	"github.com/investblog/cloudflare-images-sync/internal/cloudflare"
	"github.com/investblog/cloudflare-images-sync/internal/config"
	"github.com/investblog/cloudflare-images-sync/internal/imagesync"
	"github.com/investblog/cloudflare-images-sync/internal/models"
	"github.com/stretchr/testify/require"
)

// fakeImages hands out sequential image IDs.
type fakeImages struct {
	mu      sync.Mutex
	uploads int
}

func (f *fakeImages) Upload(_ context.Context, _ string, _ map[string]any) (*cloudflare.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploads++

	return &cloudflare.Image{ID: fmt.Sprintf("img-%d", f.uploads)}, nil
}

func (f *fakeImages) Delete(context.Context, string) error { return nil }

type failingImages struct{ err error }

func (f failingImages) Upload(context.Context, string, map[string]any) (*cloudflare.Image, error) {
	return nil, f.err
}

func (f failingImages) Delete(context.Context, string) error { return nil }

type fakeTester struct{ err error }

func (f fakeTester) TestConnection(context.Context) error { return f.err }

// newTestOptions returns root options with a fake images client. A nil
// tester leaves the Cloudflare default in place.
func newTestOptions(tester ConnectionTester) *RootOptions {
	images := &fakeImages{}

	opts := &RootOptions{
		Version: "test",
		AppOptions: app.Options{
			NewClient: func(string, string) imagesync.ImagesAPI { return images },
			Console:   io.Discard,
		},
	}

	if tester != nil {
		opts.NewTester = func(string, string) ConnectionTester { return tester }
	}

	return opts
}

// setupEnv points configuration at a fresh state database with
// credentials supplied through the environment.
func setupEnv(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)

	for _, key := range []string{
		"CFI_UPLOADS_DIR",
		"CFI_LISTEN_ADDR",
		"CFI_API_KEYS",
		"CFI_CHUNK_SIZE",
		"CFI_WORKER_POLL",
		"CFI_HTTP_TIMEOUT",
		"CFI_SHUTDOWN_WAIT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("CFI_STATE_PATH", filepath.Join(dir, "state.db"))
	t.Setenv("CFI_SECRET_KEY", "0123456789abcdef0123")
	t.Setenv("CFI_ACCOUNT_ID", "acct")
	t.Setenv("CFI_ACCOUNT_HASH", "hash")
	t.Setenv("CFI_API_TOKEN", "secret-token")

	return dir
}

// openTestApp opens the app the commands will use. Close it before
// executing a command; bbolt holds an exclusive lock.
func openTestApp(t *testing.T, opts *RootOptions) *app.App {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := app.Open(cfg, opts.AppOptions)
	require.NoError(t, err)

	return a
}

// seedProducts stores n products, each with its own featured image,
// and a featured_image mapping for them.
func seedProducts(t *testing.T, dir string, opts *RootOptions, n int) models.Mapping {
	t.Helper()

	a := openTestApp(t, opts)
	defer a.Close()

	for i := 1; i <= n; i++ {
		file := filepath.Join(dir, fmt.Sprintf("img-%d.jpg", i))
		require.NoError(t, os.WriteFile(file, []byte(fmt.Sprintf("jpeg %d", i)), 0o644))

		attID := int64(100 + i)
		require.NoError(t, a.State.PutPost(models.Post{ID: attID, Type: models.PostTypeAttachment, Status: "inherit", File: file}))
		require.NoError(t, a.State.PutPost(models.Post{ID: int64(i), Type: "product", Status: "publish", ThumbnailID: attID}))
	}

	m := models.DefaultMapping()
	m.PostType = "product"
	m.Source = models.Source{Type: models.SourceFeaturedImage}
	m.Target = models.Target{URLMeta: "_cdn_url", IDMeta: "_cdn_id"}

	m, err := a.Mappings.Create(m)
	require.NoError(t, err)

	return m
}

func execute(t *testing.T, opts *RootOptions, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	cmd := newRootCommand(opts)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())

	return stdout.String(), stderr.String(), err
}

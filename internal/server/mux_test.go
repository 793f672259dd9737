package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/investblog/cloudflare-images-sync/internal/auth"
	"github.com/investblog/cloudflare-images-sync/internal/imagesync"
	"github.com/investblog/cloudflare-images-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeHooks struct {
	events []imagesync.SaveEvent
	guards []*imagesync.Guard
}

func (f *fakeHooks) Handle(_ context.Context, g *imagesync.Guard, ev imagesync.SaveEvent) []imagesync.Dispatch {
	f.events = append(f.events, ev)
	f.guards = append(f.guards, g)

	return []imagesync.Dispatch{
		{MappingID: "map_00000001", Mode: imagesync.DispatchQueued},
		{MappingID: "map_00000002", Mode: imagesync.DispatchSynced, Err: errors.New("remote down")},
	}
}

type stubPosts map[int64]models.Post

func (s stubPosts) GetPost(id int64) (*models.Post, error) {
	p, ok := s[id]
	if !ok {
		return nil, nil
	}

	return &p, nil
}

func newTestMux(t *testing.T) (http.Handler, *fakeHooks, string) {
	t.Helper()

	key := auth.GenerateAPIKey()
	hooks := &fakeHooks{}
	mux := NewMux(MuxConfig{
		Keys:  auth.NewKeyring([]auth.APIKey{{UserID: "wp", Key: key}}),
		Hooks: hooks,
		Posts: stubPosts{
			10: {ID: 10, Type: "product", Status: "publish"},
			12: {ID: 12, Type: "product", Status: "inherit", ParentID: 10, IsRevision: true},
		},
		MCPHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		Logger: testLogger(),
	})

	return mux, hooks, key
}

func post(t *testing.T, h http.Handler, key, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/hooks/save", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

// --- /hooks/save ---

func TestSave_Dispatches(t *testing.T) {
	mux, hooks, key := newTestMux(t)

	rec := post(t, mux, key, `{"post_id":10,"post_type":"product","status":"publish","trigger":"save_post"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SaveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(10), resp.PostID)
	require.Len(t, resp.Dispatches, 2)
	assert.Equal(t, imagesync.DispatchQueued, resp.Dispatches[0].Mode)
	assert.Empty(t, resp.Dispatches[0].Error)
	assert.Equal(t, "remote down", resp.Dispatches[1].Error)

	require.Len(t, hooks.events, 1)
	assert.Equal(t, "save_post", hooks.events[0].Trigger)
}

func TestSave_FreshGuardPerRequest(t *testing.T) {
	mux, hooks, key := newTestMux(t)

	body := `{"post_id":10,"post_type":"product","trigger":"save_post"}`
	require.Equal(t, http.StatusOK, post(t, mux, key, body).Code)
	require.Equal(t, http.StatusOK, post(t, mux, key, body).Code)

	require.Len(t, hooks.guards, 2)
	assert.NotSame(t, hooks.guards[0], hooks.guards[1])
}

func TestSave_FillsPostType(t *testing.T) {
	mux, hooks, key := newTestMux(t)

	require.Equal(t, http.StatusOK, post(t, mux, key, `{"post_id":10,"trigger":"acf_save_post"}`).Code)
	assert.Equal(t, "product", hooks.events[0].PostType)

	assert.Equal(t, http.StatusNotFound, post(t, mux, key, `{"post_id":11,"trigger":"save_post"}`).Code)
}

func TestSave_UsesStoredStatusAndRevision(t *testing.T) {
	mux, hooks, key := newTestMux(t)

	// The body omits status, so only the stored post can satisfy a
	// publish-only mapping.
	require.Equal(t, http.StatusOK, post(t, mux, key, `{"post_id":10,"trigger":"save_post"}`).Code)
	require.Len(t, hooks.events, 1)
	assert.Equal(t, "publish", hooks.events[0].Status)
	assert.False(t, hooks.events[0].Revision)

	// A caller cannot override the stored type or status.
	body := `{"post_id":10,"post_type":"page","status":"draft","trigger":"save_post"}`
	require.Equal(t, http.StatusOK, post(t, mux, key, body).Code)
	assert.Equal(t, "product", hooks.events[1].PostType)
	assert.Equal(t, "publish", hooks.events[1].Status)

	require.Equal(t, http.StatusOK, post(t, mux, key, `{"post_id":12,"trigger":"save_post"}`).Code)
	assert.True(t, hooks.events[2].Revision)
}

func TestSave_BadRequests(t *testing.T) {
	mux, hooks, key := newTestMux(t)

	for _, body := range []string{
		`not json`,
		`{"post_id":0,"trigger":"save_post"}`,
		`{"post_id":10}`,
		`{"post_id":10,"trigger":"save_post","surprise":true}`,
	} {
		assert.Equal(t, http.StatusBadRequest, post(t, mux, key, body).Code, body)
	}

	assert.Empty(t, hooks.events)
}

func TestSave_RequiresKey(t *testing.T) {
	mux, hooks, _ := newTestMux(t)

	assert.Equal(t, http.StatusUnauthorized, post(t, mux, "", `{"post_id":10,"trigger":"save_post"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(t, mux, auth.GenerateAPIKey(), `{"post_id":10,"trigger":"save_post"}`).Code)
	assert.Empty(t, hooks.events)
}

// --- Other routes ---

func TestMux_HealthAndMCP(t *testing.T) {
	mux, _, key := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

// --- Run ---

func TestRun_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)

	go func() {
		errc <- Run(ctx, addr, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}), time.Second, testLogger())
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()

		return resp.StatusCode == http.StatusNoContent
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-errc)
}

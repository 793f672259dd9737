// Package server provides HTTP server construction for cfi-sync.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/investblog/cloudflare-images-sync/internal/auth"
	"github.com/investblog/cloudflare-images-sync/internal/imagesync"
	"github.com/investblog/cloudflare-images-sync/internal/models"
)

// maxEventBody bounds the size of a save event request.
const maxEventBody = 64 * 1024

// Dispatcher handles save events.
type Dispatcher interface {
	Handle(ctx context.Context, g *imagesync.Guard, ev imagesync.SaveEvent) []imagesync.Dispatch
}

// Posts loads the stored post a save event refers to.
type Posts interface {
	GetPost(id int64) (*models.Post, error)
}

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Keys       *auth.Keyring
	Hooks      Dispatcher
	Posts      Posts
	MCPHandler http.Handler
	Logger     *slog.Logger
}

// NewMux builds the HTTP mux with the health check, the save hook and
// MCP endpoints. Everything except the health check requires an API
// key.
func NewMux(cfg MuxConfig) *http.ServeMux {
	authMiddleware := auth.Middleware(cfg.Keys, cfg.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.Handle("POST /hooks/save", authMiddleware(HandleSave(cfg.Hooks, cfg.Posts, cfg.Logger)))

	if cfg.MCPHandler != nil {
		mux.Handle("/mcp", authMiddleware(cfg.MCPHandler))
	}

	return mux
}

// DispatchResult is one mapping's outcome in a save response.
type DispatchResult struct {
	MappingID string                 `json:"mapping_id"`
	Mode      imagesync.DispatchMode `json:"mode"`
	Error     string                 `json:"error,omitempty"`
}

// SaveResponse is the body returned by POST /hooks/save.
type SaveResponse struct {
	PostID     int64            `json:"post_id"`
	Dispatches []DispatchResult `json:"dispatches"`
}

// HandleSave decodes a save event and runs it through the hooks with a
// guard scoped to the request.
func HandleSave(hooks Dispatcher, posts Posts, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev imagesync.SaveEvent

		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody))
		dec.DisallowUnknownFields()

		if err := dec.Decode(&ev); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid save event: %v", err))
			return
		}

		if ev.PostID <= 0 || ev.Trigger == "" {
			writeError(w, http.StatusBadRequest, "post_id and trigger are required")
			return
		}

		// Type, status and revision come from the stored post, not the body.
		if posts != nil {
			p, err := posts.GetPost(ev.PostID)
			if err != nil {
				logger.Error("looking up post", slog.Int64("post_id", ev.PostID), slog.String("error", err.Error()))
				writeError(w, http.StatusInternalServerError, "post lookup failed")

				return
			}

			if p == nil {
				writeError(w, http.StatusNotFound, fmt.Sprintf("post %d not found", ev.PostID))
				return
			}

			ev.PostType = p.Type
			ev.Status = p.Status
			ev.Revision = ev.Revision || p.IsRevision
		}

		resp := SaveResponse{PostID: ev.PostID, Dispatches: []DispatchResult{}}

		for _, d := range hooks.Handle(r.Context(), imagesync.NewGuard(), ev) {
			dr := DispatchResult{MappingID: d.MappingID, Mode: d.Mode}
			if d.Err != nil {
				dr.Error = d.Err.Error()
			}

			resp.Dispatches = append(resp.Dispatches, dr)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Run serves handler on addr until ctx is cancelled, then shuts down
// gracefully within shutdownWait.
func Run(ctx context.Context, addr string, handler http.Handler, shutdownWait time.Duration, logger *slog.Logger) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("starting HTTP server", slog.String("listen", addr))

	errc := make(chan error, 1)

	go func() {
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

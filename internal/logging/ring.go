package logging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/investblog/cloudflare-images-sync/internal/repos"
)

// RingSink receives log entries for the persistent activity log.
type RingSink interface {
	Push(level, msg string, ctx repos.LogContext) error
}

// RingHandler is a slog.Handler that copies records about a post or
// mapping into the activity log. Records with neither a post_id nor a
// mapping_id attribute are dropped. Only post_id, mapping_id and extra
// are kept; extra falls back to the error attribute. Debug records are
// written only while debug reports true.
type RingHandler struct {
	sink  RingSink
	debug func() bool
	attrs []slog.Attr
	group bool
}

// NewRingHandler creates a handler pushing to sink. debug may be nil.
func NewRingHandler(sink RingSink, debug func() bool) *RingHandler {
	return &RingHandler{sink: sink, debug: debug}
}

// Enabled implements slog.Handler.
func (h *RingHandler) Enabled(_ context.Context, level slog.Level) bool {
	if level >= slog.LevelInfo {
		return true
	}

	return h.debug != nil && h.debug()
}

// Handle implements slog.Handler.
func (h *RingHandler) Handle(_ context.Context, r slog.Record) error {
	var (
		lc      repos.LogContext
		errText string
	)

	collect := func(a slog.Attr) {
		switch a.Key {
		case "post_id":
			if v := a.Value.Resolve(); v.Kind() == slog.KindInt64 {
				lc.PostID = v.Int64()
			}
		case "mapping_id":
			lc.MappingID = a.Value.Resolve().String()
		case "extra":
			lc.Extra = a.Value.Resolve().String()
		case "error":
			errText = a.Value.Resolve().String()
		}
	}

	for _, a := range h.attrs {
		collect(a)
	}

	if !h.group {
		r.Attrs(func(a slog.Attr) bool {
			collect(a)
			return true
		})
	}

	if lc.PostID == 0 && lc.MappingID == "" {
		return nil
	}

	if lc.Extra == "" {
		lc.Extra = errText
	}

	return h.sink.Push(ringLevel(r.Level), r.Message, lc)
}

// WithAttrs implements slog.Handler. Attributes added inside a group
// are namespaced and therefore not picked up.
func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if h.group {
		return h
	}

	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)

	return &next
}

// WithGroup implements slog.Handler.
func (h *RingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	next := *h
	next.group = true

	return &next
}

func ringLevel(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return repos.LevelError
	case l >= slog.LevelWarn:
		return repos.LevelWarning
	case l >= slog.LevelInfo:
		return repos.LevelInfo
	default:
		return repos.LevelDebug
	}
}

// Tee fans records out to every handler that has the level enabled.
type Tee []slog.Handler

// Enabled implements slog.Handler.
func (t Tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

// Handle implements slog.Handler. Every handler runs; errors are joined.
func (t Tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error

	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}

		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// WithAttrs implements slog.Handler.
func (t Tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(Tee, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}

	return out
}

// WithGroup implements slog.Handler.
func (t Tee) WithGroup(name string) slog.Handler {
	out := make(Tee, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}

	return out
}

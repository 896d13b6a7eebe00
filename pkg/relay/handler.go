package relay

import (
	"context"
	"log/slog"

	"github.com/UlisseMini/sanitycheck-sub001/pkg/event"
)

// Handler is a slog.Handler that writes to an inner handler and also relays
// records at or above a minimum level through a Client.
type Handler struct {
	inner  slog.Handler
	client *Client
	level  slog.Level
	attrs  []scopedAttr
	groups []string
}

// scopedAttr is an attribute added by WithAttrs together with the groups
// open at that point
type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

// NewHandler creates a Handler forwarding WARN and above to client
func NewHandler(inner slog.Handler, client *Client) *Handler {
	return NewHandlerWithLevel(inner, client, slog.LevelWarn)
}

// NewHandlerWithLevel creates a Handler with a custom forwarding threshold
func NewHandlerWithLevel(inner slog.Handler, client *Client, level slog.Level) *Handler {
	return &Handler{inner: inner, client: client, level: level}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level) || (level >= h.level && h.client.Enabled())
}

// Handle implements slog.Handler.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if h.inner.Enabled(ctx, r.Level) {
		if err := h.inner.Handle(ctx, r); err != nil {
			return err
		}
	}

	if r.Level < h.level || isFallback(ctx) {
		return nil
	}

	data := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, sa := range h.attrs {
		addAttr(descend(data, sa.groups), sa.attr)
	}
	target := descend(data, h.groups)
	r.Attrs(func(a slog.Attr) bool {
		addAttr(target, a)
		return true
	})

	source := ""
	if s, ok := data["source"].(string); ok {
		source = s
		delete(data, "source")
	}
	if len(data) == 0 {
		data = nil
	}

	h.client.Submit(ctx, event.FromSlog(r.Level), r.Message, data, source)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.inner = h.inner.WithAttrs(attrs)
	h2.attrs = append([]scopedAttr(nil), h.attrs...)
	for _, a := range attrs {
		h2.attrs = append(h2.attrs, scopedAttr{groups: h.groups, attr: a})
	}
	return &h2
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.inner = h.inner.WithGroup(name)
	h2.groups = append(append([]string(nil), h.groups...), name)
	return &h2
}

// descend returns the map nested under groups, creating levels as needed
func descend(root map[string]any, groups []string) map[string]any {
	m := root
	for _, g := range groups {
		next, ok := m[g].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[g] = next
		}
		m = next
	}
	return m
}

func addAttr(m map[string]any, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Key == "" && v.Kind() != slog.KindGroup {
		return
	}
	if v.Kind() == slog.KindGroup {
		target := m
		if a.Key != "" {
			target = make(map[string]any)
			m[a.Key] = target
		}
		for _, ga := range v.Group() {
			addAttr(target, ga)
		}
		return
	}
	m[a.Key] = v.Any()
}

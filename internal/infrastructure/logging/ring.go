package logging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nerrad567/avx-core/internal/logring"
)

// ringHandler forwards records to next and mirrors them into a LogRing.
type ringHandler struct {
	next   slog.Handler
	ring   *logring.Ring
	attrs  []slog.Attr
	prefix string
}

func newRingHandler(next slog.Handler, ring *logring.Ring) *ringHandler {
	return &ringHandler{next: next, ring: ring}
}

func (h *ringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ringHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := logring.Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
	}

	attrs := make(map[string]string)
	for _, a := range h.attrs {
		collect(attrs, "", a, &entry)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(attrs, h.prefix, a, &entry)
		return true
	})
	if len(attrs) > 0 {
		entry.Attrs = attrs
	}

	h.ring.Append(entry)
	return h.next.Handle(ctx, r)
}

func (h *ringHandler) WithAttrs(as []slog.Attr) slog.Handler {
	if len(as) == 0 {
		return h
	}
	merged := make([]slog.Attr, 0, len(h.attrs)+len(as))
	merged = append(merged, h.attrs...)
	for _, a := range as {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		merged = append(merged, a)
	}
	return &ringHandler{
		next:   h.next.WithAttrs(as),
		ring:   h.ring,
		attrs:  merged,
		prefix: h.prefix,
	}
}

func (h *ringHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ringHandler{
		next:   h.next.WithGroup(name),
		ring:   h.ring,
		attrs:  h.attrs,
		prefix: h.prefix + name + ".",
	}
}

// collect flattens a into dst. The exception attribute is diverted into
// entry.Exception so the ring can strip it.
func collect(dst map[string]string, prefix string, a slog.Attr, entry *logring.Entry) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := prefix + a.Key
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if a.Key != "" {
			prefix = key + "."
		}
		for _, ga := range group {
			collect(dst, prefix, ga, entry)
		}
		return
	}

	if a.Key == ExceptionKey || strings.HasSuffix(key, "."+ExceptionKey) {
		entry.Exception = a.Value.String()
		return
	}
	dst[key] = a.Value.String()
}

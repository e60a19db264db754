package logbuf

import (
	"context"
	"log/slog"
)

// Handler captures slog records into a Ring. The "operation" and "gid"
// attributes map to the entry's dedicated fields; everything else lands in
// Extra.
type Handler struct {
	ring  *Ring
	level slog.Leveler
	attrs []slog.Attr
}

func NewHandler(ring *Ring, level slog.Leveler) *Handler {
	return &Handler{ring: ring, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	e := Entry{
		Timestamp: r.Time,
		Level:     levelName(r.Level),
		Message:   r.Message,
	}

	capture := func(a slog.Attr) {
		switch a.Key {
		case "operation":
			e.Operation = a.Value.String()
		case "gid":
			e.GID = a.Value.String()
		default:
			if e.Extra == nil {
				e.Extra = make(map[string]any)
			}

			e.Extra[a.Key] = a.Value.Any()
		}
	}

	for _, a := range h.attrs {
		capture(a)
	}

	r.Attrs(func(a slog.Attr) bool {
		capture(a)

		return true
	})

	h.ring.Append(e)

	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)

	return &Handler{ring: h.ring, level: h.level, attrs: merged}
}

// WithGroup flattens groups; the ring's consumers only care about the few
// well-known keys.
func (h *Handler) WithGroup(string) slog.Handler {
	return h
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warning"
	default:
		return "info"
	}
}

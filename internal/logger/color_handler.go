package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ColorTextHandler is a slog.Handler that renders a compact, human-readable
// line and colorizes the level when writing to a terminal. JSON output
// bypasses this entirely in favor of slog.NewJSONHandler.
type ColorTextHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	opts  *slog.HandlerOptions
	color bool
	attrs []slog.Attr
	group string
}

// NewColorTextHandler creates a ColorTextHandler writing to w.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, color bool) *ColorTextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &ColorTextHandler{mu: &sync.Mutex{}, w: w, opts: opts, color: color}
}

func (h *ColorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *ColorTextHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b []byte
	b = append(b, r.Time.Format(time.RFC3339)...)
	b = append(b, ' ')
	b = append(b, h.levelTag(r.Level)...)
	b = append(b, ' ')
	b = append(b, r.Message...)

	for _, a := range h.attrs {
		b = append(b, ' ')
		b = append(b, a.Key...)
		b = append(b, '=')
		b = fmt.Appendf(b, "%v", a.Value.Any())
	}

	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		b = append(b, ' ')
		b = append(b, key...)
		b = append(b, '=')
		b = fmt.Appendf(b, "%v", a.Value.Any())
		return true
	})

	b = append(b, '\n')
	_, err := h.w.Write(b)
	return err
}

func (h *ColorTextHandler) levelTag(level slog.Level) string {
	tag := level.String()
	if !h.color {
		return tag
	}
	switch {
	case level >= slog.LevelError:
		return "\x1b[31m" + tag + "\x1b[0m"
	case level >= slog.LevelWarn:
		return "\x1b[33m" + tag + "\x1b[0m"
	case level >= slog.LevelInfo:
		return "\x1b[36m" + tag + "\x1b[0m"
	default:
		return "\x1b[90m" + tag + "\x1b[0m"
	}
}

func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.group = name
	return &next
}

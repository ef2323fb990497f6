package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// consoleHandler prints one colored line per record:
//
//	2025-01-02T15:04:05 | INFO  | connected client_id=abc
type consoleHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
	attrs []slog.Attr
	group string
}

func newConsoleHandler(w io.Writer, level slog.Leveler) *consoleHandler {
	return &consoleHandler{mu: new(sync.Mutex), w: w, level: level}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()
	switch {
	case r.Level >= slog.LevelError:
		level = color.RedString("%-5s", level)
	case r.Level >= slog.LevelWarn:
		level = color.YellowString("%-5s", level)
	case r.Level >= slog.LevelInfo:
		level = color.BlueString("%-5s", level)
	default:
		level = color.MagentaString("%-5s", level)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s | %s | %s",
		color.GreenString(r.Time.Format("2006-01-02T15:04:05")),
		level,
		color.CyanString(r.Message),
	)
	for _, attr := range h.attrs {
		writeAttr(&b, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		writeAttr(&b, h.qualify(attr))
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func writeAttr(b *strings.Builder, attr slog.Attr) {
	b.WriteString(color.CyanString(" %s=%v", attr.Key, attr.Value))
}

// qualify prefixes attr with the open group.
func (h *consoleHandler) qualify(attr slog.Attr) slog.Attr {
	if h.group != "" {
		attr.Key = h.group + "." + attr.Key
	}
	return attr
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, attr := range attrs {
		merged = append(merged, h.qualify(attr))
	}
	return &consoleHandler{mu: h.mu, w: h.w, level: h.level, attrs: merged, group: h.group}
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &consoleHandler{mu: h.mu, w: h.w, level: h.level, attrs: h.attrs, group: group}
}

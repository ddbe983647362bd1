// Package logger implements a logging adapter using log/slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/muesli/termenv"
	"go.trai.ch/symcache/internal/ui/output"
	"go.trai.ch/symcache/internal/ui/style"
)

// shortHash is how many characters of a cache entry hash are printed.
const shortHash = 12

// PrettyHandler is a slog.Handler producing one colored line per record for
// a terminal. Cache hashes are abbreviated and errors are flattened into
// their cause chain.
type PrettyHandler struct {
	out    *termenv.Output
	level  slog.Leveler
	attrs  []string
	prefix string
}

// NewPrettyHandler creates a new PrettyHandler writing to the provided writer.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	if w == nil {
		w = os.Stderr
	}

	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}

	return &PrettyHandler{
		out:   output.New(w),
		level: level,
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and outputs the log record.
//
//nolint:gocritic // slog.Handler interface requires slog.Record by value
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var msg string
	var color termenv.Color

	switch {
	case r.Level >= slog.LevelError:
		msg = style.Cross + " " + r.Message
		color = termenv.RGBColor(string(style.Red))
	case r.Level >= slog.LevelWarn:
		msg = style.Warning + " " + r.Message
		color = termenv.RGBColor(string(style.Yellow))
	default:
		msg = r.Message
		color = termenv.RGBColor(string(style.Slate))
	}

	parts := slices.Clip(h.attrs)
	r.Attrs(func(attr slog.Attr) bool {
		parts = appendAttr(parts, h.prefix, attr)
		return true
	})
	if len(parts) > 0 {
		msg += " " + strings.Join(parts, " ")
	}

	styled := h.out.String(msg).Foreground(color)
	_, err := h.out.WriteString(styled.String() + "\n")
	return err
}

// WithAttrs returns a new Handler with the given attributes appended.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	parts := slices.Clip(h.attrs)
	for _, attr := range attrs {
		parts = appendAttr(parts, h.prefix, attr)
	}
	return &PrettyHandler{out: h.out, level: h.level, attrs: parts, prefix: h.prefix}
}

// WithGroup returns a new Handler qualifying later keys with name.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &PrettyHandler{out: h.out, level: h.level, attrs: h.attrs, prefix: h.prefix + name + "."}
}

// appendAttr renders attr as key=value, flattening groups into dotted keys.
// Errors are caught before resolving, since zerr errors log as groups.
func appendAttr(parts []string, prefix string, attr slog.Attr) []string {
	if err, ok := attr.Value.Any().(error); ok {
		return append(parts, prefix+attr.Key+"="+quote(inlineError(err)))
	}
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return parts
	}
	if attr.Value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			prefix += attr.Key + "."
		}
		for _, a := range attr.Value.Group() {
			parts = appendAttr(parts, prefix, a)
		}
		return parts
	}
	return append(parts, prefix+attr.Key+"="+formatValue(attr.Key, attr.Value))
}

func formatValue(key string, v slog.Value) string {
	s := v.String()
	if key == "hash" && len(s) > shortHash {
		return s[:shortHash]
	}
	return quote(s)
}

// inlineError renders an error chain on one line: each cause follows its
// parent after ": ", with its metadata in parentheses. Metadata attached
// through an unnamed wrapper goes to the next named cause.
func inlineError(err error) string {
	entries := collectErrorEntries(err)
	causes := make([]string, 0, len(entries))
	pending := map[string]any{}
	for i, entry := range entries {
		maps.Copy(pending, entry.Metadata)
		if entry.Message == "" && i < len(entries)-1 {
			continue
		}
		text := strings.ReplaceAll(entry.Message, "\n", " ")
		if len(pending) > 0 {
			kv := make([]string, 0, len(pending))
			for _, k := range slices.Sorted(maps.Keys(pending)) {
				kv = append(kv, fmt.Sprintf("%s=%v", k, pending[k]))
			}
			text = strings.TrimSpace(text + " (" + strings.Join(kv, ", ") + ")")
			clear(pending)
		}
		causes = append(causes, text)
	}
	return strings.Join(causes, ": ")
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

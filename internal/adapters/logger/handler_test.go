package logger_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/symcache/internal/adapters/logger"
	"go.trai.ch/zerr"
)

func TestPrettyHandler_Handle_Levels(t *testing.T) {
	tests := []struct {
		name       string
		level      slog.Level
		msg        string
		goldenName string
	}{
		{name: "info level", level: slog.LevelInfo, msg: "information message", goldenName: "handler_info"},
		{name: "warn level", level: slog.LevelWarn, msg: "warning message", goldenName: "handler_warn"},
		{name: "error level", level: slog.LevelError, msg: "error message", goldenName: "handler_error"},
		{name: "debug level filtered", level: slog.LevelDebug, msg: "debug message", goldenName: "handler_debug_filtered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", "1")

			buf := &bytes.Buffer{}
			handler := logger.NewPrettyHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo})
			slog.New(handler).Log(t.Context(), tt.level, tt.msg)

			g := goldie.New(t)
			g.Assert(t, tt.goldenName, buf.Bytes())
		})
	}
}

func TestPrettyHandler_Attrs(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h slog.Handler) slog.Handler
		args  []any
		want  string
	}{
		{
			name:  "record attrs",
			setup: func(h slog.Handler) slog.Handler { return h },
			args:  []any{"count", 42, "ok", true},
			want:  "msg count=42 ok=true\n",
		},
		{
			name: "handler attrs precede record attrs",
			setup: func(h slog.Handler) slog.Handler {
				return h.WithAttrs([]slog.Attr{slog.String("request", "r1")})
			},
			args: []any{"module", "app"},
			want: "msg request=r1 module=app\n",
		},
		{
			name: "group prefixes keys",
			setup: func(h slog.Handler) slog.Handler {
				return h.WithGroup("cache")
			},
			args: []any{"kind", "objects"},
			want: "msg cache.kind=objects\n",
		},
		{
			name:  "nested groups",
			setup: func(h slog.Handler) slog.Handler { return h.WithGroup("cache") },
			args:  []any{slog.Group("entry", "kind", "objects", "size", 10)},
			want:  "msg cache.entry.kind=objects cache.entry.size=10\n",
		},
		{
			name:  "cache hashes are abbreviated",
			setup: func(h slog.Handler) slog.Handler { return h },
			args:  []any{"hash", "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"},
			want:  "msg hash=9f86d081884c\n",
		},
		{
			name:  "values with spaces are quoted",
			setup: func(h slog.Handler) slog.Handler { return h },
			args:  []any{"module", "my app", "empty", ""},
			want:  `msg module="my app" empty=""` + "\n",
		},
		{
			name:  "errors render their cause chain",
			setup: func(h slog.Handler) slog.Handler { return h },
			args: []any{"error", zerr.With(
				zerr.Wrap(errors.New("disk full"), "cache write failed"), "path", "/c/objects/ab",
			)},
			want: `msg error="cache write failed (path=/c/objects/ab): disk full"` + "\n",
		},
		{
			name:  "metadata on a plain error joins its message",
			setup: func(h slog.Handler) slog.Handler { return h },
			args:  []any{"error", zerr.With(errors.New("connection reset"), "source", "vendor")},
			want:  `msg error="connection reset (source=vendor)"` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", "1")

			buf := &bytes.Buffer{}
			handler := tt.setup(logger.NewPrettyHandler(buf, nil))
			slog.New(handler).Info("msg", tt.args...)

			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPrettyHandler_Enabled(t *testing.T) {
	handler := logger.NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})

	assert.False(t, handler.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, handler.Enabled(t.Context(), slog.LevelWarn))
	assert.True(t, handler.Enabled(t.Context(), slog.LevelError))
}

func TestPrettyHandler_NilWriter(t *testing.T) {
	require.NotPanics(t, func() {
		_ = logger.NewPrettyHandler(nil, nil)
	})
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("write failed")
}

func TestPrettyHandler_Handle_ReturnsError(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	handler := logger.NewPrettyHandler(brokenWriter{}, nil)
	var r slog.Record
	r.Level = slog.LevelInfo
	r.Message = "msg"

	require.Error(t, handler.Handle(t.Context(), r))
}

package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/symcache/internal/adapters/logger"
	"go.trai.ch/zerr"
)

// newTestLogger creates a logger writing to a buffer without ANSI escape codes.
func newTestLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	buf := &bytes.Buffer{}
	lg := logger.New().(*logger.Logger)
	lg.SetOutput(buf)
	return lg, buf
}

func TestLogger_Info(t *testing.T) {
	tests := []struct {
		name       string
		msg        string
		args       []any
		goldenName string
	}{
		{
			name:       "simple message",
			msg:        "cache sweep finished",
			goldenName: "info_basic",
		},
		{
			name:       "key value pairs",
			msg:        "module resolved",
			args:       []any{"module", "libc.so.6", "source", "public"},
			goldenName: "info_args",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg, buf := newTestLogger(t)
			lg.Info(tt.msg, tt.args...)

			g := goldie.New(t)
			g.Assert(t, tt.goldenName, buf.Bytes())
		})
	}
}

func TestLogger_Warn(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.Warn("source throttled", "source", "vendor", "attempt", 2)

	g := goldie.New(t)
	g.Assert(t, "warn_args", buf.Bytes())
}

func TestLogger_Error(t *testing.T) {
	lg, buf := newTestLogger(t)

	err := zerr.Wrap(errors.New("connection refused"), "failed to fetch object")
	err = zerr.With(err, "source", "public")
	lg.Error(err)

	g := goldie.New(t)
	g.Assert(t, "error_chain", buf.Bytes())
}

func TestLogger_ErrorNil(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.Error(nil)
	assert.Empty(t, buf.String())
}

func TestLogger_SetJSON(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.SetJSON(true)

	lg.Info("module resolved", "module", "app")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "module resolved", rec["msg"])
	assert.Equal(t, "app", rec["module"])
}

func TestLogger_SetJSON_Error(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.SetJSON(true)

	lg.Error(errors.New("boom"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "operation failed", rec["msg"])
	assert.Equal(t, "boom", rec["error"])
}

func TestLogger_SetLevel(t *testing.T) {
	lg, buf := newTestLogger(t)

	lg.Debug("hidden")
	assert.Empty(t, buf.String())

	lg.SetLevel(slog.LevelDebug)
	lg.Debug("visible")
	assert.Equal(t, "visible\n", buf.String())
}

func TestLogger_SetOutputNil(t *testing.T) {
	lg := logger.New().(*logger.Logger)
	require.NotPanics(t, func() {
		lg.SetOutput(nil)
	})
}

func TestLogger_Slog(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.Slog().Info("through slog", "k", "v")
	assert.Equal(t, "through slog k=v\n", buf.String())
}

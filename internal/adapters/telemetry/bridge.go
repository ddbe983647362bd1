package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/symcache/internal/core/ports"
)

// SlowSpanLogger implements sdktrace.SpanProcessor and reports spans that
// ran longer than a threshold to the logger.
type SlowSpanLogger struct {
	logger    ports.Logger
	threshold time.Duration
}

// NewSlowSpanLogger returns a processor logging spans slower than threshold.
// A zero threshold disables it.
func NewSlowSpanLogger(logger ports.Logger, threshold time.Duration) *SlowSpanLogger {
	return &SlowSpanLogger{logger: logger, threshold: threshold}
}

// OnStart does nothing.
func (b *SlowSpanLogger) OnStart(_ context.Context, _ sdktrace.ReadWriteSpan) {}

// OnEnd is called when a span ends.
func (b *SlowSpanLogger) OnEnd(s sdktrace.ReadOnlySpan) {
	if b.logger == nil || b.threshold <= 0 {
		return
	}
	took := s.EndTime().Sub(s.StartTime())
	if took < b.threshold {
		return
	}

	args := []any{"span", s.Name(), "took", took.Round(time.Millisecond)}
	if s.Status().Code == codes.Error {
		args = append(args, "error", s.Status().Description)
	}
	b.logger.Warn("slow operation", args...)
}

// ForceFlush does nothing.
func (b *SlowSpanLogger) ForceFlush(_ context.Context) error {
	return nil
}

// Shutdown does nothing.
func (b *SlowSpanLogger) Shutdown(_ context.Context) error {
	return nil
}

// Setup installs a global tracer provider reporting slow spans to logger.
// The caller shuts the provider down on exit.
func Setup(logger ports.Logger, threshold time.Duration) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewSlowSpanLogger(logger, threshold)),
	)
	otel.SetTracerProvider(tp)
	return tp
}

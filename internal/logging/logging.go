// Package logging builds the process-wide slog logger. Records flow from
// slog through logr into a zap core, so output format and sampling follow zap.
package logging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option configures the logger
type Option func(*options)

type options struct {
	level       slog.Level
	development bool
	outputPaths []string
}

// WithLevel sets the minimum level
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithDevelopment switches to zap's console encoder
func WithDevelopment(development bool) Option {
	return func(o *options) {
		o.development = development
	}
}

// WithOutputPaths sets zap output sinks. Defaults to stderr so stdout stays
// clean for command output.
func WithOutputPaths(paths ...string) Option {
	return func(o *options) {
		o.outputPaths = paths
	}
}

// New returns a slog logger backed by zap and a function that flushes it.
func New(opts ...Option) (*slog.Logger, func(), error) {
	o := &options{level: slog.LevelInfo, outputPaths: []string{"stderr"}}
	for _, opt := range opts {
		opt(o)
	}

	cfg := zap.NewProductionConfig()
	if o.development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = o.outputPaths
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(o.level))
	cfg.EncoderConfig.EncodeLevel = encodeLevel
	cfg.Sampling = nil

	zl, err := cfg.Build()
	if err != nil {
		return nil, nil, err
	}

	handler := &traceHandler{Handler: logr.ToSlogHandler(zapr.NewLogger(zl))}
	return slog.New(handler), func() { _ = zl.Sync() }, nil
}

// zapLevel maps a slog level onto the zap level that zapr emits for it.
// logr turns slog.LevelDebug (-4) into V(4), which zapr writes at zap level -4.
func zapLevel(level slog.Level) zapcore.Level {
	if level < slog.LevelInfo {
		return zapcore.Level(level)
	}
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// encodeLevel prints every verbosity below info as "debug"
func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l < zapcore.DebugLevel {
		l = zapcore.DebugLevel
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}

// ParseLevel maps a level name to a slog level. Unknown names yield info and false.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// traceHandler adds trace_id and span_id of the active span to every record.
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

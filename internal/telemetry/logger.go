package telemetry

import (
	"context"
	"io"
	"log/slog"
)

type loggerKey struct{}

var discard = slog.New(slog.NewJSONHandler(io.Discard, nil))

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the logger carried by ctx, or a logger that discards
// everything when none was attached.
func Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return discard
}

// With attaches attrs to the context's logger and returns the new context
// together with the derived logger.
func With(ctx context.Context, args ...any) (context.Context, *slog.Logger) {
	l := Logger(ctx).With(args...)
	return WithLogger(ctx, l), l
}

// Package logctx carries a request-scoped slog.Logger through contexts and
// decorates log records with the active trace identity.
package logctx

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// WithLogger stores the logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// LoggerFromContext returns the context's logger, falling back to
// slog.Default() when none was stored.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}

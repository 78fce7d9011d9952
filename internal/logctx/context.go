// Package logctx carries a [log/slog] logger on a [context.Context], so that
// packages deep in a call chain (codecs, workers, transports) can log with
// whatever attributes the caller attached, without threading a logger
// parameter through every function signature.
package logctx

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

type ctxKey struct{}

// InContext returns a copy of ctx carrying l as its logger.
func InContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx. It falls back to
// [slog.Default] when none was attached, so callers never receive nil.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithLink returns a copy of ctx whose logger tags every record with the
// given link ID. Each supervisor calls this once at startup, so worker and
// transport log lines are attributable to their link.
func WithLink(ctx context.Context, linkID string) context.Context {
	return InContext(ctx, FromContext(ctx).With(slog.String("link_id", linkID)))
}

// FatalError logs msg and err at [slog.LevelError] and exits the process.
// Reserved for unrecoverable configuration errors at startup.
func FatalError(msg string, err error, attrs ...slog.Attr) {
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:]) // Report the caller's location, not this helper's.

	r := slog.NewRecord(time.Now(), slog.LevelError, msg, pcs[0])
	if err != nil {
		r.AddAttrs(slog.Any("error", err))
	}
	r.AddAttrs(attrs...)

	_ = slog.Default().Handler().Handle(context.Background(), r)
	os.Exit(1)
}

package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/synthnode/internal/logging"
)

// HTTPLoggingMiddleware logs every API request, at a level chosen by its
// outcome. Event streams are logged when they close.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("api")

	attrs := []slog.Attr{
		slog.String("method", ctx.Method()),
		slog.String("path", ctx.URL().Path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if op := ctx.Operation(); op != nil {
		attrs = append(attrs, slog.String("operation", op.OperationID))
	}

	next(ctx)

	status := ctx.Status()
	attrs = append(attrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)
	logger.LogAttrs(ctx.Context(), requestLevel(ctx.Method(), status), "HTTP request completed", attrs...)
}

// requestLevel picks the log level for a finished request. Polling the
// status endpoints would flood info, so reads that succeed log at debug.
func requestLevel(method string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case method == http.MethodGet || method == http.MethodOptions:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

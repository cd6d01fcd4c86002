package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/querydash/querydash/internal/config"
)

type ctxKey struct{}

// NewLogger builds the process logger. Every record carries the service name
// and profile, and timestamps are written in UTC.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{
		Level:       cfg.Observability.LogLevel,
		AddSource:   cfg.Observability.LogLevel <= slog.LevelDebug,
		ReplaceAttr: utcTime,
	}

	var handler slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.Group("service",
			slog.String("name", cfg.Service.Name),
			slog.String("profile", string(cfg.Profile)),
		),
	)
}

func utcTime(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) == 0 && attr.Key == slog.TimeKey && attr.Value.Kind() == slog.KindTime {
		attr.Value = slog.TimeValue(attr.Value.Time().UTC())
	}
	return attr
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(ctxKey{}).(string)
	return traceID
}

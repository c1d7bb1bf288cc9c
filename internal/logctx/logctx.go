package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with the configuration snapshot carried on the
// context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if sd, ok := ctx.Value(snapshotDataKey{}).(*SnapshotData); ok {
		r.AddAttrs(slog.Group("snap",
			slog.Uint64("gen", sd.Generation),
			slog.String("source", sd.Source),
		))
	}

	return h.Handler.Handle(ctx, r)
}

// Wrap decorates h unless it already is a Handler.
func Wrap(h slog.Handler) slog.Handler {
	if _, ok := h.(Handler); ok {
		return h
	}
	return Handler{Handler: h}
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type snapshotDataKey struct{}

// SnapshotData identifies one load of a configuration.
type SnapshotData struct {
	Generation uint64
	Source     string
}

func WithSnapshotData(ctx context.Context, data *SnapshotData) context.Context {
	return context.WithValue(ctx, snapshotDataKey{}, data)
}

package logctx

import (
	"context"
	"log/slog"
)

type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if cd, ok := ctx.Value(checkDataKey{}).(*CheckData); ok {
		r.AddAttrs(slog.Group("check",
			slog.String("id", cd.CheckID),
			slog.String("mode", cd.Mode),
			slog.Int("request_check_count", cd.RequestCheckCount),
		))
	}

	if nd, ok := ctx.Value(navDataKey{}).(*NavData); ok {
		r.AddAttrs(slog.Group("nav",
			slog.String("id", nd.NavID),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type checkDataKey struct{}

type CheckData struct {
	CheckID           string
	Mode              string
	RequestCheckCount int
}

func WithCheckData(ctx context.Context, data *CheckData) context.Context {
	return context.WithValue(ctx, checkDataKey{}, data)
}

type navDataKey struct{}

type NavData struct {
	NavID string
}

func WithNavData(ctx context.Context, data *NavData) context.Context {
	return context.WithValue(ctx, navDataKey{}, data)
}

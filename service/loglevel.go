package service

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
)

// levelHandler lets one service override the level of the process handler.
// Until a level is set the inner handler decides.
type levelHandler struct {
	inner    slog.Handler
	level    *slog.LevelVar
	override *atomic.Bool
}

func newLevelHandler(inner slog.Handler) *levelHandler {
	return &levelHandler{
		inner:    inner,
		level:    new(slog.LevelVar),
		override: new(atomic.Bool),
	}
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.override.Load() {
		return level >= h.level.Level()
	}
	return h.inner.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{inner: h.inner.WithAttrs(attrs), level: h.level, override: h.override}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{inner: h.inner.WithGroup(name), level: h.level, override: h.override}
}

func (h *levelHandler) set(level slog.Level) {
	h.level.Set(level)
	h.override.Store(true)
}

// parseLevel accepts debug, info, warn and error in any case
func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(strings.TrimSpace(s)))
	return level, err
}

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// zerologHandler is a slog.Handler that emits through a zerolog.Logger.
// Groups are flattened into dotted keys ("group.key").
type zerologHandler struct {
	logger *zerolog.Logger
	attrs  []slog.Attr // already qualified with their group prefix
	prefix string
}

func newZerologHandler(logger *zerolog.Logger) *zerologHandler {
	return &zerologHandler{logger: logger}
}

func (h *zerologHandler) Enabled(_ context.Context, level slog.Level) bool {
	zl := toZerologLevel(level)
	return zl >= h.logger.GetLevel() && zl >= zerolog.GlobalLevel()
}

func (h *zerologHandler) Handle(_ context.Context, r slog.Record) error {
	ev := h.logger.WithLevel(toZerologLevel(r.Level))
	if ev == nil {
		return nil
	}
	for _, a := range h.attrs {
		addAttr(ev, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(ev, h.prefix, a)
		return true
	})
	ev.Msg(r.Message)
	return nil
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nh := *h
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = qualify(h.prefix, a.Key)
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

func (h *zerologHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.prefix = qualify(h.prefix, name)
	return &nh
}

func qualify(prefix, key string) string {
	if prefix == "" {
		return key
	}
	if key == "" {
		return prefix
	}
	return prefix + "." + key
}

func addAttr(ev *zerolog.Event, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := qualify(prefix, a.Key)

	switch a.Value.Kind() {
	case slog.KindString:
		ev.Str(key, a.Value.String())
	case slog.KindInt64:
		ev.Int64(key, a.Value.Int64())
	case slog.KindUint64:
		ev.Uint64(key, a.Value.Uint64())
	case slog.KindFloat64:
		ev.Float64(key, a.Value.Float64())
	case slog.KindBool:
		ev.Bool(key, a.Value.Bool())
	case slog.KindDuration:
		ev.Dur(key, a.Value.Duration())
	case slog.KindTime:
		ev.Time(key, a.Value.Time())
	case slog.KindGroup:
		// An empty group key inlines the group's attrs.
		for _, ga := range a.Value.Group() {
			addAttr(ev, key, ga)
		}
	default:
		if err, ok := a.Value.Any().(error); ok {
			ev.AnErr(key, err)
			return
		}
		ev.Interface(key, a.Value.Any())
	}
}

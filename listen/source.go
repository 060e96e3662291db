package listen

import (
	"context"
	"log/slog"
)

// Source reads the currently visible perception surface. It never fails:
// an absent surface or an internal fault yields an empty snapshot.
type Source interface {
	Snapshot(ctx context.Context) string
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) string

func (f SourceFunc) Snapshot(ctx context.Context) string {
	return f(ctx)
}

type safeSource struct {
	src Source
}

// Safe wraps src so that a panic while reading is logged and read as empty.
func Safe(src Source) Source {
	if _, ok := src.(safeSource); ok {
		return src
	}
	return safeSource{src: src}
}

func (s safeSource) Snapshot(ctx context.Context) (text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Snapshot read failed", "panic", r)
			text = ""
		}
	}()
	return s.src.Snapshot(ctx)
}

package logging

import (
	"context"
	"log/slog"
)

// BlackholeHandler implements slog.Handler and discards all log messages.
type BlackholeHandler struct{}

func (h BlackholeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return false
}

func (h BlackholeHandler) Handle(ctx context.Context, record slog.Record) error {
	return nil
}

func (h BlackholeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h BlackholeHandler) WithGroup(name string) slog.Handler {
	return h
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(BlackholeHandler{})
}

// OrDiscard returns logger, or a discarding logger if logger is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

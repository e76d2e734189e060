package logger

import (
	"log/slog"
	"os"
)

// New returns a structured logger: JSON in production, text otherwise.
func New(env string) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Discard returns a logger that drops everything; used as the default for
// components constructed without WithLogger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

package observe

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide *slog.Logger from the configured level and
// format. format "json" is intended for production; "text" is intended for
// interactive development. An unrecognised or empty format falls back to text.
func NewLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// parseLevel converts a config log level string to a slog.Level, defaulting
// to Info for an empty or unrecognised value.
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

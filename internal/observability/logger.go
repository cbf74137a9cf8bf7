package observability

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process logger: JSON lines, debug level in dev, with
// trace/span ids attached when a span is active on the record's context.
func NewLogger(env string) *slog.Logger {
	return newLogger(os.Stdout, env)
}

func newLogger(w io.Writer, env string) *slog.Logger {
	level := slog.LevelInfo

	if env == "dev" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(NewTraceHandler(handler)).With("service", ServiceName)
}

const ServiceName = "scribe"

package logger

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON slog logger tagged with the service name and environment,
// and routes the standard library logger through it.
func New(service, env, level string) *slog.Logger {
	return NewWithWriter(os.Stdout, service, env, level)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(w io.Writer, service, env, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", service)}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	h := handler.WithAttrs(attrs)

	bridge := slog.NewLogLogger(h, slog.LevelInfo)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)

	return slog.New(h)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/config"
)

// serviceName is attached to every record.
const serviceName = "fpbridge"

// Logger is the structured logger shared by every bridge component.
// It satisfies the small Logger interfaces the components declare.
//
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of config.yaml.
//
// Records carry the service name and version. Format "text" selects the
// key=value handler; anything else is JSON. Output "stderr" writes to
// standard error; anything else to standard output.
func New(cfg config.LoggingConfig, version string) *Logger {
	return newLogger(outputFor(cfg.Output), cfg, version)
}

// newLogger builds a logger that writes to w.
func newLogger(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	h := handlerFor(w, cfg.Format, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	h = h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(h)}
}

func outputFor(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

func handlerFor(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel maps debug, info, warn (or warning) and error to slog levels,
// ignoring case. Unrecognised names log at info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a child logger that adds args to every record, typically
// a component tag:
//
//	serialLog := log.With("component", "serial")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the JSON, info-level, stdout logger used before the config
// file has been read.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

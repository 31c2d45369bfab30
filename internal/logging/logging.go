// internal/logging/logging.go
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// ParseLevel maps a config/env level string to a slog level, defaulting to info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w. format is "text" or anything else for JSON.
// Resolve "auto" with ResolveFormat first.
func New(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("module", "marvinous")
}

// ResolveFormat turns "auto" into "text" when tty is true and "json" otherwise
func ResolveFormat(format string, tty bool) string {
	if !strings.EqualFold(format, "auto") {
		return format
	}
	if tty {
		return "text"
	}
	return "json"
}

// Setup installs the default logger on stderr
func Setup(level, format string) {
	format = ResolveFormat(format, term.IsTerminal(int(os.Stderr.Fd())))
	slog.SetDefault(New(os.Stderr, level, format))
}

// Package logging builds the process *slog.Logger. Records are rendered by
// zerolog, either as human-readable console lines or as JSON.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configures New.
type Options struct {
	Level   string    // debug, info, warn, error (default info)
	Format  string    // console or json (default console)
	Out     io.Writer // default os.Stderr
	NoColor bool      // console only
}

// New returns a slog.Logger writing through zerolog.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	switch strings.ToLower(opts.Format) {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    opts.NoColor,
		}
	case FormatJSON:
	default:
		return nil, fmt.Errorf("unknown log format %q (want %s or %s)", opts.Format, FormatConsole, FormatJSON)
	}

	zl := zerolog.New(out).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return slog.New(newZerologHandler(&zl)), nil
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	zl := zerolog.Nop()
	return slog.New(newZerologHandler(&zl))
}

func toZerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelDebug:
		return zerolog.TraceLevel
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

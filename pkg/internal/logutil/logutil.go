// Package logutil constructs the zerolog loggers handed to the monitoring
// components. Output is JSON by default; a human-readable console format can
// be selected with DBMON_LOG_FORMAT=console.
package logutil

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to w. The level comes from DBMON_LOG_LEVEL
// when set (zerolog level names), otherwise info.
func New(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if os.Getenv("DBMON_LOG_FORMAT") == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	level := zerolog.InfoLevel
	if v := os.Getenv("DBMON_LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Default returns the standard process logger on stderr.
func Default() zerolog.Logger { return New(os.Stderr) }

// Nop returns a disabled logger for tests and optional components.
func Nop() zerolog.Logger { return zerolog.Nop() }

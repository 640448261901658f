package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Configure builds a zerolog logger from config values. Logs go to stderr;
// stdout is reserved for the manifest document.
func Configure(level, format string) zerolog.Logger {
	return New(os.Stderr, level, format)
}

// New is Configure with an explicit sink.
func New(out io.Writer, level, format string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	output := out
	if strings.EqualFold(format, "console") {
		output = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(output).Level(lvl).With().Timestamp().Logger()
}

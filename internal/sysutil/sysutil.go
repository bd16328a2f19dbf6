// Package sysutil configures process-wide concerns of the feedbackd binary:
// the global zerolog level and the base logger every component derives from.
package sysutil

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SetLogLevel sets the global zerolog level from a name (debug, info, warn,
// error, fatal, panic; case-insensitive) and returns the level applied.
// Unknown names fall back to info.
func SetLogLevel(lvl string) zerolog.Level {
	level := zerolog.InfoLevel
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	case "fatal":
		level = zerolog.FatalLevel
	case "panic":
		level = zerolog.PanicLevel
	}
	zerolog.SetGlobalLevel(level)
	return level
}

// NewLogger builds the process logger. pretty switches to the human console
// writer for local runs; production output stays JSON. Every line carries
// the service name and build version.
func NewLogger(w io.Writer, pretty bool, service, version string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).With().
		Timestamp().
		Str("service", FirstNonEmpty(service, "feedbackd")).
		Str("version", FirstNonEmpty(version, "dev")).
		Logger()
}

// FirstNonEmpty returns the first value that is not blank, unchanged, or ""
// when all are blank.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

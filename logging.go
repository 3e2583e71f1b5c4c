package ldbx

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// defaultLogger gives every Env a usable logger out of the box: a
// console-friendly writer on stderr, a timestamp, and the component tag
// that distinguishes its lines when the host process logs other things
// too. Callers who want structured JSON or a different sink pass their own
// Logger via Options instead.
func defaultLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "ldbx").Logger()
}

// NewLoggerAtLevel builds the default console logger with its level
// overridden by name (see ParseLevel), for callers like the CLI that take
// a log_level string from a config file or flag.
func NewLoggerAtLevel(levelName string) zerolog.Logger {
	return defaultLogger().Level(ParseLevel(levelName))
}

// ParseLevel maps the small set of level names accepted in CLI config
// files to a zerolog.Level, defaulting to info on an empty or unknown
// string rather than failing startup over a typo.
func ParseLevel(name string) zerolog.Level {
	if name == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

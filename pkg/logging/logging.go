// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level and destination
type Options struct {
	Level string
	File  string // rotated JSON log file; console on stderr when empty
	Quiet bool   // drop console output entirely
}

// New returns a zerolog logger. With a file configured, records go to a
// rotating JSON file; otherwise to a console writer on stderr.
func New(opts Options) zerolog.Logger {
	return zerolog.New(output(opts)).Level(level(opts.Level)).With().Timestamp().Logger()
}

// level parses name, falling back to info
func level(name string) zerolog.Level {
	if name == "" {
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

func output(opts Options) io.Writer {
	switch {
	case opts.File != "":
		return &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	case opts.Quiet:
		return io.Discard
	default:
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
}

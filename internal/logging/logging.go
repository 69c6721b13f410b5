// Package logging builds the process logger: a human console writer on
// stderr, optionally teed into a rotating JSON file.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// TimeLayout is the console timestamp layout (day.month.year).
const TimeLayout = "02.01.06 15:04:05"

// Options configure New.
type Options struct {
	Level   string
	File    string // empty disables the file sink
	Console io.Writer
	NoColor bool
}

// New returns the root logger.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: TimeLayout,
		NoColor:    opts.NoColor,
	}}

	if opts.File != "" {
		_ = os.MkdirAll(filepath.Dir(opts.File), 0o755)
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    20,
			MaxBackups: 5,
			MaxAge:     28,
		})
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// SectionField tags a log line with the subsystem it belongs to.
const SectionField = "section"

// Section returns a child logger for one subsystem.
func Section(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str(SectionField, name).Logger()
}

// Nop is a disabled logger for tests and optional dependencies.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

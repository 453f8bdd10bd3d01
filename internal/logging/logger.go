// Package logging builds the zerolog loggers used across feedwatch.
// Output goes to stderr by default so log lines never fight the
// terminal UI for stdout.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config contains logger configuration.
type Config struct {
	// Level is one of zerolog's named levels (debug, info, warn, ...).
	// Unrecognized values fall back to info.
	Level string
	// Pretty enables the human-readable console writer.
	Pretty bool
	// Output overrides the destination (defaults to os.Stderr).
	Output io.Writer
}

func DefaultConfig() Config {
	return Config{Level: "info", Pretty: true}
}

// New creates a zerolog logger from cfg.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// NewWithComponent tags every event with a component field.
func NewWithComponent(cfg Config, component string) zerolog.Logger {
	return New(cfg).With().Str("component", component).Logger()
}

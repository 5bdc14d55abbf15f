// Package logging sets up the zerolog run log.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFile is the run log written next to the working directory.
const DefaultFile = "log_parser.log"

// Config holds logging configuration.
type Config struct {
	File       string // empty disables logging
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string
}

// DefaultConfig returns the logging defaults.
func DefaultConfig() Config {
	return Config{
		File:       DefaultFile,
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Validate reports an unknown level or format.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q (want json or console)", c.Format)
	}
	return nil
}

// New builds a logger writing to w.
func New(w io.Writer, cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := w
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.Kitchen}
	}

	// zerolog keeps the time format process wide.
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Open truncates cfg.File and returns a logger writing to it. When the file
// cannot be created a single warning goes to warn and a disabled logger is
// returned; the run continues without a log.
func Open(cfg Config, warn io.Writer) (zerolog.Logger, io.Closer) {
	if cfg.File == "" {
		return zerolog.Nop(), nopCloser{}
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		fmt.Fprintf(warn, "Warning: could not create log file '%s': %v. Logging is disabled.\n", cfg.File, err)
		return zerolog.Nop(), nopCloser{}
	}
	return New(f, cfg), f
}

// WithComponent returns a logger with a component tag.
func WithComponent(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

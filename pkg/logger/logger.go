// Package logger builds the zerolog logger used across barsim.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level      string `yaml:"level" json:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format     string `yaml:"format" json:"format" default:"console" validate:"oneof=json console"`
	Output     string `yaml:"output" json:"output" default:"stderr"` // stdout, stderr, or a file path
	TimeFormat string `yaml:"time_format" json:"time_format"`
}

// New returns a logger writing to cfg.Output at cfg.Level. The returned
// closer releases the log file; it is a no-op for stdout and stderr.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("invalid log level: %w", err)
	}

	var (
		output io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "", "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("could not open log file: %w", err)
		}
		output, closer = file, file
	}

	return NewWithWriter(output, cfg.Format, cfg.TimeFormat).Level(level), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewWithWriter builds a logger on w in the given format ("json" or
// "console").
func NewWithWriter(w io.Writer, format, timeFormat string) zerolog.Logger {
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

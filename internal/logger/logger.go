// Package logger configures the process-wide zerolog logger and hands out
// scoped child loggers.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string // trace, debug, info, warn, error, fatal, panic
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, or custom format
	Output     string // stdout, stderr, or file path
}

// DefaultConfig logs at info to stderr, leaving stdout to command output.
func DefaultConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Format:     "console",
		TimeFormat: time.RFC3339,
		Output:     "stderr",
	}
}

// Setup initializes the global logger with the provided configuration
func Setup(config LogConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", config.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	output, isFile, err := openOutput(config.Output)
	if err != nil {
		return err
	}

	// Console is the default for unknown formats.
	if strings.ToLower(config.Format) != "json" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: config.TimeFormat,
			NoColor:    isFile,
		}
	}

	log.Logger = zerolog.New(output).With().
		Timestamp().
		Caller().
		Logger()

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	return nil
}

func openOutput(name string) (w io.Writer, isFile bool, err error) {
	switch name {
	case "stdout":
		return os.Stdout, false, nil
	case "stderr", "":
		return os.Stderr, false, nil
	}
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, false, fmt.Errorf("open log file: %w", err)
	}
	return file, true, nil
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// WithDrawing returns a logger scoped to one drawing file
func WithDrawing(path string) zerolog.Logger {
	return log.Logger.With().Str("drawing", path).Logger()
}

// WithPage narrows l to one 1-based drawing page.
func WithPage(l zerolog.Logger, page int) zerolog.Logger {
	return l.With().Int("page", page).Logger()
}

// WithImport returns a logger scoped to one report import operation
func WithImport(importID string) zerolog.Logger {
	return log.Logger.With().Str("import_id", importID).Logger()
}

// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above (every fetch and split).
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"

	// LevelDisabled turns logging off.
	LevelDisabled LogLevel = "disabled"
)

// Component names used with NewLogger.
const (
	ComponentPagination = "pagination"
	ComponentStream     = "stream"
	ComponentHTTPSource = "httpsource"
	ComponentRedisList  = "redislist"
	ComponentCache      = "pagecache"
	ComponentExport     = "paged-export"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ValidateLevel returns an error for names ParseLevel does not know.
func ValidateLevel(level LogLevel) error {
	switch strings.ToLower(string(level)) {
	case "debug", "info", "warn", "warning", "error", "disabled", "off":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
}

// ParseLevel converts a LogLevel to a zerolog.Level. Unknown values map to
// info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-page detail
//   - Page fetches (offset, limit, items, total, duration)
//   - Cursor splits (kind, handed-off range, remaining range)
//   - HTTP requests and Redis pipelines issued by sources
//
// Info: per-operation events
//   - Terminal operations completed (mode, items, duration)
//   - Server startup/shutdown
//
// Warn: failures that abort one traversal
//   - Page fetch errors
//   - HTTP retry attempts
//   - Export streams cut after the response started
//
// Error: conditions requiring attention
//   - Redis unreachable at startup
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package
//   - stage: first or next page fetch
//   - offset, limit: fetch window
//   - kind: split kind (first_page, range, in_page)
//   - mode: sequential, parallel, parallel_ordered
//   - error_class: HTTP source error classification

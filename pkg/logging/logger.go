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
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
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

// Setup configures the global zerolog logger. Loggers obtained from
// NewLogger before Setup keep the previous output.
func Setup(cfg Config) zerolog.Logger {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Str("service", "keyfetch").Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a LogLevel to a zerolog.Level. "warning" is accepted as
// an alias for warn.
func ParseLevel(level LogLevel) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - TTL fallback to the default max-age
//   - Keys persisted per fetch
//   - Backoff pauses between attempts
//
// Info: Normal operation events
//   - Key list fetched (key_count, ttl_seconds)
//   - Expired keys deleted
//   - Forced fetch on an empty store
//   - Server and scheduler startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Non-success status from the key service
//   - Malformed key list payloads
//   - Retry attempts
//   - Forced fetch timeout or failure
//   - Eviction failures
//
// Error: Error conditions requiring attention
//   - Transport failure on the final attempt
//   - Key persistence failures
//   - Scheduled run failures
//
// Context Fields:
//   - component: emitting package
//   - key_type: key type name
//   - key_id: key identifier
//   - key_count: number of keys fetched
//   - ttl_seconds: resolved key lifetime
//   - uri: request target
//   - attempt / attempts: retry position
//   - status: HTTP status code
//   - error_class: client, server, network, unexpected
//   - scheduled: whether a fetch came from the scheduler

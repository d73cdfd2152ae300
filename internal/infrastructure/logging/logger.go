package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"

	"github.com/nerrad567/avx-core/internal/infrastructure/config"
	"github.com/nerrad567/avx-core/internal/logring"
)

// ExceptionKey is the attribute key carrying stack detail.
// Records with this attribute are redacted before they reach a LogRing.
const ExceptionKey = "exception"

// Logger wraps slog.Logger with AVX-specific functionality.
//
// It provides structured logging with default fields and level-based filtering.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// Option configures a Logger built by New.
type Option func(*options)

type options struct {
	ring   *logring.Ring
	output io.Writer
}

// WithRing tees every record into r, in addition to the configured output.
func WithRing(r *logring.Ring) Option {
	return func(o *options) { o.ring = r }
}

// WithOutput overrides the writer selected by cfg.Output.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON for production, text for development)
//   - Log level filtering
//   - Default fields (service name, version)
//   - Output destination
//   - Optional LogRing tee (see WithRing)
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for default field
//   - opts: Optional settings
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string, opts ...Option) *Logger {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	output := o.output
	if output == nil {
		switch strings.ToLower(cfg.Output) {
		case "stderr":
			output = os.Stderr
		default:
			output = os.Stdout
		}
	}

	level := parseLevel(cfg.Level)

	var handler slog.Handler
	handlerOpts := &slog.HandlerOptions{
		Level: level,
	}

	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, handlerOpts)
	default:
		handler = slog.NewJSONHandler(output, handlerOpts)
	}

	// Default fields go to the primary output only; ring readers already
	// know which controller they asked.
	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "avx"),
		slog.String("version", version),
	})

	if o.ring != nil {
		handler = newRingHandler(handler, o.ring)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	mqttLogger := logger.With("component", "mqtt")
//	mqttLogger.Info("connected") // Includes component=mqtt
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Exception logs msg at error level together with err and the current
// goroutine's stack under ExceptionKey.
//
// The primary output receives the stack. A LogRing fed by this logger keeps
// the message but replaces the stack with a redaction notice.
func (l *Logger) Exception(msg string, err error, args ...any) {
	args = append(args, "error", err, ExceptionKey, string(debug.Stack()))
	l.Error(msg, args...)
}

// Panic logs a recovered panic value the same way Exception logs an error.
func (l *Logger) Panic(msg string, recovered any, args ...any) {
	l.Exception(msg, fmt.Errorf("panic: %v", recovered), args...)
}

// Default creates a default logger for use before configuration is loaded.
//
// This logger outputs to stdout in JSON format at info level.
// It should only be used during early startup before config is available.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

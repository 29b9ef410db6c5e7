package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Level names accepted in Config.Level.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Config controls how log records are rendered.
type Config struct {
	Level     string
	JSON      bool
	Output    io.Writer
	AddSource bool
}

// DefaultConfig returns JSON logging at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		JSON:   true,
		Output: os.Stderr,
	}
}

// Logger wraps slog for structured logging.
type Logger struct {
	*slog.Logger
}

var global *Logger

// New builds a logger. The first logger built becomes the global one.
func New(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLevel(config.Level), AddSource: config.AddSource}

	var handler slog.Handler
	if config.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	l := &Logger{Logger: slog.New(handler)}
	if global == nil {
		global = l
	}
	return l
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetGlobal replaces the process-wide logger.
func SetGlobal(l *Logger) {
	global = l
}

// GetGlobal returns the process-wide logger, creating a default one if needed.
func GetGlobal() *Logger {
	if global == nil {
		return New(DefaultConfig())
	}
	return global
}

// LogError logs err under msg with extra key/value pairs.
func (l *Logger) LogError(err error, msg string, args ...any) {
	if err == nil {
		l.Error(msg, args...)
		return
	}
	l.Error(msg, append([]any{"error", err.Error()}, args...)...)
}

// With returns a child logger carrying the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithRequestID tags every record with the request id.
func (l *Logger) WithRequestID(requestID string) *Logger {
	if requestID == "" {
		return l
	}
	return l.With("request_id", requestID)
}

// WithClientID tags every record with a websocket client id.
func (l *Logger) WithClientID(clientID string) *Logger {
	if clientID == "" {
		return l
	}
	return l.With("client_id", clientID)
}

// LogRequest logs a finished HTTP request.
func (l *Logger) LogRequest(method, path string, status int, latency time.Duration) {
	l.Info("request completed",
		"method", method,
		"path", path,
		"status", status,
		"latency_ms", latency.Milliseconds(),
	)
}

// MaskSecret keeps the first and last five characters of a credential.
// Short values are fully hidden.
func MaskSecret(s string) string {
	if s == "" {
		return "none"
	}
	if len(s) <= 10 {
		return "***"
	}
	return s[:5] + "..." + s[len(s)-5:]
}

package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/AdotEXE/protocol-XT-sub007/internal/config"
)

type contextKey string

var (
	loggerContextKey = contextKey("simcore-logger")

	globalMu     sync.RWMutex
	globalLogger = newNopLogger()
)

// Level represents log verbosity ordering.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "info"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func parseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, eris.Errorf("unknown log level %q", raw)
	}
}

// Field represents a structured logging attribute.
type Field struct {
	Key   string
	Value any
}

// String returns a string field.
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Int returns an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Uint32 returns a uint32 field, typically a frame tick.
func Uint32(key string, value uint32) Field { return Field{Key: key, Value: value} }

// Float64 returns a float64 field.
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Duration returns a duration field.
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Bool returns a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Error returns an error field.
func Error(err error) Field { return Field{Key: "error", Value: err} }

// Logger emits JSON-formatted structured logs through zerolog.
type Logger struct {
	zl zerolog.Logger
	// sink is the rotating file; nil for test and nop loggers.
	sink io.Closer
}

// New constructs a JSON logger configured with on-disk rotation and stdout mirroring.
func New(cfg config.LoggingConfig) (*Logger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, eris.New("logging path must be specified")
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	writer, err := newRotatingFile(cfg)
	if err != nil {
		return nil, err
	}
	out := zerolog.MultiLevelWriter(writer, os.Stdout)
	logger := &Logger{
		zl: zerolog.New(out).Level(level.zerolog()).With().
			Timestamp().
			Str("service", "simcore").
			Logger(),
		sink: writer,
	}
	ReplaceGlobals(logger)
	return logger, nil
}

// NewWriterLogger builds a logger writing to w, mostly for tests that inspect output.
func NewWriterLogger(w io.Writer, level Level) *Logger {
	return &Logger{zl: zerolog.New(w).Level(level.zerolog()).With().Timestamp().Logger()}
}

// NewTestLogger returns a logger that discards output, suitable for tests.
func NewTestLogger() *Logger {
	return newNopLogger()
}

func newNopLogger() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// ReplaceGlobals swaps the fallback logger used when no context logger is present.
func ReplaceGlobals(logger *Logger) {
	if logger == nil {
		return
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// L returns the current global logger.
func L() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// With augments the logger with additional structured fields.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil {
		return L().With(fields...)
	}
	ctx := l.zl.With()
	for _, field := range fields {
		ctx = applyContext(ctx, field)
	}
	return &Logger{zl: ctx.Logger(), sink: l.sink}
}

// Close releases the log file. Loggers derived through With share it.
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields ...Field) { l.log(DebugLevel, message, fields...) }

// Info logs an informational message.
func (l *Logger) Info(message string, fields ...Field) { l.log(InfoLevel, message, fields...) }

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields ...Field) { l.log(WarnLevel, message, fields...) }

// Error logs an error message.
func (l *Logger) Error(message string, fields ...Field) { l.log(ErrorLevel, message, fields...) }

func (l *Logger) log(level Level, message string, fields ...Field) {
	if l == nil {
		L().log(level, message, fields...)
		return
	}
	event := l.zl.WithLevel(level.zerolog())
	if event == nil {
		return
	}
	for _, field := range fields {
		event = applyEvent(event, field)
	}
	event.Msg(message)
}

func applyEvent(event *zerolog.Event, field Field) *zerolog.Event {
	switch v := field.Value.(type) {
	case string:
		return event.Str(field.Key, v)
	case int:
		return event.Int(field.Key, v)
	case uint32:
		return event.Uint32(field.Key, v)
	case float64:
		return event.Float64(field.Key, v)
	case bool:
		return event.Bool(field.Key, v)
	case time.Duration:
		return event.Dur(field.Key, v)
	case error:
		return event.AnErr(field.Key, v)
	default:
		return event.Interface(field.Key, v)
	}
}

func applyContext(ctx zerolog.Context, field Field) zerolog.Context {
	switch v := field.Value.(type) {
	case string:
		return ctx.Str(field.Key, v)
	case int:
		return ctx.Int(field.Key, v)
	case uint32:
		return ctx.Uint32(field.Key, v)
	case float64:
		return ctx.Float64(field.Key, v)
	case bool:
		return ctx.Bool(field.Key, v)
	case time.Duration:
		return ctx.Dur(field.Key, v)
	case error:
		return ctx.AnErr(field.Key, v)
	default:
		return ctx.Interface(field.Key, v)
	}
}

// ContextWithLogger stores a logger in the provided context.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// LoggerFromContext retrieves a logger from context or falls back to the global logger.
func LoggerFromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return L()
	}
	if logger, ok := ctx.Value(loggerContextKey).(*Logger); ok && logger != nil {
		return logger
	}
	return L()
}

// newRotatingFile maps the logging config onto a lumberjack sink. lumberjack
// opens the file lazily and creates its directory on first write.
func newRotatingFile(cfg config.LoggingConfig) (*lumberjack.Logger, error) {
	switch {
	case cfg.MaxSizeMB <= 0:
		return nil, eris.New("SIMCORE_LOG_MAX_SIZE_MB must be positive")
	case cfg.MaxBackups < 0:
		return nil, eris.New("SIMCORE_LOG_MAX_BACKUPS must be non-negative")
	case cfg.MaxAgeDays < 0:
		return nil, eris.New("SIMCORE_LOG_MAX_AGE_DAYS must be non-negative")
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, nil
}

package mqttier

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync/atomic"
)

// LogLevel orders log severities; LogLevelNone disables logging.
type LogLevel int32

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelNone
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel maps a case-insensitive level name to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug, nil
	case "info", "":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "none", "off":
		return LogLevelNone, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

// LogFields holds structured key/value pairs.
type LogFields map[string]any

// Logger is the structured logger used by the client.
type Logger interface {
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Warn(msg string, fields LogFields)
	Error(msg string, fields LogFields)

	// WithFields returns a logger that adds fields to every entry.
	WithFields(fields LogFields) Logger

	Level() LogLevel
	SetLevel(level LogLevel)
}

// Field names used across the client.
const (
	LogFieldClientID   = "client_id"
	LogFieldTopic      = "topic"
	LogFieldFilter     = "filter"
	LogFieldPacketID   = "packet_id"
	LogFieldPacketType = "packet_type"
	LogFieldQoS        = "qos"
	LogFieldReasonCode = "reason_code"
	LogFieldError      = "error"
	LogFieldServer     = "server"
	LogFieldAttempt    = "attempt"
	LogFieldDuration   = "duration"
	LogFieldState      = "state"
)

// NoOpLogger discards everything.
type NoOpLogger struct{}

func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (*NoOpLogger) Debug(string, LogFields) {}
func (*NoOpLogger) Info(string, LogFields) {}
func (*NoOpLogger) Warn(string, LogFields) {}
func (*NoOpLogger) Error(string, LogFields) {}
func (n *NoOpLogger) WithFields(LogFields) Logger { return n }
func (*NoOpLogger) Level() LogLevel { return LogLevelNone }
func (*NoOpLogger) SetLevel(LogLevel) {}

// StdLogger writes through the standard library log package.
type StdLogger struct {
	logger *log.Logger
	level  *atomic.Int32
	fields LogFields
}

// NewStdLogger logs to w, or stderr when w is nil.
func NewStdLogger(w io.Writer, level LogLevel) *StdLogger {
	if w == nil {
		w = os.Stderr
	}
	l := &StdLogger{logger: log.New(w, "", log.LstdFlags), level: new(atomic.Int32)}
	l.level.Store(int32(level))
	return l
}

func (s *StdLogger) Debug(msg string, fields LogFields) { s.log(LogLevelDebug, msg, fields) }
func (s *StdLogger) Info(msg string, fields LogFields) { s.log(LogLevelInfo, msg, fields) }
func (s *StdLogger) Warn(msg string, fields LogFields) { s.log(LogLevelWarn, msg, fields) }
func (s *StdLogger) Error(msg string, fields LogFields) { s.log(LogLevelError, msg, fields) }

func (s *StdLogger) WithFields(fields LogFields) Logger {
	merged := maps.Clone(s.fields)
	if merged == nil {
		merged = make(LogFields, len(fields))
	}
	maps.Copy(merged, fields)
	return &StdLogger{logger: s.logger, level: s.level, fields: merged}
}

func (s *StdLogger) Level() LogLevel { return LogLevel(s.level.Load()) }
func (s *StdLogger) SetLevel(level LogLevel) { s.level.Store(int32(level)) }

func (s *StdLogger) log(level LogLevel, msg string, fields LogFields) {
	if level < s.Level() || s.Level() == LogLevelNone {
		return
	}
	all := make(LogFields, len(s.fields)+len(fields))
	maps.Copy(all, s.fields)
	maps.Copy(all, fields)
	if len(all) == 0 {
		s.logger.Printf("[%s] %s", level, msg)
		return
	}
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(all)) {
		fmt.Fprintf(&b, " %s=%v", k, all[k])
	}
	s.logger.Printf("[%s] %s%s", level, msg, b.String())
}

// SlogLogger adapts a *slog.Logger to Logger.
type SlogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// NewSlogLogger wraps l, or slog.Default() when l is nil. Entries below
// level are dropped before reaching the handler.
func NewSlogLogger(l *slog.Logger, level LogLevel) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	s := &SlogLogger{logger: l, level: new(slog.LevelVar)}
	s.SetLevel(level)
	return s
}

func (s *SlogLogger) Debug(msg string, fields LogFields) { s.log(slog.LevelDebug, msg, fields) }
func (s *SlogLogger) Info(msg string, fields LogFields) { s.log(slog.LevelInfo, msg, fields) }
func (s *SlogLogger) Warn(msg string, fields LogFields) { s.log(slog.LevelWarn, msg, fields) }
func (s *SlogLogger) Error(msg string, fields LogFields) { s.log(slog.LevelError, msg, fields) }

func (s *SlogLogger) WithFields(fields LogFields) Logger {
	return &SlogLogger{logger: s.logger.With(fieldsToAttrs(fields)...), level: s.level}
}

func (s *SlogLogger) Level() LogLevel {
	switch lv := s.level.Level(); {
	case lv > slog.LevelError:
		return LogLevelNone
	case lv >= slog.LevelError:
		return LogLevelError
	case lv >= slog.LevelWarn:
		return LogLevelWarn
	case lv >= slog.LevelInfo:
		return LogLevelInfo
	default:
		return LogLevelDebug
	}
}

func (s *SlogLogger) SetLevel(level LogLevel) {
	switch level {
	case LogLevelDebug:
		s.level.Set(slog.LevelDebug)
	case LogLevelInfo:
		s.level.Set(slog.LevelInfo)
	case LogLevelWarn:
		s.level.Set(slog.LevelWarn)
	case LogLevelError:
		s.level.Set(slog.LevelError)
	default:
		s.level.Set(slog.LevelError + 4)
	}
}

func (s *SlogLogger) log(level slog.Level, msg string, fields LogFields) {
	if level < s.level.Level() {
		return
	}
	s.logger.Log(context.Background(), level, msg, fieldsToAttrs(fields)...)
}

func fieldsToAttrs(fields LogFields) []any {
	if len(fields) == 0 {
		return nil
	}
	attrs := make([]any, 0, len(fields))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	return attrs
}

// Package logging is the printf-style logger every engine component takes.
// Backed by slog it emits structured component, run_id and trace_id fields;
// other implementations get the same information as message prefixes.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
)

// Logger is the minimal logging contract components depend on, so tests can
// pass Nop() or a recorder.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }

// IsNil reports whether logger is nil or a typed nil pointer.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	v := reflect.ValueOf(logger)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Func, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// OrNop returns logger, or Nop() when it is nil.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// slogLogger formats printf calls and writes them through slog with its
// fields. component is kept apart so nested WithComponent calls replace it.
type slogLogger struct {
	base      *slog.Logger
	component string
	fields    []any
}

// FromSlog adapts base, tagging records with component when it is set.
func FromSlog(base *slog.Logger, component string) Logger {
	if base == nil {
		return Nop()
	}
	return &slogLogger{base: base, component: component}
}

func (l *slogLogger) log(level slog.Level, format string, args []any) {
	ctx := context.Background()
	if !l.base.Enabled(ctx, level) {
		return
	}
	attrs := make([]any, 0, len(l.fields)+2)
	if l.component != "" {
		attrs = append(attrs, "component", l.component)
	}
	attrs = append(attrs, l.fields...)
	l.base.Log(ctx, level, fmt.Sprintf(format, args...), attrs...)
}

func (l *slogLogger) Debug(format string, args ...any) { l.log(slog.LevelDebug, format, args) }
func (l *slogLogger) Info(format string, args ...any)  { l.log(slog.LevelInfo, format, args) }
func (l *slogLogger) Warn(format string, args ...any)  { l.log(slog.LevelWarn, format, args) }
func (l *slogLogger) Error(format string, args ...any) { l.log(slog.LevelError, format, args) }

func (l *slogLogger) with(key string, value any) Logger {
	next := &slogLogger{base: l.base, component: l.component}
	if key == "component" {
		next.component = fmt.Sprint(value)
		next.fields = l.fields
		return next
	}
	next.fields = append(append(make([]any, 0, len(l.fields)+2), l.fields...), key, value)
	return next
}

// prefixLogger is the fallback for loggers without structured fields.
type prefixLogger struct {
	logger Logger
	prefix string
}

func (l *prefixLogger) Debug(format string, args ...any) { l.logger.Debug(l.prefix+format, args...) }
func (l *prefixLogger) Info(format string, args ...any)  { l.logger.Info(l.prefix+format, args...) }
func (l *prefixLogger) Warn(format string, args ...any)  { l.logger.Warn(l.prefix+format, args...) }
func (l *prefixLogger) Error(format string, args ...any) { l.logger.Error(l.prefix+format, args...) }

// with attaches key=value to logger, as a field when the backend supports it
// and as a "[prefix] " otherwise.
func with(logger Logger, key string, value any, prefix string) Logger {
	logger = OrNop(logger)
	if _, ok := logger.(nopLogger); ok {
		return logger
	}
	if s, ok := logger.(*slogLogger); ok {
		return s.with(key, value)
	}
	return &prefixLogger{logger: logger, prefix: "[" + prefix + "] "}
}

// WithComponent scopes logger to a component name.
func WithComponent(logger Logger, component string) Logger {
	if component == "" {
		return OrNop(logger)
	}
	return with(logger, "component", component, component)
}

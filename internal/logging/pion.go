package logging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// PionFactory routes pion's internal logs into slog under a "scope" attribute.
type PionFactory struct {
	Logger *slog.Logger
}

// NewPionFactory returns a factory writing to logger, or slog.Default when nil.
func NewPionFactory(logger *slog.Logger) *PionFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &PionFactory{Logger: logger.With("component", "pion")}
}

// NewLogger implements logging.LoggerFactory.
func (f *PionFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{log: f.Logger.With("scope", scope)}
}

var _ logging.LoggerFactory = (*PionFactory)(nil)

// levelTrace sits below debug; pion's trace output is very chatty.
const levelTrace = slog.LevelDebug - 4

type pionLogger struct {
	log *slog.Logger
}

func (l *pionLogger) emit(level slog.Level, msg string) {
	l.log.Log(context.Background(), level, msg)
}

func (l *pionLogger) emitf(level slog.Level, format string, args ...interface{}) {
	if !l.log.Enabled(context.Background(), level) {
		return
	}
	l.emit(level, fmt.Sprintf(format, args...))
}

func (l *pionLogger) Trace(msg string)                          { l.emit(levelTrace, msg) }
func (l *pionLogger) Tracef(format string, args ...interface{}) { l.emitf(levelTrace, format, args...) }
func (l *pionLogger) Debug(msg string)                          { l.emit(slog.LevelDebug, msg) }
func (l *pionLogger) Debugf(format string, args ...interface{}) { l.emitf(slog.LevelDebug, format, args...) }
func (l *pionLogger) Info(msg string)                           { l.emit(slog.LevelInfo, msg) }
func (l *pionLogger) Infof(format string, args ...interface{})  { l.emitf(slog.LevelInfo, format, args...) }
func (l *pionLogger) Warn(msg string)                           { l.emit(slog.LevelWarn, msg) }
func (l *pionLogger) Warnf(format string, args ...interface{})  { l.emitf(slog.LevelWarn, format, args...) }
func (l *pionLogger) Error(msg string)                          { l.emit(slog.LevelError, msg) }
func (l *pionLogger) Errorf(format string, args ...interface{}) { l.emitf(slog.LevelError, format, args...) }

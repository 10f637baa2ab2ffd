// Package logger provides leveled structured logging.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var defaultLogger atomic.Pointer[zap.SugaredLogger]

// ParseLevel maps a config level name onto a zap level. Unknown names fall back to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init initializes the default logger with the specified level and format ("json" or "text").
func Init(level string, format string) {
	var config zap.Config
	if strings.ToLower(format) == "text" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.Sampling = nil
	}
	config.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	l, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return
	}
	Use(l)
}

// Use installs l as the default logger. Tests pass zap.NewNop() or an observer core.
func Use(l *zap.Logger) {
	if l == nil {
		defaultLogger.Store(nil)
		return
	}
	defaultLogger.Store(l.Sugar())
}

// Sync flushes buffered log entries.
func Sync() {
	if l := defaultLogger.Load(); l != nil {
		_ = l.Sync()
	}
}

func Debug(format string, args ...interface{}) {
	if l := defaultLogger.Load(); l != nil {
		l.Debugf(format, args...)
	}
}

func Info(format string, args ...interface{}) {
	if l := defaultLogger.Load(); l != nil {
		l.Infof(format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	if l := defaultLogger.Load(); l != nil {
		l.Warnf(format, args...)
	}
}

func Error(format string, args ...interface{}) {
	if l := defaultLogger.Load(); l != nil {
		l.Errorf(format, args...)
	}
}

func Fatal(format string, args ...interface{}) {
	if l := defaultLogger.Load(); l != nil {
		l.Errorf("FATAL: "+format, args...)
		_ = l.Sync()
	} else {
		fmt.Fprintf(os.Stderr, "[FATAL] "+format+"\n", args...)
	}
	os.Exit(1)
}

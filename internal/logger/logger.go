// Package logger provides a small package-level structured logger used by
// every component of the supervisor.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

// Init initializes the global logger. If verbose is true or LOG_LEVEL is
// "debug", debug logging is enabled.
func Init(verbose bool) {
	level := zapcore.InfoLevel
	if verbose || strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		level = zapcore.DebugLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	built, err := cfg.Build()
	if err != nil {
		built = zap.NewNop()
	}
	log = built
	zap.ReplaceGlobals(log)
}

func ensure() *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return log
}

// Debug logs a debug message with structured key-value pairs.
func Debug(msg string, kv ...any) { ensure().Sugar().Debugw(msg, kv...) }

// Info logs an info message with structured key-value pairs.
func Info(msg string, kv ...any) { ensure().Sugar().Infow(msg, kv...) }

// Warn logs a warning message with structured key-value pairs.
func Warn(msg string, kv ...any) { ensure().Sugar().Warnw(msg, kv...) }

// Error logs an error message with structured key-value pairs.
func Error(msg string, kv ...any) { ensure().Sugar().Errorw(msg, kv...) }

// Named returns a sugared child logger tagged with the given subsystem name.
func Named(name string) *zap.SugaredLogger {
	return ensure().Named(name).Sugar()
}

// Sync flushes any buffered log entries; call before process exit.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

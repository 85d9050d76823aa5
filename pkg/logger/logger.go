// Package logger provides a leveled, structured logging singleton used by
// every component of the OAuth token core.
package logger

import (
	"os"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var singleton atomic.Pointer[zap.SugaredLogger]

func init() {
	Initialize()
}

// Initialize (re)configures the package-level logger from the environment.
// OAUTHCORE_LOG_FORMAT=json selects a production (JSON) encoder; anything
// else, including unset, selects a human-readable console encoder.
func Initialize() {
	initializeWithFormat(os.Getenv("OAUTHCORE_LOG_FORMAT"))
}

func initializeWithFormat(format string) {
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	if lvl := os.Getenv("OAUTHCORE_LOG_LEVEL"); lvl != "" {
		if parsed, err := strconv.Atoi(lvl); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(parsed))
		}
	}

	l, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger rather than failing package init.
		l = zap.NewNop()
	}
	singleton.Store(l.Sugar())
}

// Get returns the current singleton logger.
func Get() *zap.SugaredLogger {
	return singleton.Load()
}

// Debugf logs a formatted message at debug level.
func Debugf(template string, args ...any) { Get().Debugf(template, args...) }

// Debugw logs a message with structured key/value pairs at debug level.
func Debugw(msg string, kv ...any) { Get().Debugw(msg, kv...) }

// Infof logs a formatted message at info level.
func Infof(template string, args ...any) { Get().Infof(template, args...) }

// Infow logs a message with structured key/value pairs at info level.
func Infow(msg string, kv ...any) { Get().Infow(msg, kv...) }

// Warnf logs a formatted message at warn level.
func Warnf(template string, args ...any) { Get().Warnf(template, args...) }

// Warnw logs a message with structured key/value pairs at warn level.
func Warnw(msg string, kv ...any) { Get().Warnw(msg, kv...) }

// Errorf logs a formatted message at error level.
func Errorf(template string, args ...any) { Get().Errorf(template, args...) }

// Errorw logs a message with structured key/value pairs at error level.
func Errorw(msg string, kv ...any) { Get().Errorw(msg, kv...) }

// Package logger owns the process-wide zap logger. The host packages log
// through it; the obd and emissions packages stay log-free.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global *zap.Logger
	once   sync.Once
)

// Init builds the global logger. Debug selects a console development
// config at debug level; otherwise a JSON production config at info.
func Init(debug bool) error {
	var err error
	once.Do(func() {
		var cfg zap.Config
		if debug {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}
		global, err = cfg.Build(zap.AddCallerSkip(1))
	})
	return err
}

// Get returns the global logger, falling back to a production logger if
// Init was never called.
func Get() *zap.Logger {
	if global == nil {
		l, _ := zap.NewProduction()
		return l
	}
	return global
}

// Named returns a logger scoped to a subsystem name.
func Named(name string) *zap.Logger {
	return Get().Named(name)
}

// Sync flushes buffered entries; call before process exit.
func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}

func Debug(msg string, fields ...zap.Field) { Get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }

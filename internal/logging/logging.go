// Package logging holds the default zap loggers shared by gcroot packages.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Default returns the process-wide fallback logger. It only writes Error and
// above to stderr, so routine debug output stays silent while invariant
// violations reported through Fatal are always visible before exit.
func Default() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			enc := zap.NewDevelopmentEncoderConfig()
			enc.EncodeLevel = zapcore.CapitalLevelEncoder
			core := zapcore.NewCore(
				zapcore.NewConsoleEncoder(enc),
				zapcore.Lock(os.Stderr),
				zapcore.ErrorLevel,
			)
			logger = zap.New(core, zap.AddCaller())
		}
	})
	return logger
}

// Or returns l when it is non-nil and Default otherwise.
func Or(l *zap.Logger) *zap.Logger {
	if l != nil {
		return l
	}
	return Default()
}

// ParseLevel maps a config level name to a zap level. Empty means info.
func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(name)
}

package engine

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/gcroot/internal/logging"
)

var (
	logger   *zap.Logger
	loggerMu sync.RWMutex
)

// Logger returns the package logger used by runtimes created without
// WithLogger. It writes errors only unless replaced with SetLogger.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logging.Or(logger)
}

// SetLogger replaces the package logger. Runtimes already created keep
// their logger.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

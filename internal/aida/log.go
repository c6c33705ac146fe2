package aida

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

var (
	logger   atomic.Pointer[log.Logger]
	debugLog atomic.Bool
)

func init() {
	logger.Store(log.New(os.Stderr, "aida: ", log.LstdFlags|log.Lmicroseconds))
}

// SetLogger replaces the logger used for diagnostics. A nil logger restores the default.
func SetLogger(l *log.Logger) {
	if l == nil {
		l = log.New(os.Stderr, "aida: ", log.LstdFlags|log.Lmicroseconds)
	}
	logger.Store(l)
}

// SetDebug enables or disables debug lines.
func SetDebug(enabled bool) { debugLog.Store(enabled) }

// DebugEnabled reports whether debug lines are emitted.
func DebugEnabled() bool { return debugLog.Load() }

func debugf(format string, args ...interface{}) {
	if debugLog.Load() {
		logger.Load().Printf("[DEBUG] "+format, args...)
	}
}

func warningf(format string, args ...interface{}) {
	logger.Load().Printf("WARNING: "+format, args...)
}

// fatal logs err and aborts the current operation by panicking with it.
func fatal(err *orberrors.StandardError) {
	logger.Load().Output(2, fmt.Sprintf("[FATAL] %v", err))
	panic(err)
}

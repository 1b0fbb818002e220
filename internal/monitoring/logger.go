// Package monitoring holds the diagnostic loggers shared by the kinematics
// layers, the store and the HTTP API.
package monitoring

import (
	"io"
	"log"
)

// Logf receives operational messages (run summaries, fallbacks taken). It
// defaults to log.Printf; SetLogger redirects or mutes it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

var debugLogger *log.Logger

// SetDebugLogger installs a writer for per-frame and per-signal diagnostics.
// Pass nil to disable debug output, which is the default.
func SetDebugLogger(w io.Writer) {
	if w == nil {
		debugLogger = nil
		return
	}
	debugLogger = log.New(w, "", log.LstdFlags|log.Lmicroseconds)
}

// Debugf logs when a debug writer is configured.
func Debugf(format string, v ...interface{}) {
	if debugLogger != nil {
		debugLogger.Printf(format, v...)
	}
}

// DebugEnabled lets hot loops skip formatting work.
func DebugEnabled() bool { return debugLogger != nil }

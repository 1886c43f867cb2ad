// Package vmlog provides the ambient, per-subsystem logging used across the
// VM: one *log.Logger per subsystem (mm, cache, interp, cfgraph, ssa,
// typeinfer, image), each prefixed so interleaved output from the GC,
// interpreter and inference passes can be told apart, the same convention
// cmd_local/go/internal/base uses for its single Errorf/Fatalf sink.
package vmlog

import (
	"io"
	"log"
	"os"
)

// Logger wraps a *log.Logger with the subsystem name it was created for and
// a verbose flag that gates Debugf.
type Logger struct {
	*log.Logger
	subsystem string
	verbose   bool
}

// New creates a Logger writing to w (os.Stderr if w is nil), prefixed with
// subsystem. verbose gates Debugf; Infof and Errorf always print.
func New(subsystem string, w io.Writer, verbose bool) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		Logger:    log.New(w, "["+subsystem+"] ", log.LstdFlags),
		subsystem: subsystem,
		verbose:   verbose,
	}
}

// Discard returns a Logger that drops everything, for tests that don't want
// allocator or interpreter chatter on stderr.
func Discard(subsystem string) *Logger {
	return New(subsystem, io.Discard, false)
}

func (l *Logger) Subsystem() string { return l.subsystem }

func (l *Logger) Infof(format string, args ...interface{}) {
	l.Printf(format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Printf("error: "+format, args...)
}

// Debugf only prints when the Logger was constructed with verbose=true,
// matching cfg.BuildX's "print extra detail only if asked" behavior.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.Printf("debug: "+format, args...)
}

// Package logging provides the ambient logging interface shared by
// every long-lived depot component. It keeps the Info/Warn/Error/Debug
// methods (with their formatted variants) and ToggleDebug of the
// teacher's own definition.Logger, without its Fatal and Panic
// variants, backed by logrus instead of a hand-rolled wrapper around
// the standard log package.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface every depot component depends on. No
// wire-protocol or stdout-contract output ever flows through it; it is
// purely diagnostic.
type Logger interface {
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	ToggleDebug(enabled bool) bool
}

// DefaultLogger is the logrus-backed implementation used when the
// caller does not supply its own.
type DefaultLogger struct {
	entry *logrus.Logger
}

// NewDefaultLogger builds a logger that writes leveled, timestamped
// lines to stderr, keeping stdout free for the port-echo and dump
// output the wire contract depends on.
func NewDefaultLogger() *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return &DefaultLogger{entry: l}
}

func (d *DefaultLogger) Info(args ...interface{})  { d.entry.Info(args...) }
func (d *DefaultLogger) Warn(args ...interface{})  { d.entry.Warn(args...) }
func (d *DefaultLogger) Error(args ...interface{}) { d.entry.Error(args...) }
func (d *DefaultLogger) Debug(args ...interface{}) { d.entry.Debug(args...) }

func (d *DefaultLogger) Infof(format string, args ...interface{})  { d.entry.Infof(format, args...) }
func (d *DefaultLogger) Warnf(format string, args ...interface{})  { d.entry.Warnf(format, args...) }
func (d *DefaultLogger) Errorf(format string, args ...interface{}) { d.entry.Errorf(format, args...) }
func (d *DefaultLogger) Debugf(format string, args ...interface{}) { d.entry.Debugf(format, args...) }

// ToggleDebug flips debug-level logging on or off and returns the new
// state, matching the teacher's DefaultLogger.ToggleDebug contract.
func (d *DefaultLogger) ToggleDebug(enabled bool) bool {
	if enabled {
		d.entry.SetLevel(logrus.DebugLevel)
	} else {
		d.entry.SetLevel(logrus.InfoLevel)
	}
	return enabled
}

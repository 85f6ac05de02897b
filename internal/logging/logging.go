// Package logging provides the small leveled logger interface used
// throughout this module, grounded on pebble's internal/base.Logger
// (DESIGN.md §K): a three-method interface rather than a full structured
// logging framework, since that is all the teacher's own components
// require of a logger.
package logging

import (
	"fmt"
	"log"
	"os"
)

// Logger is implemented by anything that can receive leveled log lines.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Default logs to the Go stdlib logger, prefixed with the message's level.
type Default struct{}

// Infof implements Logger.
func (Default) Infof(format string, args ...interface{}) {
	_ = log.Output(2, "INFO  "+fmt.Sprintf(format, args...))
}

// Errorf implements Logger.
func (Default) Errorf(format string, args ...interface{}) {
	_ = log.Output(2, "ERROR "+fmt.Sprintf(format, args...))
}

// Fatalf implements Logger, terminating the process after logging.
func (Default) Fatalf(format string, args ...interface{}) {
	_ = log.Output(2, "FATAL "+fmt.Sprintf(format, args...))
	os.Exit(1)
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Fatalf(string, ...interface{}) {}

// Nop returns a Logger that discards every message, used where a caller
// does not supply one.
func Nop() Logger { return nopLogger{} }

// Package logging is a small stderr logger shared by all packages. Diagnostics
// stay off stdout so they never mix with agent answers.
package logging

import (
	"log"
	"os"
)

var (
	disabled = false
	verbose  = false
	logger   = log.New(os.Stderr, "", log.LstdFlags)
)

// Disable turns off all logging (used for clean CLI output)
func Disable() {
	disabled = true
}

// SetVerbose turns debug output on or off
func SetVerbose(on bool) {
	verbose = on
}

// Infof logs a formatted info message
func Infof(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Warnf logs a formatted warning message
func Warnf(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Errorf logs a formatted error message
func Errorf(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Debugf logs a formatted debug message when verbose mode is on
func Debugf(format string, v ...any) {
	if !disabled && verbose {
		logger.Printf(format, v...)
	}
}

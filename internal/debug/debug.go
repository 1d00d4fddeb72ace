// Package debug provides verbose and quiet output controls shared by every
// command. Verbose output goes to stderr so it never pollutes the audit
// stream on stdout.
package debug

import (
	"fmt"
	"os"
)

var (
	enabled     = os.Getenv("RJ_DEBUG") != ""
	verboseMode = false
	quietMode   = false
)

// Enabled reports whether debug output is active (RJ_DEBUG or --verbose).
func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose output.
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet suppresses non-essential output.
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled.
func IsQuiet() bool {
	return quietMode
}

// Logf writes debug output to stderr when enabled.
func Logf(format string, args ...interface{}) {
	if Enabled() {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Warnf always writes a warning to stderr, even in quiet mode.
func Warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format, args...)
}

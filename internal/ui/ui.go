// Package ui renders user-facing terminal output. Log output goes through
// internal/logs; everything the user is meant to read goes through here.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var quiet bool

// SetQuiet suppresses informational output. Errors and essential results
// still print.
func SetQuiet(q bool) {
	quiet = q
}

// SetNoColor disables ANSI colors (also triggered by the NO_COLOR env var,
// which the color package honors on its own).
func SetNoColor(nc bool) {
	if nc {
		color.NoColor = true
	}
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
)

// Success prints a checkmarked message (suppressed in quiet mode).
func Success(format string, v ...interface{}) {
	if !quiet {
		fmt.Printf("%s %s\n", green("✓"), fmt.Sprintf(format, v...))
	}
}

// Error prints to stderr. Never suppressed.
func Error(format string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", red("✗"), fmt.Sprintf(format, v...))
}

// Warn prints to stderr. Never suppressed.
func Warn(format string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", yellow("!"), fmt.Sprintf(format, v...))
}

// Info prints an informational line (suppressed in quiet mode).
func Info(format string, v ...interface{}) {
	if !quiet {
		fmt.Printf("%s %s\n", blue("→"), fmt.Sprintf(format, v...))
	}
}

// Essential prints machine-consumable results (PR URLs). Never suppressed.
func Essential(format string, v ...interface{}) {
	fmt.Printf(format+"\n", v...)
}

// Plain prints without a prefix (suppressed in quiet mode).
func Plain(format string, v ...interface{}) {
	if !quiet {
		fmt.Printf(format+"\n", v...)
	}
}

// Current highlights the currently checked-out branch in listings.
func Current(name string) string {
	return cyan("▶ " + name)
}

// Dim renders de-emphasized text.
func Dim(s string) string { return dim(s) }

// SyncedDot / BehindDot / MissingDot are the status tree indicators.
func SyncedDot() string  { return green("●") }
func BehindDot() string  { return yellow("●") }
func MissingDot() string { return dim("○") }

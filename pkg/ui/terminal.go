package ui

import (
	"fmt"
	"os"
	"sync/atomic"
)

// Banner printed by interactive commands
const Banner = `
    ┌─────────────────────────────────────────────┐
    │  mediakeeper :: collect, keep, let go        │
    └─────────────────────────────────────────────┘
`

var (
	quiet   atomic.Bool
	noColor atomic.Bool
)

// SetQuietMode suppresses everything except errors
func SetQuietMode(q bool) { quiet.Store(q) }

// IsQuietMode reports whether quiet mode is on
func IsQuietMode() bool { return quiet.Load() }

// SetNoColor disables ANSI colors
func SetNoColor(v bool) { noColor.Store(v) }

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if noColor.Load() {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintBanner prints the banner unless quiet
func PrintBanner() {
	if IsQuietMode() {
		return
	}
	fmt.Print(Cyan(Banner))
}

// PrintError prints an error message in red to stderr. Errors are shown in
// quiet mode too.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 && fmt.Sprint(args[0]) != "" {
		fmt.Fprintln(os.Stderr, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(os.Stderr, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	if IsQuietMode() {
		return
	}
	fmt.Println(Green(msg))
}

// PrintInfo prints a label/value pair
func PrintInfo(label string, value string) {
	if IsQuietMode() {
		return
	}
	fmt.Printf("%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if IsQuietMode() {
		return
	}
	if len(args) > 0 {
		fmt.Println(Yellow(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Println(Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	if IsQuietMode() {
		return
	}
	fmt.Println(Magenta(msg))
}

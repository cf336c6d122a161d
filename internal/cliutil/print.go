// Package cliutil collects the small terminal-output and error-formatting
// helpers the client binary uses, grounded on the teacher's own
// tool/common helpers (print.go/error.go/progress.go): colored status
// lines, a friendly top-level error formatter, and a confirmation prompt.
package cliutil

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/gravitational/trace"
)

// Info prints an informational line in cyan, mirroring the teacher's
// convention of coloring CLI status output rather than leaving it plain.
func Info(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, color.CyanString(format, args...))
}

// Success prints a line in green.
func Success(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, color.GreenString(format, args...))
}

// Warn prints a line in yellow.
func Warn(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, color.YellowString(format, args...))
}

// PrintError renders err the way a human expects to read it on a
// terminal: the trace debug report in verbose mode, or just the user
// message otherwise.
func PrintError(w io.Writer, err error, verbose bool) {
	if err == nil {
		return
	}
	if verbose {
		fmt.Fprintln(w, color.RedString(trace.DebugReport(err)))
		return
	}
	fmt.Fprintln(w, color.RedString("error: %v", trace.UserMessage(err)))
}

// Confirm reads a yes/no answer from r, defaulting to no on anything
// except a leading 'y'/'Y'.
func Confirm(r io.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return false
	}
	answer := strings.TrimSpace(scanner.Text())
	return len(answer) > 0 && (answer[0] == 'y' || answer[0] == 'Y')
}

// Package diag is the ambient logging/progress-reporting layer: the
// decompiler core itself stays silent, while the CLI and server own
// reporting through this package.
package diag

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Reporter writes progress messages with an elapsed-time prefix.
type Reporter struct {
	start   time.Time
	verbose bool
	out     io.Writer
}

// NewReporter creates a Reporter writing to os.Stderr.
func NewReporter(verbose bool) *Reporter {
	return &Reporter{start: time.Now(), verbose: verbose, out: os.Stderr}
}

// Log prints a message with an elapsed-time prefix.
func (r *Reporter) Log(format string, args ...any) {
	elapsed := time.Since(r.start)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(r.out, "[%02d:%02d] %s\n", mins, secs, msg)
}

// Verbose prints only when verbose mode is enabled.
func (r *Reporter) Verbose(format string, args ...any) {
	if r.verbose {
		r.Log(format, args...)
	}
}

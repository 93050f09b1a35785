// Package progress reports pipeline progress to stderr with elapsed time.
package progress

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

// Reporter reports pipeline progress to stderr with elapsed time.
type Reporter struct {
	start   time.Time
	verbose bool
}

// New creates a progress reporter.
func New(verbose bool) *Reporter {
	return &Reporter{start: time.Now(), verbose: verbose}
}

// Log prints a progress message with elapsed time prefix.
func (p *Reporter) Log(format string, args ...any) {
	elapsed := time.Since(p.start)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "[%02d:%02d] %s\n", mins, secs, msg)
}

// Verbose prints only when verbose mode is enabled.
func (p *Reporter) Verbose(format string, args ...any) {
	if p.verbose {
		p.Log(format, args...)
	}
}

// Count logs label followed by n with comma digit grouping, e.g.
// "VFG nodes 1,200,000".
func (p *Reporter) Count(label string, n int) {
	p.Log("%s %s", label, humanize.Comma(int64(n)))
}

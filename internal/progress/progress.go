// Package progress renders download progress and animated status lines to
// a terminal, falling back to plain single-line output when stdout isn't a
// TTY. internal/cacheproviders' http.go wraps a download destination in a
// Writer; cmd/cport's cache-prefetch subcommand drives a Spinner while it
// walks the configured binary-cache sources.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// lineWidth is how many columns a progress or spinner line is padded to,
// so the next write fully overwrites whatever the previous one left behind.
const lineWidth = 80

// IsTerminalFunc reports whether a file descriptor is a terminal. It's a
// var, not term.IsTerminal called directly, so tests can force TTY/non-TTY
// behavior without an actual terminal.
var IsTerminalFunc = term.IsTerminal

// Writer wraps a destination io.Writer and, on every Write, prints a
// rate-limited progress line (bar, percentage, ETA when total is known;
// running byte count and throughput otherwise) to output.
type Writer struct {
	dest      io.Writer
	output    io.Writer
	total     int64
	written   int64
	startedAt time.Time
	lastDraw  time.Time
	mu        sync.Mutex
}

// NewWriter returns a Writer that copies through to dest while printing
// progress to output. A total <= 0 means the size is unknown: the printed
// line shows bytes transferred and throughput but no percentage or ETA.
func NewWriter(dest io.Writer, total int64, output io.Writer) *Writer {
	return &Writer{
		dest:      dest,
		output:    output,
		total:     total,
		startedAt: time.Now(),
	}
}

// Write satisfies io.Writer, forwarding to dest and redrawing the progress
// line under the writer's lock.
func (pw *Writer) Write(p []byte) (int, error) {
	n, err := pw.dest.Write(p)
	if n > 0 {
		pw.mu.Lock()
		pw.written += int64(n)
		pw.draw()
		pw.mu.Unlock()
	}
	return n, err
}

// Finish erases the progress line, leaving the terminal clean for whatever
// output comes next.
func (pw *Writer) Finish() {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	fmt.Fprintf(pw.output, "\r%s\r", strings.Repeat(" ", lineWidth))
}

// draw prints the current progress line, rate-limited to at most ten
// redraws a second so large numbers of small writes don't flicker.
func (pw *Writer) draw() {
	now := time.Now()
	if now.Sub(pw.lastDraw) < 100*time.Millisecond {
		return
	}
	pw.lastDraw = now

	elapsed := now.Sub(pw.startedAt).Seconds()
	if elapsed < 0.1 {
		return
	}
	speed := float64(pw.written) / elapsed

	var line string
	if pw.total > 0 {
		line = pw.boundedProgressLine(speed)
	} else {
		line = fmt.Sprintf("\r   Downloaded: %s (%s/s)", formatBytes(pw.written), formatBytes(int64(speed)))
	}
	fmt.Fprint(pw.output, padLine(line))
}

// boundedProgressLine renders the bar+percentage+ETA line used once total
// is known.
func (pw *Writer) boundedProgressLine(speed float64) string {
	percent := float64(pw.written) / float64(pw.total) * 100
	if percent > 100 {
		percent = 100
	}

	eta := "--:--"
	if speed > 0 {
		remaining := float64(pw.total-pw.written) / speed
		if remaining < 0 {
			remaining = 0
		}
		eta = formatDuration(remaining)
	}

	return fmt.Sprintf("\r   [%s] %3.0f%% (%s/%s) %s/s ETA: %s",
		renderBar(percent, 30),
		percent,
		formatBytes(pw.written),
		formatBytes(pw.total),
		formatBytes(int64(speed)),
		eta,
	)
}

// renderBar draws a width-wide ASCII progress bar at the given percentage.
func renderBar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("=", filled)
	if filled < width {
		bar += ">" + strings.Repeat(" ", width-filled-1)
	}
	return bar
}

// padLine right-pads line with spaces to lineWidth so it fully overwrites
// whatever a previous, longer line left on the terminal.
func padLine(line string) string {
	if len(line) < lineWidth {
		return line + strings.Repeat(" ", lineWidth-len(line))
	}
	return line
}

// formatBytes renders b using the largest unit (B/KB/MB/GB) that keeps the
// mantissa readable.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case b >= GB:
		return fmt.Sprintf("%.1fGB", float64(b)/GB)
	case b >= MB:
		return fmt.Sprintf("%.1fMB", float64(b)/MB)
	case b >= KB:
		return fmt.Sprintf("%.1fKB", float64(b)/KB)
	default:
		return fmt.Sprintf("%dB", b)
	}
}

// formatDuration renders seconds as M:SS, or H:MM:SS once it reaches an
// hour. Negative input is clamped to zero.
func formatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	s := int(seconds)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, (s%3600)/60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// ShouldShowProgress reports whether stdout is a terminal, and therefore
// whether animated progress output is appropriate versus a single
// plain-text line.
func ShouldShowProgress() bool {
	return IsTerminalFunc(int(os.Stdout.Fd()))
}

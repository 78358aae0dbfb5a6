package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// spinnerFrames cycles through these characters while a Spinner animates.
var spinnerFrames = []string{"|", "/", "-", "\\"}

// spinnerInterval is how often the spinner advances to its next frame.
const spinnerInterval = 100 * time.Millisecond

// Spinner prints an animated status line for the duration of a long-running
// step (walking binary-cache sources, for instance). On a non-terminal
// output it degrades to printing the message once, since an animated
// carriage-return line is meaningless in a log file.
type Spinner struct {
	mu      sync.Mutex
	output  io.Writer
	message string
	done    chan struct{}
	stopped bool
	running bool
	isTTY   bool
}

// NewSpinner returns a Spinner writing to output, defaulting to os.Stderr
// when output is nil.
func NewSpinner(output io.Writer) *Spinner {
	if output == nil {
		output = os.Stderr
	}
	return &Spinner{
		output: output,
		isTTY:  ShouldShowProgress(),
	}
}

// Start displays message and, on a terminal, begins animating. Calling
// Start again while already animating just updates the message in place
// rather than spawning a second animation goroutine. In non-terminal mode
// the message is printed once and Start returns immediately.
func (s *Spinner) Start(message string) {
	s.mu.Lock()
	s.message = message
	alreadyRunning := s.running
	if !alreadyRunning {
		s.stopped = false
		s.running = true
		s.done = make(chan struct{})
	}
	s.mu.Unlock()

	if !s.isTTY {
		fmt.Fprintf(s.output, "%s\n", message)
		return
	}
	if !alreadyRunning {
		go s.animate()
	}
}

// SetMessage changes the text shown by a running spinner.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop ends the animation and erases the spinner line. A second call is a
// no-op.
func (s *Spinner) Stop() {
	if !s.markStopped() {
		return
	}
	if s.isTTY {
		fmt.Fprintf(s.output, "\r%s\r", strings.Repeat(" ", lineWidth))
	}
}

// StopWithMessage ends the animation and prints a final message in place
// of the spinner line.
func (s *Spinner) StopWithMessage(message string) {
	if !s.markStopped() {
		return
	}
	if s.isTTY {
		fmt.Fprintf(s.output, "\r%s\r%s\n", strings.Repeat(" ", lineWidth), message)
	} else {
		fmt.Fprintf(s.output, "%s\n", message)
	}
}

// markStopped flips stopped to true and closes done, returning false if
// the spinner was already stopped (so callers can no-op a repeated Stop).
func (s *Spinner) markStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || !s.running {
		return false
	}
	s.stopped = true
	s.running = false
	close(s.done)
	return true
}

// animate redraws the spinner at spinnerInterval until done is closed.
func (s *Spinner) animate() {
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()

			char := spinnerFrames[frame%len(spinnerFrames)]
			fmt.Fprint(s.output, padLine(fmt.Sprintf("\r%s %s", char, msg)))
		}
	}
}

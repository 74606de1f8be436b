package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/tweakguard/internal/archive"
	"github.com/blackwell-systems/tweakguard/internal/snapshots"
)

// writerIsTTY returns true if the given writer exposes an Fd() method
// (e.g. *os.File) and that fd is a terminal. Falls back to false for
// plain io.Writer values such as *bytes.Buffer.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// ProgressBar displays restore progress with the item being processed.
// Example: [=========>          ]  2/4 hosts file
type ProgressBar struct {
	total   int
	current int
	failed  int
	label   string
	width   int
	mu      sync.Mutex
	writer  io.Writer
}

// NewProgress creates a new progress bar for total items.
func NewProgress(total int) *ProgressBar {
	return &ProgressBar{
		total:  total,
		width:  30,
		writer: os.Stdout,
	}
}

// SetWriter sets the output writer (useful for testing).
func (p *ProgressBar) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = w
}

// Observe advances the bar for one restored entry. Its signature matches
// snapshots.ProgressFunc.
func (p *ProgressBar) Observe(done, total int, out snapshots.EntryOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = min(done, total)
	p.label = out.Description
	if out.Status == archive.StatusFailed {
		p.failed++
		// Failures are kept on their own line so they survive the redraw.
		if writerIsTTY(p.writer) {
			fmt.Fprintf(p.writer, "\r\033[K")
		}
		fmt.Fprintf(p.writer, "%s %s: %s\n", colorize(colorRed, "✗"), out.Description, out.Detail)
	}
	p.render()
}

// Failed returns how many observed entries failed.
func (p *ProgressBar) Failed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}

// Finish completes the progress bar and moves to a new line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writerIsTTY(p.writer) {
		p.label = "done"
		p.current = p.total
		p.render()
		fmt.Fprintln(p.writer)
	}
}

// render draws the bar (must be called with lock held). Non-TTY writers
// only get one line per completed item.
func (p *ProgressBar) render() {
	filled := 0
	if p.total > 0 {
		filled = (p.current * p.width) / p.total
	}

	var bar strings.Builder
	bar.WriteString("[")
	for i := 0; i < p.width; i++ {
		switch {
		case i < filled-1:
			bar.WriteString("=")
		case i == filled-1:
			bar.WriteString(">")
		default:
			bar.WriteString(" ")
		}
	}
	bar.WriteString("]")

	counter := fmt.Sprintf("%*d/%d", len(fmt.Sprint(p.total)), p.current, p.total)
	if writerIsTTY(p.writer) {
		fmt.Fprintf(p.writer, "\r\033[K%s %s %s", bar.String(), counter, truncate(p.label, 40))
		return
	}
	fmt.Fprintf(p.writer, "%s %s\n", counter, p.label)
}

// Spinner displays an animated spinner with a message and elapsed time.
// Example: |  Capturing startup items (3s)
type Spinner struct {
	message string
	running bool
	chars   []string
	mu      sync.Mutex
	writer  io.Writer
	stop    chan struct{}
	started time.Time
}

// NewSpinner creates a new spinner with a message.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		chars:   []string{"|", "/", "-", "\\"},
		writer:  os.Stdout,
	}
}

// SetWriter sets the output writer (useful for testing).
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start begins the spinner animation. On a non-TTY writer the message is
// printed once instead.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.started = time.Now()

	if !writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "%s...\n", s.message)
		return
	}

	s.stop = make(chan struct{})
	go s.spin(s.stop)
}

func (s *Spinner) spin(stop <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	idx := 0
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if !s.running {
				s.mu.Unlock()
				return
			}
			elapsed := int(time.Since(s.started).Seconds())
			fmt.Fprintf(s.writer, "\r%s  %s (%ds)", s.chars[idx], s.message, elapsed)
			idx = (idx + 1) % len(s.chars)
			s.mu.Unlock()
		case <-stop:
			return
		}
	}
}

// UpdateMessage updates the spinner message while it's running.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
		fmt.Fprintf(s.writer, "\r\033[K")
	}
}

// StopWithMessage stops the spinner and displays a final message.
func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.writer, message)
}

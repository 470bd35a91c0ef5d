// Package progress reports how far a dump has been read.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jsnap/pkg/utils"
)

// Reporter receives byte counts while a dump is consumed.
type Reporter interface {
	// Start announces the total size. total < 0 means unknown.
	Start(total int64)
	// Add records n more bytes read.
	Add(n int64)
	// Finish draws the final state.
	Finish()
}

// Nop discards all progress.
type Nop struct{}

func (Nop) Start(int64) {}
func (Nop) Add(int64)   {}
func (Nop) Finish()     {}

// DefaultInterval is the minimum time between two redraws.
const DefaultInterval = 100 * time.Millisecond

var labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4682B4")).Bold(true)

// Bar draws a single-line progress bar on a terminal.
type Bar struct {
	mu       sync.Mutex
	out      io.Writer
	label    string
	model    progress.Model
	clock    utils.Clock
	interval time.Duration

	total    int64
	current  int64
	lastDraw time.Time
	finished bool
}

// Option configures a Bar.
type Option func(*Bar)

// WithClock replaces the clock used for throttling.
func WithClock(c utils.Clock) Option {
	return func(b *Bar) { b.clock = c }
}

// WithInterval sets the minimum time between redraws.
func WithInterval(d time.Duration) Option {
	return func(b *Bar) { b.interval = d }
}

// WithWidth sets the width of the bar itself, excluding the label.
func WithWidth(w int) Option {
	return func(b *Bar) { b.model.Width = w }
}

// NewBar creates a bar writing to out.
func NewBar(out io.Writer, label string, opts ...Option) *Bar {
	b := &Bar{
		out:      out,
		label:    label,
		model:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		clock:    utils.NewRealClock(),
		interval: DefaultInterval,
		total:    -1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bar) Start(total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total = total
	b.current = 0
	b.finished = false
	b.draw()
}

func (b *Bar) Add(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return
	}
	b.current += n
	if b.clock.Since(b.lastDraw) >= b.interval {
		b.draw()
	}
}

func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return
	}
	b.finished = true
	b.draw()
	fmt.Fprintln(b.out)
}

// Current returns the bytes reported so far.
func (b *Bar) Current() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *Bar) draw() {
	b.lastDraw = b.clock.Now()
	fmt.Fprintf(b.out, "\r%s", b.line())
}

func (b *Bar) line() string {
	label := labelStyle.Render(b.label)
	if b.total <= 0 {
		return fmt.Sprintf("%s %s", label, humanize.Bytes(uint64(b.current)))
	}
	return fmt.Sprintf("%s %s %s / %s", label, b.model.ViewAs(b.fraction()),
		humanize.Bytes(uint64(b.current)), humanize.Bytes(uint64(b.total)))
}

func (b *Bar) fraction() float64 {
	f := float64(b.current) / float64(b.total)
	if f > 1 {
		return 1
	}
	return f
}

package utils

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase is one timed step.
type Phase struct {
	Name     string
	Start    time.Time
	Duration time.Duration
	done     bool
}

// PhaseTimer stops a phase started with Timer.Start. It is meant for defer.
type PhaseTimer struct {
	timer *Timer
	name  string
}

// Stop records the phase duration. Only the first call has effect.
func (pt *PhaseTimer) Stop() time.Duration {
	return pt.timer.stop(pt.name)
}

// Timer records named phases in the order they were started and reports
// them through a Logger.
type Timer struct {
	mu      sync.Mutex
	name    string
	start   time.Time
	phases  map[string]*Phase
	order   []string
	logger  Logger
	enabled bool
	clock   Clock
}

// TimerOption configures a Timer instance.
type TimerOption func(*Timer)

// WithLogger sets the logger PrintSummary writes to.
func WithLogger(logger Logger) TimerOption {
	return func(t *Timer) {
		t.logger = logger
	}
}

// WithEnabled turns recording on or off. A disabled timer does nothing.
func WithEnabled(enabled bool) TimerOption {
	return func(t *Timer) {
		t.enabled = enabled
	}
}

// WithClock sets a custom clock.
func WithClock(clock Clock) TimerOption {
	return func(t *Timer) {
		t.clock = clock
	}
}

// NewTimer creates a new Timer with the given name and options.
func NewTimer(name string, opts ...TimerOption) *Timer {
	t := &Timer{
		name:    name,
		phases:  make(map[string]*Phase),
		enabled: true,
		clock:   NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.start = t.clock.Now()
	return t
}

// Start starts timing a phase. Starting a name twice restarts it.
func (t *Timer) Start(name string) *PhaseTimer {
	pt := &PhaseTimer{timer: t, name: name}
	if !t.enabled {
		return pt
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.phases[name]; !ok {
		t.order = append(t.order, name)
	}
	t.phases[name] = &Phase{Name: name, Start: t.clock.Now()}
	return pt
}

func (t *Timer) stop(name string) time.Duration {
	if !t.enabled {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	phase, ok := t.phases[name]
	if !ok {
		return 0
	}
	if !phase.done {
		phase.Duration = t.clock.Since(phase.Start)
		phase.done = true
	}
	return phase.Duration
}

// TimeFunc times fn as a phase.
func (t *Timer) TimeFunc(name string, fn func()) time.Duration {
	pt := t.Start(name)
	fn()
	return pt.Stop()
}

// TimeFuncWithError times fn as a phase and returns its error.
func (t *Timer) TimeFuncWithError(name string, fn func() error) (time.Duration, error) {
	pt := t.Start(name)
	err := fn()
	return pt.Stop(), err
}

// Phases returns copies of all phases in start order.
func (t *Timer) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Phase, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, *t.phases[name])
	}
	return out
}

// Total returns the time since the timer was created.
func (t *Timer) Total() time.Duration {
	return t.clock.Since(t.start)
}

// Summary renders all phases, one per line.
func (t *Timer) Summary() string {
	if !t.enabled {
		return ""
	}
	var sb strings.Builder
	for _, line := range t.lines() {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// PrintSummary writes the summary to the timer's logger at debug level.
func (t *Timer) PrintSummary() {
	if !t.enabled || t.logger == nil {
		return
	}
	for _, line := range t.lines() {
		t.logger.Debug("%s", line)
	}
}

func (t *Timer) lines() []string {
	phases := t.Phases()
	lines := make([]string, 0, len(phases)+2)
	lines = append(lines, fmt.Sprintf("=== %s timing ===", t.name))
	for i, p := range phases {
		lines = append(lines, fmt.Sprintf("%d. %s: %v", i+1, p.Name, p.Duration))
	}
	lines = append(lines, fmt.Sprintf("Total: %v", t.Total()))
	return lines
}

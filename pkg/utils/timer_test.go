package utils

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_Phases(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	timer := NewTimer("parse", WithClock(clock))

	pt := timer.Start("header")
	clock.Advance(10 * time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, pt.Stop())

	timer.TimeFunc("records", func() {
		clock.Advance(2 * time.Second)
	})

	phases := timer.Phases()
	require.Len(t, phases, 2)
	assert.Equal(t, "header", phases[0].Name)
	assert.Equal(t, 10*time.Millisecond, phases[0].Duration)
	assert.Equal(t, "records", phases[1].Name)
	assert.Equal(t, 2*time.Second, phases[1].Duration)
	assert.Equal(t, 2010*time.Millisecond, timer.Total())
}

func TestTimer_StopIsIdempotent(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	timer := NewTimer("x", WithClock(clock))

	pt := timer.Start("phase")
	clock.Advance(time.Second)
	first := pt.Stop()
	clock.Advance(time.Second)

	assert.Equal(t, first, pt.Stop())
}

func TestTimer_TimeFuncWithError(t *testing.T) {
	timer := NewTimer("x", WithClock(NewMockClock(time.Unix(0, 0))))
	want := errors.New("boom")

	_, err := timer.TimeFuncWithError("failing", func() error { return want })

	assert.ErrorIs(t, err, want)
	assert.Len(t, timer.Phases(), 1)
}

func TestTimer_Disabled(t *testing.T) {
	timer := NewTimer("x", WithEnabled(false))

	assert.Zero(t, timer.TimeFunc("phase", func() {}))
	assert.Empty(t, timer.Phases())
	assert.Empty(t, timer.Summary())
}

func TestTimer_SummaryAndPrint(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	buf := &bytes.Buffer{}
	logger := NewDefaultLogger(LevelDebug, buf)
	timer := NewTimer("HPROF Parse", WithClock(clock), WithLogger(logger))

	timer.TimeFunc("Decode records", func() { clock.Advance(time.Second) })

	summary := timer.Summary()
	assert.True(t, strings.HasPrefix(summary, "=== HPROF Parse timing ===\n"))
	assert.Contains(t, summary, "1. Decode records: 1s")
	assert.Contains(t, summary, "Total: 1s")

	timer.PrintSummary()
	assert.Contains(t, buf.String(), "[DEBUG] 1. Decode records: 1s")
}

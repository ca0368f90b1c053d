package progress

import (
	"io"
	"sync"
	"time"
)

// Tracker turns raw counters into States with speed and a non-decreasing
// Processed value, and forwards them to a Sink.
type Tracker struct {
	mu    sync.Mutex
	sink  Sink
	state State
	now   func() time.Time
}

func NewTracker(sink Sink, stage, label string, unit Unit, total float64) *Tracker {
	t := &Tracker{sink: OrDiscard(sink), now: time.Now}
	start := t.now()
	t.state = State{
		Stage:     stage,
		Label:     label,
		Unit:      unit,
		Total:     total,
		StartTime: start,
		LastEmit:  start,
	}
	return t
}

// SetTotal updates the denominator, e.g. once Content-Length is known.
func (t *Tracker) SetTotal(total float64) {
	t.mu.Lock()
	t.state.Total = total
	t.mu.Unlock()
}

// Update records processed units and reports the resulting state.
func (t *Tracker) Update(processed float64) State {
	t.mu.Lock()
	if processed > t.state.Processed {
		t.state.Processed = processed
	}
	now := t.now()
	t.state.LastEmit = now
	if el := now.Sub(t.state.StartTime).Seconds(); el > 0 {
		t.state.Speed = t.state.Processed / el
	}
	st := t.state
	t.mu.Unlock()

	t.sink.Report(st)
	return st
}

// Add records n more processed units.
func (t *Tracker) Add(n float64) State {
	t.mu.Lock()
	p := t.state.Processed + n
	t.mu.Unlock()
	return t.Update(p)
}

// Start emits the initial zero state.
func (t *Tracker) Start() State { return t.Update(0) }

// Snapshot returns the last state without reporting it.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// CountingReader reports every chunk read through it to a Tracker.
type CountingReader struct {
	R       io.Reader
	Tracker *Tracker
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	if n > 0 {
		c.Tracker.Add(float64(n))
	}
	return n, err
}

// Package progress carries incremental progress of downloads, merges and
// uploads to a user-facing surface.
package progress

import (
	"time"
)

type Unit int

const (
	Bytes Unit = iota
	Seconds
)

func (u Unit) String() string {
	if u == Seconds {
		return "seconds"
	}
	return "bytes"
}

// State is one progress observation. Total <= 0 means the size of the work
// is unknown and only Processed is meaningful.
type State struct {
	Stage     string
	Label     string // file name or strategy shown next to the bar
	Processed float64
	Total     float64
	Unit      Unit
	Speed     float64 // units per wall-clock second
	StartTime time.Time
	LastEmit  time.Time
}

// Fraction returns completion in [0,1]; ok is false when Total is unknown.
func (s State) Fraction() (float64, bool) {
	if s.Total <= 0 {
		return 0, false
	}
	f := s.Processed / s.Total
	if f > 1 {
		f = 1
	}
	if f < 0 {
		f = 0
	}
	return f, true
}

// ETA returns the remaining time; ok is false when speed or total is unknown.
func (s State) ETA() (time.Duration, bool) {
	if s.Total <= 0 || s.Speed <= 0 {
		return 0, false
	}
	remaining := s.Total - s.Processed
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(remaining / s.Speed * float64(time.Second)), true
}

func (s State) Elapsed() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	return s.LastEmit.Sub(s.StartTime)
}

// Sink receives progress reports. Implementations must be safe to call from
// the goroutine running the operation.
type Sink interface {
	Report(State)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(State)

func (f SinkFunc) Report(s State) { f(s) }

// Discard drops every report.
var Discard Sink = SinkFunc(func(State) {})

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

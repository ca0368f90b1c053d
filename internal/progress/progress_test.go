package progress

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct{ states []State }

func (r *recorder) Report(s State) { r.states = append(r.states, s) }

func fakeClock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func TestStateFractionAndETA(t *testing.T) {
	s := State{Processed: 25, Total: 100, Speed: 5}
	f, ok := s.Fraction()
	require.True(t, ok)
	assert.InDelta(t, 0.25, f, 1e-9)

	eta, ok := s.ETA()
	require.True(t, ok)
	assert.Equal(t, 15*time.Second, eta)
}

func TestStateZeroSpeedHasUnknownETA(t *testing.T) {
	_, ok := State{Processed: 0, Total: 10, Speed: 0}.ETA()
	assert.False(t, ok)
}

func TestStateIndeterminate(t *testing.T) {
	_, ok := State{Processed: 42}.Fraction()
	assert.False(t, ok)
	_, ok = State{Processed: 42, Speed: 3}.ETA()
	assert.False(t, ok)
}

func TestTrackerMonotonic(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec, "Downloading", "a.mp4", Bytes, 100)
	tr.state.StartTime = time.Unix(0, 0)
	tr.now = fakeClock(time.Unix(0, 0), time.Second)

	tr.Update(10)
	tr.Update(50)
	tr.Update(30) // out-of-order observation must not go backwards
	tr.Add(20)

	require.Len(t, rec.states, 4)
	for i := 1; i < len(rec.states); i++ {
		assert.GreaterOrEqual(t, rec.states[i].Processed, rec.states[i-1].Processed)
	}
	assert.Equal(t, float64(70), rec.states[3].Processed)
	assert.Greater(t, rec.states[3].Speed, 0.0)
}

func TestCountingReader(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec, "Uploading", "", Bytes, 11)
	r := &CountingReader{R: strings.NewReader("hello world"), Tracker: tr}

	buf := make([]byte, 4)
	for {
		if _, err := r.Read(buf); err != nil {
			break
		}
	}
	assert.Equal(t, float64(11), tr.Snapshot().Processed)
}

func TestThrottleAllowsOncePerInterval(t *testing.T) {
	th := NewThrottle(4 * time.Second)
	t0 := time.Unix(1000, 0)

	assert.True(t, th.AllowAt("chat_1", t0))
	assert.False(t, th.AllowAt("chat_1", t0.Add(time.Second)))
	assert.False(t, th.AllowAt("chat_1", t0.Add(3*time.Second)))
	assert.True(t, th.AllowAt("chat_1", t0.Add(4*time.Second)))

	// independent keys
	assert.True(t, th.AllowAt("chat_2", t0.Add(time.Second)))
}

func TestThrottledSink(t *testing.T) {
	rec := &recorder{}
	sink := NewThrottle(time.Hour).Throttled("k", rec)
	sink.Report(State{Processed: 1})
	sink.Report(State{Processed: 2})
	require.Len(t, rec.states, 1)
	assert.Equal(t, float64(1), rec.states[0].Processed)
}

func TestRender(t *testing.T) {
	start := time.Unix(0, 0)
	out := Render(State{
		Stage: "Downloading", Label: "a.mp4",
		Processed: 512 * 1024, Total: 1024 * 1024, Unit: Bytes,
		Speed: 256 * 1024, StartTime: start, LastEmit: start.Add(2 * time.Second),
	})
	assert.Contains(t, out, "Downloading: a.mp4")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "512.00 KiB of 1.00 MiB")
	assert.Contains(t, out, "ETA: 2s")
	assert.Contains(t, out, "Elapsed: 2s")

	out = Render(State{Stage: "Merging", Unit: Seconds})
	assert.Contains(t, out, "ETA: unknown")
}

func TestBarAndHumanBytes(t *testing.T) {
	assert.Equal(t, strings.Repeat("░", 20), Bar(0))
	assert.Equal(t, strings.Repeat("█", 10)+strings.Repeat("░", 10), Bar(0.5))
	assert.Equal(t, strings.Repeat("█", 20), Bar(2))
	assert.Equal(t, "512 B", HumanBytes(512))
	assert.Equal(t, "1.50 GiB", HumanBytes(1.5*1024*1024*1024))
	assert.Equal(t, "1h02m03s", HumanDuration(time.Hour+2*time.Minute+3*time.Second))
}

package progress

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	barLength      = 20
	finishedCell   = "█"
	unfinishedCell = "░"
)

// Bar renders a fixed-width bar for fraction f.
func Bar(f float64) string {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	done := int(math.Floor(f * barLength))
	return strings.Repeat(finishedCell, done) + strings.Repeat(unfinishedCell, barLength-done)
}

// HumanBytes formats n with binary prefixes.
func HumanBytes(n float64) string {
	if n < 1024 {
		return fmt.Sprintf("%.0f B", n)
	}
	units := []string{"KiB", "MiB", "GiB", "TiB"}
	v := n
	i := -1
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", v, units[i])
}

// HumanDuration formats d as 1h02m03s / 2m03s / 3s.
func HumanDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func amount(u Unit, v float64) string {
	if u == Seconds {
		return HumanDuration(time.Duration(v * float64(time.Second)))
	}
	return HumanBytes(v)
}

// Render produces the multi-line status text for s.
func Render(s State) string {
	var b strings.Builder
	b.WriteString(s.Stage)
	if s.Label != "" {
		b.WriteString(": ")
		b.WriteString(s.Label)
	}
	b.WriteByte('\n')

	if f, ok := s.Fraction(); ok {
		fmt.Fprintf(&b, "[%s] %.1f%%\n", Bar(f), f*100)
		fmt.Fprintf(&b, "%s of %s\n", amount(s.Unit, s.Processed), amount(s.Unit, s.Total))
	} else {
		fmt.Fprintf(&b, "%s done\n", amount(s.Unit, s.Processed))
	}

	switch s.Unit {
	case Seconds:
		if s.Speed > 0 {
			fmt.Fprintf(&b, "Speed: %.2fx", s.Speed)
		} else {
			b.WriteString("Speed: -")
		}
	default:
		fmt.Fprintf(&b, "Speed: %s/s", HumanBytes(s.Speed))
	}

	if eta, ok := s.ETA(); ok {
		fmt.Fprintf(&b, " | ETA: %s", HumanDuration(eta))
	} else {
		b.WriteString(" | ETA: unknown")
	}
	fmt.Fprintf(&b, " | Elapsed: %s", HumanDuration(s.Elapsed()))
	return b.String()
}

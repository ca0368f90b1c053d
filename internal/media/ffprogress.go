package media

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// ffProgress is one batch of ffmpeg "-progress" key=value lines.
type ffProgress struct {
	OutTime time.Duration
	Speed   float64
	End     bool
}

// parseProgress reads ffmpeg -progress output until EOF and calls fn at
// every "progress=" batch marker.
func parseProgress(r io.Reader, fn func(ffProgress)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		batch   ffProgress
		haveUs  bool
		lastOut time.Duration
	)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				batch.OutTime = time.Duration(us) * time.Microsecond
				haveUs = true
			}
		case "out_time_ms":
			// ffmpeg reports microseconds under this key as well
			if haveUs {
				continue
			}
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				batch.OutTime = time.Duration(us) * time.Microsecond
			}
		case "out_time":
			if batch.OutTime == 0 {
				if d, ok := parseClock(value); ok {
					batch.OutTime = d
				}
			}
		case "speed":
			v := strings.TrimSuffix(strings.TrimSpace(value), "x")
			if s, err := strconv.ParseFloat(v, 64); err == nil {
				batch.Speed = s
			}
		case "progress":
			batch.End = value == "end"
			if batch.OutTime < lastOut {
				batch.OutTime = lastOut
			}
			lastOut = batch.OutTime
			fn(batch)
			batch, haveUs = ffProgress{}, false
		}
	}
	return sc.Err()
}

// parseClock parses HH:MM:SS.micro.
func parseClock(s string) (time.Duration, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || sec < 0 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec*float64(time.Second)), true
}

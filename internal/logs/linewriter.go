package logx

import (
	"bufio"
	"io"

	"github.com/rs/zerolog"
)

// LineWriter turns a subprocess stream into per-line log events.
// Lines accepted by Filter are handed to it instead of being logged.
type LineWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
	Filter func(line string) bool
}

func NewLineWriter(logger zerolog.Logger, tool string, level zerolog.Level) *LineWriter {
	return &LineWriter{logger: logger.With().Str("tool", tool).Logger(), level: level}
}

// Pipe consumes r until EOF.
func (lw *LineWriter) Pipe(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if lw.Filter != nil && lw.Filter(line) {
			continue
		}
		lw.logger.WithLevel(lw.level).Msg(line)
	}
}

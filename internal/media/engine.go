// Package media wraps ffmpeg and ffprobe: probing, the two merge strategies,
// track muxing and thumbnails.
package media

import (
	"time"
)

type Config struct {
	FFmpegPath   string
	FFprobePath  string
	VideoCodec   string
	CRF          int
	Preset       string
	AudioCodec   string
	AudioBitrate string
	ProbeTimeout time.Duration
	Timeout      time.Duration // ceiling for one ffmpeg run, 0 = none
}

func DefaultConfig() Config {
	return Config{
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		VideoCodec:   "libx264",
		CRF:          23,
		Preset:       "fast",
		AudioCodec:   "aac",
		AudioBitrate: "192k",
		ProbeTimeout: 30 * time.Second,
		Timeout:      30 * time.Minute,
	}
}

// Engine runs ffmpeg jobs with one configuration.
type Engine struct {
	cfg    Config
	prober *Prober
}

func NewEngine(cfg Config) *Engine {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	return &Engine{cfg: cfg, prober: NewProber(cfg.FFprobePath, cfg.ProbeTimeout)}
}

func (e *Engine) Prober() *Prober { return e.prober }

func even(x int) int {
	if x%2 == 0 {
		return x
	}
	return x - 1
}

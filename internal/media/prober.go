package media

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"
)

// Info is the subset of ffprobe output the merge engine needs.
type Info struct {
	Duration   float64 // seconds
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
	HasVideo   bool
	HasAudio   bool
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// Prober wraps ffprobe.
type Prober struct {
	bin     string
	timeout time.Duration
}

func NewProber(bin string, timeout time.Duration) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{bin: bin, timeout: timeout}
}

// Probe describes a media file that must contain a video stream.
func (p *Prober) Probe(ctx context.Context, path string) (Info, error) {
	info, err := p.ProbeAny(ctx, path)
	if err != nil {
		return Info{}, err
	}
	if !info.HasVideo {
		return Info{}, fmt.Errorf("%w: %s: no video stream", ErrProbeFailed, filepath.Base(path))
	}
	return info, nil
}

// ProbeAny describes any media file, including audio-only ones.
func (p *Prober) ProbeAny(ctx context.Context, path string) (Info, error) {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	cmd := command(ctx, p.bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Info{}, fmt.Errorf("%w: %s: timed out", ErrProbeFailed, filepath.Base(path))
		}
		return Info{}, fmt.Errorf("%w: %s: %v", ErrProbeFailed, filepath.Base(path), err)
	}
	info, err := parseProbe(out)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrProbeFailed, filepath.Base(path), err)
	}
	return info, nil
}

func parseProbe(raw []byte) (Info, error) {
	var po probeOutput
	if err := json.Unmarshal(raw, &po); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var info Info
	info.Duration = parseSeconds(po.Format.Duration)
	var streamDur float64
	for _, s := range po.Streams {
		switch s.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.VideoCodec = s.CodecName
			info.Width, info.Height = s.Width, s.Height
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.AudioCodec = s.CodecName
		default:
			continue
		}
		if d := parseSeconds(s.Duration); d > streamDur {
			streamDur = d
		}
	}
	if info.Duration <= 0 {
		info.Duration = streamDur
	}
	return info, nil
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

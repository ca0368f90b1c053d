package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbe(t *testing.T) {
	info, err := parseProbe([]byte(probeH264))
	require.NoError(t, err)
	assert.Equal(t, Info{
		Duration: 2, Width: 640, Height: 360,
		VideoCodec: "h264", AudioCodec: "aac",
		HasVideo: true, HasAudio: true,
	}, info)
}

func TestParseProbeStreamDurationFallback(t *testing.T) {
	raw := `{"format":{},"streams":[
	 {"codec_type":"video","codec_name":"vp9","width":320,"height":240,"duration":"4.5"},
	 {"codec_type":"audio","codec_name":"opus","duration":"4.8"},
	 {"codec_type":"data","duration":"99"}]}`
	info, err := parseProbe([]byte(raw))
	require.NoError(t, err)
	assert.InDelta(t, 4.8, info.Duration, 1e-9)
}

func TestProbeFailures(t *testing.T) {
	dir := t.TempDir()
	p := NewProber(fakeProbe(t, dir), time.Second)
	ctx := context.Background()

	_, err := p.Probe(ctx, dir+"/missing.mp4")
	assert.ErrorIs(t, err, ErrProbeFailed)

	garbage := mediaFile(t, dir, "garbage.mp4", "not json")
	_, err = p.Probe(ctx, garbage)
	assert.ErrorIs(t, err, ErrProbeFailed)

	audio := mediaFile(t, dir, "a.m4a", `{"format":{"duration":"1"},"streams":[{"codec_type":"audio","codec_name":"aac"}]}`)
	_, err = p.Probe(ctx, audio)
	assert.ErrorIs(t, err, ErrProbeFailed)
	assert.Contains(t, err.Error(), "no video stream")

	info, err := p.ProbeAny(ctx, audio)
	require.NoError(t, err)
	assert.True(t, info.HasAudio)
	assert.False(t, info.HasVideo)
}

func TestProbeTimeout(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "ffprobe", "exec sleep 5\n")
	p := NewProber(bin, 100*time.Millisecond)

	start := time.Now()
	_, err := p.Probe(context.Background(), "x.mp4")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProbeFailed))
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

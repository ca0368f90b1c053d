package media

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgress(t *testing.T) {
	in := strings.Join([]string{
		"frame=10",
		"out_time_us=1500000",
		"out_time_ms=1500000",
		"out_time=00:00:01.500000",
		"speed=1.5x",
		"progress=continue",
		"out_time_ms=2500000",
		"speed=N/A",
		"progress=continue",
		"out_time=00:01:02.250000",
		"progress=continue",
		"out_time_us=1000",
		"progress=end",
	}, "\n")

	var got []ffProgress
	require.NoError(t, parseProgress(strings.NewReader(in), func(p ffProgress) { got = append(got, p) }))
	require.Len(t, got, 4)

	assert.Equal(t, 1500*time.Millisecond, got[0].OutTime)
	assert.Equal(t, 1.5, got[0].Speed)
	assert.Equal(t, 2500*time.Millisecond, got[1].OutTime)
	assert.Zero(t, got[1].Speed)
	assert.Equal(t, 62250*time.Millisecond, got[2].OutTime)
	// never goes backwards
	assert.Equal(t, 62250*time.Millisecond, got[3].OutTime)
	assert.True(t, got[3].End)
}

func TestBuildFilterGraph(t *testing.T) {
	g := buildFilterGraph([]Info{
		{Width: 1281, Height: 721, HasAudio: true, Duration: 2},
		{Width: 640, Height: 360, Duration: 1.5},
	})

	assert.Equal(t, []string{"-f", "lavfi", "-t", "1.500", "-i", "anullsrc=channel_layout=stereo:sample_rate=48000"}, g.extraInputs)
	assert.Contains(t, g.expr, "[0:v:0]scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720")
	assert.Contains(t, g.expr, "[1:v:0]scale=1280:720")
	assert.Contains(t, g.expr, "[0:a:0]aresample=48000")
	assert.Contains(t, g.expr, "[2:a]aresample=48000")
	assert.True(t, strings.HasSuffix(g.expr, "[v0][a0][v1][a1]concat=n=2:v=1:a=1[outv][outa]"))
}

func TestRobustArgsEncoderFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CRF = 0
	cfg.Preset = ""
	e := NewEngine(cfg)
	infos := []Info{{Width: 2, Height: 2, HasAudio: true, Duration: 1}, {Width: 2, Height: 2, HasAudio: true, Duration: 1}}

	args := strings.Join(e.robustArgs([]string{"a", "b"}, infos, "out.mkv"), " ")
	assert.NotContains(t, args, "-crf")
	assert.NotContains(t, args, "-preset")
	assert.NotContains(t, args, "faststart")
	assert.Contains(t, args, "-c:v libx264")
	assert.Contains(t, args, "-b:a 192k")
}

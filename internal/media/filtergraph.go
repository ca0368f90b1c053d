package media

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	normSampleRate = 48000
	fallbackWidth  = 1280
	fallbackHeight = 720
)

// filterGraph is the -filter_complex expression plus any generated inputs
// (silent audio for inputs without an audio stream).
type filterGraph struct {
	extraInputs []string
	expr        string
}

// buildFilterGraph normalises every input to the first input's resolution and
// to stereo audio, then concatenates them in order into [outv][outa].
func buildFilterGraph(infos []Info) filterGraph {
	w, h := even(infos[0].Width), even(infos[0].Height)
	if w <= 0 || h <= 0 {
		w, h = fallbackWidth, fallbackHeight
	}

	var (
		g      filterGraph
		chains []string
		labels strings.Builder
	)
	next := len(infos)
	for i, info := range infos {
		chains = append(chains, fmt.Sprintf(
			"[%d:v:0]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,format=yuv420p[v%d]",
			i, w, h, w, h, i))

		src := fmt.Sprintf("[%d:a:0]", i)
		if !info.HasAudio {
			g.extraInputs = append(g.extraInputs,
				"-f", "lavfi",
				"-t", strconv.FormatFloat(info.Duration, 'f', 3, 64),
				"-i", fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d", normSampleRate))
			src = fmt.Sprintf("[%d:a]", next)
			next++
		}
		chains = append(chains, fmt.Sprintf(
			"%saresample=%d,aformat=sample_fmts=fltp:channel_layouts=stereo[a%d]",
			src, normSampleRate, i))

		fmt.Fprintf(&labels, "[v%d][a%d]", i, i)
	}
	chains = append(chains, fmt.Sprintf("%sconcat=n=%d:v=1:a=1[outv][outa]", labels.String(), len(infos)))
	g.expr = strings.Join(chains, ";")
	return g
}

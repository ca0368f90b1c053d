package media

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// Thumbnail writes one JPEG frame of video taken at `at` seconds, or at the
// middle of the file when at < 0.
func (e *Engine) Thumbnail(ctx context.Context, video string, at float64, output string) error {
	if at < 0 {
		info, err := e.prober.Probe(ctx, video)
		if err != nil {
			return err
		}
		at = info.Duration / 2
	}

	ctx, cancel := withTimeout(ctx, e.cfg.ProbeTimeout)
	defer cancel()

	diag, err := runTool(ctx, e.cfg.FFmpegPath,
		"-hide_banner", "-y",
		"-ss", strconv.FormatFloat(at, 'f', 3, 64),
		"-i", video,
		"-frames:v", "1",
		"-vf", "scale=320:-2",
		"-q:v", "3",
		output,
	)
	if err == nil {
		err = checkOutput(output)
	}
	if err != nil {
		_ = os.Remove(output)
		return fmt.Errorf("thumbnail: %w: %s", err, lastLine(diag))
	}
	return nil
}

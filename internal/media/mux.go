package media

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/wapuda/mergebot/internal/progress"
)

// MuxAudio copies the video stream of video and adds every audio file as an
// extra track. Output should be a Matroska file.
func (e *Engine) MuxAudio(ctx context.Context, video string, audios []string, output string, sink progress.Sink) error {
	return e.mux(ctx, video, audios, "a", output, sink)
}

// MuxSubtitles copies video and attaches every subtitle file as a track.
func (e *Engine) MuxSubtitles(ctx context.Context, video string, subs []string, output string, sink progress.Sink) error {
	return e.mux(ctx, video, subs, "s", output, sink)
}

func (e *Engine) mux(ctx context.Context, video string, tracks []string, kind, output string, sink progress.Sink) error {
	if len(tracks) == 0 {
		return ErrInsufficientInputs
	}
	if _, err := e.prober.Probe(ctx, video); err != nil {
		return err
	}

	args := []string{"-hide_banner", "-y", "-i", video}
	for _, t := range tracks {
		args = append(args, "-i", t)
	}
	args = append(args, "-map", "0")
	for i := range tracks {
		args = append(args, "-map", strconv.Itoa(i+1)+":"+kind)
	}
	args = append(args, "-c", "copy", output)

	tr := progress.NewTracker(sink, "Muxing", "", progress.Seconds, 0)
	tr.Start()

	ctx, cancel := withTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	diag, err := runTool(ctx, e.cfg.FFmpegPath, args...)
	if err == nil {
		err = checkOutput(output)
	}
	if err != nil {
		_ = os.Remove(output)
		if ctx.Err() == context.Canceled {
			return ctx.Err()
		}
		return &MergeError{Strategy: "mux", ExitCode: exitCode(err), Diagnostic: lastLine(diag), Err: fmt.Errorf("%w: mux", ErrRobustMergeFailed)}
	}
	tr.SetTotal(1)
	tr.Update(1)
	return nil
}

package media

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/wapuda/mergebot/internal/progress"
)

// FastMerge concatenates inputs with the concat demuxer and stream copy.
// Any failure leaves no output behind and wraps ErrFastMergeIncompatible,
// unless ctx was cancelled.
func (e *Engine) FastMerge(ctx context.Context, inputs []string, output string, sink progress.Sink) error {
	if len(inputs) < 2 {
		return ErrInsufficientInputs
	}
	if err := e.checkCompatible(ctx, inputs); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	list, err := writeConcatList(filepath.Dir(output), inputs)
	if err != nil {
		return err
	}
	defer os.Remove(list)

	tr := progress.NewTracker(sink, "Fast merge", filepath.Base(output), progress.Seconds, 0)
	tr.Start()

	ctx, cancel := withTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	diag, err := runTool(ctx, e.cfg.FFmpegPath,
		"-hide_banner", "-y",
		"-f", "concat", "-safe", "0",
		"-i", list,
		"-map", "0",
		"-c", "copy",
		output,
	)
	if err == nil {
		err = checkOutput(output)
	}
	if err != nil {
		_ = os.Remove(output)
		if ctx.Err() != nil && ctx.Err() != context.DeadlineExceeded {
			return ctx.Err()
		}
		return &MergeError{Strategy: StrategyFast, ExitCode: exitCode(err), Diagnostic: lastLine(diag), Err: ErrFastMergeIncompatible}
	}
	tr.SetTotal(1)
	tr.Update(1)
	return nil
}

// checkCompatible compares codecs and resolution of every input with the first.
func (e *Engine) checkCompatible(ctx context.Context, inputs []string) error {
	ref, err := e.prober.Probe(ctx, inputs[0])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFastMergeIncompatible, err)
	}
	for _, in := range inputs[1:] {
		info, err := e.prober.Probe(ctx, in)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFastMergeIncompatible, err)
		}
		switch {
		case info.VideoCodec != ref.VideoCodec:
			return fmt.Errorf("%w: video codec %s vs %s", ErrFastMergeIncompatible, info.VideoCodec, ref.VideoCodec)
		case info.AudioCodec != ref.AudioCodec:
			return fmt.Errorf("%w: audio codec %q vs %q", ErrFastMergeIncompatible, info.AudioCodec, ref.AudioCodec)
		case info.Width != ref.Width || info.Height != ref.Height:
			return fmt.Errorf("%w: resolution %dx%d vs %dx%d", ErrFastMergeIncompatible, info.Width, info.Height, ref.Width, ref.Height)
		}
	}
	return nil
}

// writeConcatList writes the concat demuxer list next to the output.
func writeConcatList(dir string, inputs []string) (string, error) {
	path := filepath.Join(dir, "concat_"+ulid.Make().String()+".txt")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create concat list: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			f.Close()
			os.Remove(path)
			return "", err
		}
		fmt.Fprintf(w, "file '%s'\n", quoteConcatPath(abs))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	return path, f.Close()
}

func quoteConcatPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}

package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wapuda/mergebot/internal/progress"
)

// RobustMerge re-encodes all inputs through a concat filter graph, reporting
// encoded seconds against the summed input duration.
func (e *Engine) RobustMerge(ctx context.Context, inputs []string, output string, sink progress.Sink) error {
	if len(inputs) < 2 {
		return ErrInsufficientInputs
	}

	infos := make([]Info, len(inputs))
	var total float64
	for i, in := range inputs {
		info, err := e.prober.Probe(ctx, in)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
		}
		infos[i] = info
		total += info.Duration
	}
	if total <= 0 {
		return fmt.Errorf("%w: %d inputs", ErrInvalidDuration, len(inputs))
	}

	args := e.robustArgs(inputs, infos, output)

	ctx, cancel := withTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	tail := newTail(diagnosticBytes)
	cmd := command(ctx, e.cfg.FFmpegPath, args...)
	cmd.Stderr = tail
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return &MergeError{Strategy: StrategyRobust, ExitCode: -1, Diagnostic: err.Error(), Err: ErrRobustMergeFailed}
	}

	tr := progress.NewTracker(sink, "Re-encoding", filepath.Base(output), progress.Seconds, total)
	tr.Start()
	_ = parseProgress(stdout, func(p ffProgress) {
		tr.Update(p.OutTime.Seconds())
	})

	err = cmd.Wait()
	if err == nil {
		err = checkOutput(output)
	}
	if err != nil {
		_ = os.Remove(output)
		if ctx.Err() != nil && ctx.Err() != context.DeadlineExceeded {
			return ctx.Err()
		}
		diag := tail.String()
		if diag == "" {
			diag = err.Error()
		}
		return &MergeError{Strategy: StrategyRobust, ExitCode: exitCode(err), Diagnostic: diag, Err: ErrRobustMergeFailed}
	}
	tr.Update(total)
	return nil
}

func (e *Engine) robustArgs(inputs []string, infos []Info, output string) []string {
	g := buildFilterGraph(infos)

	args := []string{"-hide_banner", "-y", "-progress", "pipe:1", "-nostats"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	args = append(args, g.extraInputs...)
	args = append(args,
		"-filter_complex", g.expr,
		"-map", "[outv]", "-map", "[outa]",
		"-c:v", e.cfg.VideoCodec,
	)
	if e.cfg.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(e.cfg.CRF))
	}
	if e.cfg.Preset != "" {
		args = append(args, "-preset", e.cfg.Preset)
	}
	args = append(args, "-c:a", e.cfg.AudioCodec)
	if e.cfg.AudioBitrate != "" {
		args = append(args, "-b:a", e.cfg.AudioBitrate)
	}
	switch strings.ToLower(filepath.Ext(output)) {
	case ".mp4", ".m4v", ".mov":
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, output)
}

package media

import (
	"context"
	"errors"
	"os"

	logx "github.com/wapuda/mergebot/internal/logs"
	"github.com/wapuda/mergebot/internal/progress"
)

type Strategy string

const (
	StrategyFast   Strategy = "fast"
	StrategyRobust Strategy = "robust"
)

// Mode restricts which strategies the orchestrator may use.
type Mode int

const (
	ModeAuto Mode = iota
	ModeFastOnly
	ModeRobustOnly
)

func (m Mode) String() string {
	switch m {
	case ModeFastOnly:
		return "fast"
	case ModeRobustOnly:
		return "robust"
	default:
		return "auto"
	}
}

// ParseMode maps a stored setting to a Mode; unknown values mean ModeAuto.
func ParseMode(s string) Mode {
	switch s {
	case "fast":
		return ModeFastOnly
	case "robust":
		return ModeRobustOnly
	default:
		return ModeAuto
	}
}

type MergeJob struct {
	Inputs []string
	Output string
	Mode   Mode
}

type Result struct {
	Output   string
	Strategy Strategy
	Attempts []Strategy
	FastErr  error // why the fast path was abandoned, nil if it succeeded or did not run
}

// Merger is one merge strategy.
type Merger interface {
	Merge(ctx context.Context, inputs []string, output string, sink progress.Sink) error
}

// MergerFunc adapts a function to Merger.
type MergerFunc func(ctx context.Context, inputs []string, output string, sink progress.Sink) error

func (f MergerFunc) Merge(ctx context.Context, inputs []string, output string, sink progress.Sink) error {
	return f(ctx, inputs, output, sink)
}

func (e *Engine) Fast() Merger   { return MergerFunc(e.FastMerge) }
func (e *Engine) Robust() Merger { return MergerFunc(e.RobustMerge) }

// Orchestrator tries the stream-copy merge first and falls back to
// re-encoding when it fails.
type Orchestrator struct {
	fast   Merger
	robust Merger
}

func NewOrchestrator(fast, robust Merger) *Orchestrator {
	return &Orchestrator{fast: fast, robust: robust}
}

// Merge runs the job. A cancelled ctx is returned as is and never triggers
// the fallback.
func (o *Orchestrator) Merge(ctx context.Context, job MergeJob, sink progress.Sink) (Result, error) {
	res := Result{Output: job.Output}
	if len(job.Inputs) < 2 {
		return res, ErrInsufficientInputs
	}
	logger := logx.FromCtx(ctx).With().Int("inputs", len(job.Inputs)).Str("mode", job.Mode.String()).Logger()

	if job.Mode != ModeRobustOnly {
		res.Attempts = append(res.Attempts, StrategyFast)
		err := o.fast.Merge(ctx, job.Inputs, job.Output, sink)
		if err == nil {
			res.Strategy = StrategyFast
			logger.Info().Str("strategy", string(StrategyFast)).Msg("merge done")
			return res, nil
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if isCancel(err) || job.Mode == ModeFastOnly {
			return res, err
		}
		res.FastErr = err
		_ = os.Remove(job.Output)
		logger.Warn().Err(err).Msg("fast merge failed, re-encoding")
	}

	res.Attempts = append(res.Attempts, StrategyRobust)
	if err := o.robust.Merge(ctx, job.Inputs, job.Output, sink); err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		logger.Error().Err(err).Msg("robust merge failed")
		return res, err
	}
	res.Strategy = StrategyRobust
	logger.Info().Str("strategy", string(StrategyRobust)).Msg("merge done")
	return res, nil
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}

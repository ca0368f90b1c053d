package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wapuda/mergebot/internal/progress"
)

type scripted struct {
	err   error
	write bool
	calls int
}

func (s *scripted) Merge(_ context.Context, _ []string, output string, _ progress.Sink) error {
	s.calls++
	if s.write {
		if err := os.WriteFile(output, []byte("partial"), 0o644); err != nil {
			return err
		}
	}
	return s.err
}

func TestOrchestratorFastSuccess(t *testing.T) {
	fast, robust := &scripted{}, &scripted{}
	o := NewOrchestrator(fast, robust)

	res, err := o.Merge(context.Background(), MergeJob{Inputs: []string{"a", "b"}, Output: "out"}, nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyFast, res.Strategy)
	assert.Equal(t, []Strategy{StrategyFast}, res.Attempts)
	assert.Zero(t, robust.calls)
}

func TestOrchestratorFallback(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")
	fast := &scripted{err: &MergeError{Strategy: StrategyFast, Err: ErrFastMergeIncompatible}, write: true}
	robust := &scripted{}
	o := NewOrchestrator(fast, robust)

	res, err := o.Merge(context.Background(), MergeJob{Inputs: []string{"a", "b"}, Output: out}, nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyRobust, res.Strategy)
	assert.Equal(t, 1, robust.calls)
	// partial fast output is cleared before re-encoding
	assert.NoFileExists(t, out)
}

func TestOrchestratorBothFail(t *testing.T) {
	robustErr := &MergeError{Strategy: StrategyRobust, Diagnostic: "boom", Err: ErrRobustMergeFailed}
	o := NewOrchestrator(&scripted{err: ErrFastMergeIncompatible}, &scripted{err: robustErr})

	res, err := o.Merge(context.Background(), MergeJob{Inputs: []string{"a", "b"}, Output: "out"}, nil)
	assert.ErrorIs(t, err, ErrRobustMergeFailed)
	assert.Equal(t, "boom", Diagnostic(err))
	assert.Equal(t, []Strategy{StrategyFast, StrategyRobust}, res.Attempts)
}

func TestOrchestratorInsufficientInputs(t *testing.T) {
	fast, robust := &scripted{}, &scripted{}
	o := NewOrchestrator(fast, robust)

	_, err := o.Merge(context.Background(), MergeJob{Inputs: []string{"a"}, Output: "out"}, nil)
	assert.ErrorIs(t, err, ErrInsufficientInputs)
	assert.Zero(t, fast.calls+robust.calls)
}

func TestOrchestratorCancelSkipsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	robust := &scripted{}
	fast := MergerFunc(func(ctx context.Context, _ []string, _ string, _ progress.Sink) error {
		cancel()
		return ctx.Err()
	})
	o := NewOrchestrator(fast, robust)

	_, err := o.Merge(ctx, MergeJob{Inputs: []string{"a", "b"}, Output: "out"}, nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, robust.calls)
}

func TestOrchestratorModes(t *testing.T) {
	fast, robust := &scripted{err: ErrFastMergeIncompatible}, &scripted{}
	o := NewOrchestrator(fast, robust)

	_, err := o.Merge(context.Background(), MergeJob{Inputs: []string{"a", "b"}, Output: "out", Mode: ModeFastOnly}, nil)
	assert.ErrorIs(t, err, ErrFastMergeIncompatible)
	assert.Zero(t, robust.calls)

	res, err := o.Merge(context.Background(), MergeJob{Inputs: []string{"a", "b"}, Output: "out", Mode: ModeRobustOnly}, nil)
	require.NoError(t, err)
	assert.Equal(t, []Strategy{StrategyRobust}, res.Attempts)
	assert.Equal(t, 1, fast.calls)

	assert.Equal(t, ModeFastOnly, ParseMode("fast"))
	assert.Equal(t, ModeAuto, ParseMode("whatever"))
}

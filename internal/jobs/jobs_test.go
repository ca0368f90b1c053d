package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func task(t *testing.T, typ string, v any) *asynq.Task {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return asynq.NewTask(typ, b)
}

func TestHandlePurge(t *testing.T) {
	root := t.TempDir()
	run := filepath.Join(root, "42", "01HRUN")
	require.NoError(t, os.MkdirAll(run, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(run, "01_a.mp4"), []byte("x"), 0o644))

	h, err := NewHandlers(root)
	require.NoError(t, err)
	require.NoError(t, h.HandlePurge(context.Background(), task(t, TaskPurgeWorkspace, PurgePayload{UserID: 42, RunID: "01HRUN", Path: run})))
	assert.NoDirExists(t, run)
	assert.DirExists(t, root)
}

func TestHandlePurgeRefusesOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	h, err := NewHandlers(root)
	require.NoError(t, err)

	for _, p := range []string{outside, root, filepath.Join(root, "..", "x"), "relative/dir"} {
		err := h.HandlePurge(context.Background(), task(t, TaskPurgeWorkspace, PurgePayload{Path: p}))
		assert.True(t, errors.Is(err, asynq.SkipRetry), p)
	}
	assert.DirExists(t, outside)

	err = h.HandlePurge(context.Background(), asynq.NewTask(TaskPurgeWorkspace, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSweep(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, "1", "old")
	fresh := filepath.Join(root, "2", "fresh")
	stale2 := filepath.Join(root, "2", "stale")
	for _, d := range []string{old, fresh, stale2} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	long := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(old, long, long))
	require.NoError(t, os.Chtimes(stale2, long, long))

	h, err := NewHandlers(root)
	require.NoError(t, err)
	n, err := h.Sweep(context.Background(), 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoDirExists(t, filepath.Join(root, "1"))
	assert.DirExists(t, fresh)
	assert.NoDirExists(t, stale2)
}

func TestHandleSweepMissingRoot(t *testing.T) {
	h, err := NewHandlers(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.NoError(t, h.HandleSweep(context.Background(), task(t, TaskSweepWorkspaces, SweepPayload{MaxAgeSec: 60})))

	_, err = h.Sweep(context.Background(), 0)
	assert.Error(t, err)
}

func TestSweepTask(t *testing.T) {
	tk, err := SweepTask(2 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, TaskSweepWorkspaces, tk.Type())
	var p SweepPayload
	require.NoError(t, json.Unmarshal(tk.Payload(), &p))
	assert.Equal(t, int64(7200), p.MaxAgeSec)
}

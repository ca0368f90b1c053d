// Package jobs holds the background maintenance tasks that keep the data
// directory clean.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	logx "github.com/wapuda/mergebot/internal/logs"
)

// Handlers runs maintenance tasks against one data directory.
type Handlers struct {
	Root string
	now  func() time.Time
}

func NewHandlers(root string) (*Handlers, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Handlers{Root: abs, now: time.Now}, nil
}

func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskPurgeWorkspace, h.HandlePurge)
	mux.HandleFunc(TaskSweepWorkspaces, h.HandleSweep)
	return mux
}

// inRoot reports whether p is strictly below the data dir.
func (h *Handlers) inRoot(p string) bool {
	rel, err := filepath.Rel(h.Root, p)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

func (h *Handlers) HandlePurge(ctx context.Context, t *asynq.Task) error {
	var p PurgePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("purge payload: %v: %w", err, asynq.SkipRetry)
	}
	path := filepath.Clean(p.Path)
	if !h.inRoot(path) {
		return fmt.Errorf("purge %q: outside %s: %w", p.Path, h.Root, asynq.SkipRetry)
	}

	logger := logx.FromCtx(logx.WithRun(ctx, p.UserID, p.RunID))
	if err := os.RemoveAll(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("purge failed, will retry")
		return err
	}
	logger.Info().Str("path", path).Msg("workspace purged")
	return nil
}

func (h *Handlers) HandleSweep(ctx context.Context, t *asynq.Task) error {
	var p SweepPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("sweep payload: %v: %w", err, asynq.SkipRetry)
	}
	removed, err := h.Sweep(ctx, time.Duration(p.MaxAgeSec)*time.Second)
	logger := logx.FromCtx(ctx)
	logger.Info().Int("removed", removed).Msg("workspace sweep done")
	return err
}

// Sweep removes run directories (root/<user>/<run>) not modified within
// maxAge, then empty user directories.
func (h *Handlers) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("sweep: max age must be positive")
	}
	users, err := os.ReadDir(h.Root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := h.now().Add(-maxAge)
	removed := 0
	var firstErr error
	for _, u := range users {
		if !u.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		userDir := filepath.Join(h.Root, u.Name())
		runs, err := os.ReadDir(userDir)
		if err != nil {
			continue
		}
		left := len(runs)
		for _, r := range runs {
			info, err := r.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.RemoveAll(filepath.Join(userDir, r.Name())); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			removed++
			left--
		}
		if left == 0 {
			_ = os.Remove(userDir)
		}
	}
	return removed, firstErr
}

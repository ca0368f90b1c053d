package pipeline

import (
	"context"
	"os"
	"time"

	logx "github.com/wapuda/mergebot/internal/logs"
	"github.com/wapuda/mergebot/internal/session"
)

// Maintain drops merged files nobody picked a destination for within ttl,
// then refreshes the mtime of every remaining run directory so the
// worker's age-based sweep leaves live runs alone. A zero ttl disables
// expiry.
func (s *Service) Maintain(ctx context.Context, ttl time.Duration) (touched, expired int) {
	now := s.now()
	if ttl > 0 {
		for _, sess := range s.store.ExpireAwaiting(now.Add(-ttl)) {
			runCtx := logx.WithRun(ctx, sess.UserID, sess.RunID)
			logger := logx.FromCtx(runCtx)
			logger.Info().Dur("ttl", ttl).Msg("upload choice expired")
			s.cleanup(runCtx, sess.UserID, sess.RunID, sess.Dir)
			s.notify.Failed(sess.UserID, sess.ChatID, session.ErrExpired)
			expired++
		}
	}
	for _, sess := range s.store.All() {
		if sess.Dir == "" {
			continue
		}
		if err := os.Chtimes(sess.Dir, now, now); err != nil {
			if !os.IsNotExist(err) {
				logger := logx.FromCtx(ctx)
				logger.Warn().Err(err).Str("dir", sess.Dir).Msg("touch workspace")
			}
			continue
		}
		touched++
	}
	return touched, expired
}

// KeepAlive runs Maintain every interval until ctx is done.
func (s *Service) KeepAlive(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			touched, expired := s.Maintain(ctx, ttl)
			if touched+expired > 0 {
				logger := logx.FromCtx(ctx)
				logger.Debug().Int("touched", touched).Int("expired", expired).Msg("workspace keepalive")
			}
		}
	}
}

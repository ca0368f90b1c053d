// Package pipeline drives one user's queue through download, merge and upload.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/wapuda/mergebot/internal/download"
	"github.com/wapuda/mergebot/internal/jobs"
	logx "github.com/wapuda/mergebot/internal/logs"
	"github.com/wapuda/mergebot/internal/media"
	"github.com/wapuda/mergebot/internal/progress"
	"github.com/wapuda/mergebot/internal/session"
	"github.com/wapuda/mergebot/internal/upload"
)

// Downloader materialises queue items in order.
type Downloader interface {
	FetchAll(ctx context.Context, items []session.QueueItem, dir string, sinkFor func(i int) progress.Sink) ([]string, error)
}

// Merger produces one output from the downloaded inputs.
type Merger interface {
	Merge(ctx context.Context, job media.MergeJob, sink progress.Sink) (media.Result, error)
}

// Tools covers the ffmpeg helpers used around a merge. *media.Engine
// satisfies it.
type Tools interface {
	MuxAudio(ctx context.Context, video string, audios []string, output string, sink progress.Sink) error
	MuxSubtitles(ctx context.Context, video string, subs []string, output string, sink progress.Sink) error
	Thumbnail(ctx context.Context, video string, at float64, output string) error
	Prober() *media.Prober
}

// Uploader is satisfied by *upload.Dispatcher.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request, dest upload.Destination, sink progress.Sink) (upload.Receipt, error)
}

// Notifier receives progress and the terminal outcome of each run.
type Notifier interface {
	// Sink returns where progress of the user's current run goes.
	Sink(userID, chatID int64) progress.Sink
	MergeDone(userID, chatID int64, a session.Artifact)
	UploadDone(userID, chatID int64, r upload.Receipt)
	Failed(userID, chatID int64, err error)
}

type Options struct {
	DataDir  string
	Store    *session.Store
	Download Downloader
	Merge    Merger
	Tools    Tools
	Upload   Uploader
	Purger   jobs.Purger // optional
	Notify   Notifier
}

type Service struct {
	dataDir  string
	store    *session.Store
	download Downloader
	merge    Merger
	tools    Tools
	upload   Uploader
	purger   jobs.Purger
	notify   Notifier
	now      func() time.Time

	wg sync.WaitGroup
}

func New(o Options) *Service {
	return &Service{
		dataDir:  o.DataDir,
		store:    o.Store,
		download: o.Download,
		merge:    o.Merge,
		tools:    o.Tools,
		upload:   o.Upload,
		purger:   o.Purger,
		notify:   o.Notify,
		now:      time.Now,
	}
}

// Run is a handle on one background stage.
type Run struct {
	ID   string
	done chan struct{}
	err  error
}

// Wait blocks until the run has finished and cleaned up.
func (r *Run) Wait() error {
	<-r.done
	return r.err
}

func (s *Service) Store() *session.Store { return s.store }

// Enqueue adds an item to the user's queue.
func (s *Service) Enqueue(userID, chatID int64, mode session.MergeMode, item session.QueueItem) (session.Session, error) {
	return s.store.Enqueue(userID, chatID, mode, item)
}

func (s *Service) Snapshot(userID int64) (session.Session, bool) {
	return s.store.Get(userID)
}

// StartMerge downloads and merges the user's queue in the background.
func (s *Service) StartMerge(ctx context.Context, userID int64, engine media.Mode) (*Run, error) {
	runID := ulid.Make().String()
	dir := filepath.Join(s.dataDir, fmt.Sprint(userID), runID)

	ctx, cancel := context.WithCancel(logx.WithRun(context.WithoutCancel(ctx), userID, runID))
	sess, err := s.store.BeginMerge(userID, runID, dir, cancel)
	if err != nil {
		cancel()
		return nil, err
	}

	run := &Run{ID: runID, done: make(chan struct{})}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(run.done)
		defer cancel()
		run.err = s.mergeRun(ctx, sess, engine)
	}()
	return run, nil
}

func (s *Service) mergeRun(ctx context.Context, sess session.Session, engine media.Mode) (err error) {
	logger := logx.FromCtx(ctx)
	sink := s.notify.Sink(sess.UserID, sess.ChatID)
	var keepDir bool
	defer func() {
		if err == nil {
			return
		}
		if !keepDir {
			s.cleanup(ctx, sess.UserID, sess.RunID, sess.Dir)
		}
		s.store.Release(sess.UserID, sess.RunID)
		logger.Warn().Err(err).Msg("merge run ended")
		s.notify.Failed(sess.UserID, sess.ChatID, err)
	}()

	logger.Info().Int("items", len(sess.Items)).Str("mode", string(sess.Mode)).Msg("merge run started")
	paths, err := s.download.FetchAll(ctx, sess.Items, sess.Dir, func(int) progress.Sink { return sink })
	if err != nil {
		return err
	}
	if err := s.store.SetLocalPaths(sess.UserID, sess.RunID, paths); err != nil {
		return cancelledOr(ctx, err)
	}
	if err := s.store.Advance(sess.UserID, sess.RunID, session.Merging); err != nil {
		return cancelledOr(ctx, err)
	}

	art, err := s.produce(ctx, sess, paths, engine, sink)
	if err != nil {
		return err
	}
	for _, p := range paths {
		_ = os.Remove(p)
	}
	if err := s.store.SetArtifact(sess.UserID, sess.RunID, art); err != nil {
		return cancelledOr(ctx, err)
	}
	keepDir = true
	logger.Info().Str("strategy", string(art.Strategy)).Int64("bytes", art.Size).Msg("merge run done")
	s.notify.MergeDone(sess.UserID, sess.ChatID, art)
	return nil
}

func cancelledOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// produce runs the merge for the session's mode and describes the output.
func (s *Service) produce(ctx context.Context, sess session.Session, paths []string, engine media.Mode, sink progress.Sink) (session.Artifact, error) {
	var (
		art session.Artifact
		err error
	)
	switch sess.Mode {
	case session.VideoAudio:
		art.Path = filepath.Join(sess.Dir, "merged.mkv")
		art.Strategy = "mux"
		err = s.tools.MuxAudio(ctx, paths[0], paths[1:], art.Path, sink)
	case session.VideoSubtitle:
		art.Path = filepath.Join(sess.Dir, "merged.mkv")
		art.Strategy = "mux"
		err = s.tools.MuxSubtitles(ctx, paths[0], paths[1:], art.Path, sink)
	default:
		art.Path = filepath.Join(sess.Dir, "merged"+outputExt(paths))
		var res media.Result
		res, err = s.merge.Merge(ctx, media.MergeJob{Inputs: paths, Output: art.Path, Mode: engine}, sink)
		art.Strategy = res.Strategy
	}
	if err != nil {
		return art, cancelledOr(ctx, err)
	}

	st, err := os.Stat(art.Path)
	if err != nil {
		return art, err
	}
	art.Size = st.Size()
	if info, err := s.tools.Prober().Probe(ctx, art.Path); err == nil {
		art.Duration, art.Width, art.Height = info.Duration, info.Width, info.Height
	} else {
		logger := logx.FromCtx(ctx)
		logger.Warn().Err(err).Msg("probe merged output")
	}
	return art, nil
}

// outputExt keeps the first input's container when every input shares it.
func outputExt(paths []string) string {
	ext := strings.ToLower(filepath.Ext(paths[0]))
	for _, p := range paths[1:] {
		if strings.ToLower(filepath.Ext(p)) != ext {
			return ".mkv"
		}
	}
	switch ext {
	case ".mp4", ".mkv", ".mov", ".m4v":
		return ext
	}
	// webm and friends cannot hold the default h264/aac re-encode
	return ".mkv"
}

// StartUpload sends the merged artifact to dest in the background. The
// artifact is removed and the session released whatever the outcome.
func (s *Service) StartUpload(ctx context.Context, userID int64, dest upload.Destination, asDocument bool) (*Run, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess, err := s.store.BeginUpload(userID, cancel)
	if err != nil {
		cancel()
		return nil, err
	}
	runCtx = logx.WithRun(runCtx, userID, sess.RunID)

	run := &Run{ID: sess.RunID, done: make(chan struct{})}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(run.done)
		defer cancel()
		run.err = s.uploadRun(runCtx, sess, dest, asDocument)
	}()
	return run, nil
}

func (s *Service) uploadRun(ctx context.Context, sess session.Session, dest upload.Destination, asDocument bool) error {
	logger := logx.FromCtx(ctx)
	defer func() {
		s.cleanup(ctx, sess.UserID, sess.RunID, sess.Dir)
		s.store.Release(sess.UserID, sess.RunID)
	}()

	art := *sess.Artifact
	req := upload.Request{
		Path:       art.Path,
		FileName:   outputName(sess.OutputName, art.Path),
		ChatID:     sess.ChatID,
		Caption:    outputName(sess.OutputName, art.Path),
		Thumbnail:  sess.Thumbnail,
		AsDocument: asDocument,
		Duration:   art.Duration,
	}
	if dest == upload.Telegram && !asDocument && req.Thumbnail == "" {
		req.Thumbnail = s.autoThumbnail(ctx, logger, sess, art)
	}

	rc, err := s.upload.Upload(ctx, req, dest, s.notify.Sink(sess.UserID, sess.ChatID))
	if err != nil {
		err = cancelledOr(ctx, err)
		logger.Warn().Err(err).Msg("upload run ended")
		s.notify.Failed(sess.UserID, sess.ChatID, err)
		return err
	}
	s.notify.UploadDone(sess.UserID, sess.ChatID, rc)
	return nil
}

func (s *Service) autoThumbnail(ctx context.Context, logger zerolog.Logger, sess session.Session, art session.Artifact) string {
	thumb := filepath.Join(sess.Dir, "thumb.jpg")
	at := -1.0
	if art.Duration > 0 {
		at = art.Duration / 2
	}
	if err := s.tools.Thumbnail(ctx, art.Path, at, thumb); err != nil {
		logger.Debug().Err(err).Msg("auto thumbnail skipped")
		return ""
	}
	return thumb
}

// outputName applies a user-chosen name, keeping the artifact's extension.
func outputName(custom, artifact string) string {
	ext := filepath.Ext(artifact)
	custom = strings.TrimSpace(custom)
	if custom == "" {
		return filepath.Base(artifact)
	}
	custom = strings.NewReplacer("/", "_", "\\", "_").Replace(custom)
	if !strings.EqualFold(filepath.Ext(custom), ext) {
		custom += ext
	}
	return custom
}

// Cancel aborts the user's session. A live run cleans up after itself;
// otherwise the workspace is removed here.
func (s *Service) Cancel(userID int64) bool {
	snap, ok := s.store.Cancel(userID)
	if !ok {
		return false
	}
	if !snap.State.Busy() && snap.Dir != "" {
		s.cleanup(logx.WithRun(context.Background(), userID, snap.RunID), userID, snap.RunID, snap.Dir)
	}
	return true
}

func (s *Service) SetPrompt(userID int64, p session.Prompt) error {
	return s.store.SetPrompt(userID, p)
}

func (s *Service) SetOutputName(userID int64, name string) error {
	return s.store.SetOutputName(userID, name)
}

// SetThumbnail stores a user-supplied thumbnail inside the run directory.
func (s *Service) SetThumbnail(userID int64, path string) error {
	return s.store.SetThumbnail(userID, path)
}

// Wait blocks until every background run has returned.
func (s *Service) Wait() { s.wg.Wait() }

// Shutdown cancels every live session and waits for the runs to clean up,
// giving up when ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	for _, sess := range s.store.All() {
		s.Cancel(sess.UserID)
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// cleanup removes a run directory, handing it to the worker when that fails.
func (s *Service) cleanup(ctx context.Context, userID int64, runID, dir string) {
	if dir == "" {
		return
	}
	err := os.RemoveAll(dir)
	if err == nil {
		_ = os.Remove(filepath.Dir(dir)) // user dir, only when empty
		return
	}
	logger := logx.FromCtx(ctx)
	logger.Warn().Err(err).Str("dir", dir).Msg("workspace cleanup failed")
	if s.purger == nil {
		return
	}
	abs, aerr := filepath.Abs(dir)
	if aerr != nil {
		abs = dir
	}
	if perr := s.purger.Purge(context.WithoutCancel(ctx), jobs.PurgePayload{UserID: userID, RunID: runID, Path: abs}); perr != nil {
		logger.Error().Err(perr).Msg("enqueue purge")
	}
}

// UserMessage turns a run error into a short chat message.
func UserMessage(err error) string {
	var (
		de *download.Error
		ue *upload.Error
		te *session.TransitionError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "Cancelled. Everything was cleaned up."
	case errors.Is(err, media.ErrInsufficientInputs):
		return "Send at least two files before merging."
	case errors.Is(err, session.ErrAwaitingUpload):
		return "The merged file is waiting for an upload choice. Pick a destination or /cancel."
	case errors.Is(err, session.ErrCancelling):
		return "Still cancelling the previous run. Try again in a moment."
	case errors.Is(err, session.ErrExpired):
		return "The merged file expired before an upload was chosen. Send the files again."
	case errors.Is(err, session.ErrBusy):
		return "A merge is already running. Use /cancel to stop it."
	case errors.Is(err, session.ErrNoSession):
		return "Nothing queued. Send videos or links first."
	case errors.Is(err, session.ErrQueueFull):
		return "Queue is full. /merge now or /clear to start over."
	case errors.Is(err, session.ErrRejected):
		return "This file type does not fit the current merge mode. See /settings."
	case errors.As(err, &de):
		return "Download failed: " + clip(de.Error())
	case errors.Is(err, media.ErrInvalidDuration):
		return "Merge failed: the inputs have no playable duration."
	case errors.Is(err, media.ErrMetadataUnavailable), errors.Is(err, media.ErrProbeFailed):
		return "Merge failed: could not read one of the files. " + clip(err.Error())
	case errors.Is(err, media.ErrRobustMergeFailed), errors.Is(err, media.ErrFastMergeIncompatible):
		if d := media.Diagnostic(err); d != "" {
			return "Merge failed: " + clip(d)
		}
		return "Merge failed."
	case errors.Is(err, upload.ErrTooLarge):
		return "File is too large for Telegram. Try GoFile or Drive next time."
	case errors.As(err, &ue):
		return "Upload failed: " + clip(ue.Reason)
	case errors.As(err, &te):
		return "That action is not available right now."
	}
	return "Something went wrong: " + clip(err.Error())
}

const maxUserText = 300

func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxUserText {
		return s
	}
	return strings.ToValidUTF8(s[:maxUserText], "") + "…"
}

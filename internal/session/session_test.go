package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wapuda/mergebot/internal/media"
)

const uid = int64(42)

func link(u string) QueueItem { return RemoteURL{URL: u} }

func collecting(t *testing.T, s *Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.Enqueue(uid, 7, VideoVideo, link("https://example.com/clip.mp4"))
		require.NoError(t, err)
	}
}

func TestEnqueueKeepsOrder(t *testing.T) {
	s := NewStore(10)
	_, err := s.Enqueue(uid, 7, VideoVideo, RemoteURL{URL: "https://x/a.mp4"})
	require.NoError(t, err)
	sess, err := s.Enqueue(uid, 7, VideoVideo, PlatformMessageRef{FileID: "f", FileName: "b.mkv"})
	require.NoError(t, err)

	assert.Equal(t, Collecting, sess.State)
	require.Len(t, sess.Items, 2)
	assert.Equal(t, "a.mp4", sess.Items[0].Name())
	assert.Equal(t, "b.mkv", sess.Items[1].Name())
}

func TestEnqueueLimits(t *testing.T) {
	s := NewStore(2)
	collecting(t, s, 2)
	_, err := s.Enqueue(uid, 7, VideoVideo, link("https://x/c.mp4"))
	assert.ErrorIs(t, err, ErrQueueFull)

	_, err = s.Enqueue(uid+1, 7, VideoVideo, link("https://x/notes.pdf"))
	assert.ErrorIs(t, err, ErrRejected)
	_, ok := s.Get(uid + 1)
	assert.False(t, ok)
}

func TestBeginMergeNeedsTwoItems(t *testing.T) {
	s := NewStore(10)
	_, err := s.BeginMerge(uid, "r1", "/tmp/x", nil)
	assert.ErrorIs(t, err, ErrNoSession)

	collecting(t, s, 1)
	_, err = s.BeginMerge(uid, "r1", "/tmp/x", nil)
	assert.ErrorIs(t, err, media.ErrInsufficientInputs)

	sess, _ := s.Get(uid)
	assert.Equal(t, Collecting, sess.State)
	assert.Empty(t, sess.RunID)
}

func TestHappyPath(t *testing.T) {
	s := NewStore(10)
	collecting(t, s, 2)

	_, err := s.BeginMerge(uid, "r1", "/data/42/r1", func() {})
	require.NoError(t, err)

	_, err = s.Enqueue(uid, 7, VideoVideo, link("https://x/late.mp4"))
	assert.ErrorIs(t, err, ErrBusy)
	_, err = s.BeginMerge(uid, "r2", "", nil)
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, s.SetLocalPaths(uid, "r1", []string{"a", "b"}))
	require.NoError(t, s.Advance(uid, "r1", Merging))
	require.NoError(t, s.SetArtifact(uid, "r1", Artifact{Path: "out.mp4", Size: 10, Strategy: media.StrategyFast}))

	require.NoError(t, s.SetPrompt(uid, PromptFilename))
	require.NoError(t, s.SetOutputName(uid, "holiday.mp4"))

	sess, err := s.BeginUpload(uid, func() {})
	require.NoError(t, err)
	assert.Equal(t, Uploading, sess.State)
	assert.Equal(t, "holiday.mp4", sess.OutputName)
	assert.Equal(t, PromptNone, sess.Prompt)
	assert.Equal(t, []string{"a", "b"}, sess.LocalPaths)

	s.Release(uid, "r1")
	sess, ok := s.Get(uid)
	assert.False(t, ok)
	assert.Equal(t, Idle, sess.State)
}

func TestAdvanceRejectsInvalidTransition(t *testing.T) {
	s := NewStore(10)
	collecting(t, s, 2)
	_, err := s.BeginMerge(uid, "r1", "", nil)
	require.NoError(t, err)

	err = s.Advance(uid, "r1", Uploading)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, Downloading, te.From)
	assert.Equal(t, Uploading, te.To)

	assert.ErrorIs(t, s.Advance(uid, "other", Merging), ErrStaleRun)
}

func TestCancelDuringRun(t *testing.T) {
	s := NewStore(10)
	collecting(t, s, 3)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.BeginMerge(uid, "r1", "/data/42/r1", cancel)
	require.NoError(t, err)

	snap, ok := s.Cancel(uid)
	require.True(t, ok)
	assert.Equal(t, "/data/42/r1", snap.Dir)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	sess, _ := s.Get(uid)
	assert.Equal(t, Cancelled, sess.State)
	assert.Error(t, s.Advance(uid, "r1", Merging))

	s.Release(uid, "r1")
	_, ok = s.Get(uid)
	assert.False(t, ok)
}

func TestCancelWhileCollectingOrAwaiting(t *testing.T) {
	s := NewStore(10)
	collecting(t, s, 1)
	_, ok := s.Cancel(uid)
	assert.True(t, ok)
	_, ok = s.Get(uid)
	assert.False(t, ok)

	collecting(t, s, 2)
	_, err := s.BeginMerge(uid, "r1", "/d", nil)
	require.NoError(t, err)
	require.NoError(t, s.Advance(uid, "r1", Merging))
	require.NoError(t, s.SetArtifact(uid, "r1", Artifact{Path: "/d/out.mp4"}))
	require.NoError(t, s.SetPrompt(uid, PromptThumbnail))

	snap, ok := s.Cancel(uid)
	assert.True(t, ok)
	assert.Equal(t, "/d/out.mp4", snap.Artifact.Path)
	_, ok = s.Get(uid)
	assert.False(t, ok)

	_, ok = s.Cancel(uid)
	assert.False(t, ok)
}

func TestNotCollectingErrors(t *testing.T) {
	s := NewStore(10)
	collecting(t, s, 2)
	_, err := s.BeginMerge(uid, "r1", "/d", nil)
	require.NoError(t, err)
	require.NoError(t, s.Advance(uid, "r1", Merging))
	require.NoError(t, s.SetArtifact(uid, "r1", Artifact{Path: "/d/out.mp4"}))

	_, err = s.Enqueue(uid, 7, VideoVideo, link("https://x/late.mp4"))
	assert.ErrorIs(t, err, ErrAwaitingUpload)
	assert.NotErrorIs(t, err, ErrBusy)
	_, err = s.BeginMerge(uid, "r2", "", nil)
	assert.ErrorIs(t, err, ErrAwaitingUpload)

	_, err = s.BeginUpload(uid, func() {})
	require.NoError(t, err)
	s.Cancel(uid)
	_, err = s.Enqueue(uid, 7, VideoVideo, link("https://x/late.mp4"))
	assert.ErrorIs(t, err, ErrCancelling)

	assert.ErrorIs(t, NotCollecting(Downloading), ErrBusy)
}

func TestExpireAwaiting(t *testing.T) {
	s := NewStore(10)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	collecting(t, s, 2)
	_, err := s.BeginMerge(uid, "r1", "/d/1", nil)
	require.NoError(t, err)
	require.NoError(t, s.Advance(uid, "r1", Merging))
	require.NoError(t, s.SetArtifact(uid, "r1", Artifact{Path: "/d/1/out.mp4"}))

	// a second user still merging is never expired
	_, err = s.Enqueue(7, 7, VideoVideo, link("https://x/a.mp4"))
	require.NoError(t, err)
	_, err = s.Enqueue(7, 7, VideoVideo, link("https://x/b.mp4"))
	require.NoError(t, err)
	_, err = s.BeginMerge(7, "r7", "/d/7", nil)
	require.NoError(t, err)

	assert.Empty(t, s.ExpireAwaiting(base))
	assert.Len(t, s.All(), 2)

	expired := s.ExpireAwaiting(base.Add(time.Minute))
	require.Len(t, expired, 1)
	assert.Equal(t, "/d/1", expired[0].Dir)
	_, ok := s.Get(uid)
	assert.False(t, ok)

	all := s.All()
	require.Len(t, all, 1)
	assert.Equal(t, Downloading, all[0].State)
}

func TestReleaseIgnoresOtherRun(t *testing.T) {
	s := NewStore(10)
	collecting(t, s, 2)
	_, err := s.BeginMerge(uid, "r2", "", nil)
	require.NoError(t, err)

	s.Release(uid, "r1")
	sess, ok := s.Get(uid)
	assert.True(t, ok)
	assert.Equal(t, Downloading, sess.State)
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore(10)
	collecting(t, s, 2)
	sess, _ := s.Get(uid)
	sess.Items[0] = link("https://evil/x.mp4")

	again, _ := s.Get(uid)
	assert.Equal(t, "clip.mp4", again.Items[0].Name())
}

func TestMergeModeAccepts(t *testing.T) {
	assert.True(t, VideoVideo.Accepts(1, "b.webm"))
	assert.False(t, VideoVideo.Accepts(1, "b.mp3"))
	assert.False(t, VideoAudio.Accepts(0, "a.mp3"))
	assert.True(t, VideoAudio.Accepts(1, "a.mp3"))
	assert.True(t, VideoSubtitle.Accepts(1, "a.SRT"))
	assert.True(t, VideoVideo.Accepts(0, "noext"))
	assert.Equal(t, VideoVideo, ParseMergeMode("bogus"))
}

func TestStateTable(t *testing.T) {
	assert.True(t, CanTransition(Idle, Collecting))
	assert.True(t, CanTransition(Cancelled, Idle))
	assert.False(t, CanTransition(Idle, Merging))
	assert.False(t, CanTransition(AwaitingUploadChoice, Idle))
	assert.Equal(t, "awaiting_upload_choice", AwaitingUploadChoice.String())
	assert.Equal(t, "state(99)", State(99).String())
}

func TestRemoteURLName(t *testing.T) {
	assert.Equal(t, "my clip.mp4", RemoteURL{URL: "https://x/y/my%20clip.mp4?sig=1"}.Name())
	assert.Equal(t, "download", RemoteURL{URL: "https://x/"}.Name())
	assert.Equal(t, "given.mkv", RemoteURL{URL: "https://x/a.mp4", FileName: "given.mkv"}.Name())
}

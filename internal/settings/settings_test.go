package settings

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wapuda/mergebot/internal/media"
	"github.com/wapuda/mergebot/internal/session"
	"github.com/wapuda/mergebot/internal/upload"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb), mr
}

func TestGetDefaults(t *testing.T) {
	s, _ := newStore(t)
	p, err := s.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)
}

func TestUpdateRoundTrip(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	_, err := s.Update(ctx, 7, func(p *Prefs) {
		p.MergeMode = session.VideoAudio
		p.Engine = media.ModeRobustOnly
		p.UploadTo = upload.GoFile
		p.AsDocument = true
	})
	require.NoError(t, err)
	assert.Equal(t, "video-audio", mr.HGet("settings:7", "merge_mode"))
	assert.Equal(t, "robust", mr.HGet("settings:7", "engine"))

	p, err := s.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, Prefs{MergeMode: session.VideoAudio, Engine: media.ModeRobustOnly, UploadTo: upload.GoFile, AsDocument: true}, p)

	require.NoError(t, s.Reset(ctx, 7))
	p, err = s.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)
}

func TestGetIgnoresGarbage(t *testing.T) {
	s, mr := newStore(t)
	mr.HSet("settings:3", "merge_mode", "audio-only", "upload_to", "ftp", "as_document", "maybe")

	p, err := s.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)
}

func TestGetRedisDown(t *testing.T) {
	s, mr := newStore(t)
	mr.Close()
	p, err := s.Get(context.Background(), 1)
	assert.Error(t, err)
	assert.Equal(t, Defaults(), p)
}

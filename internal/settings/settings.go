// Package settings persists per-user preferences in Redis.
package settings

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/wapuda/mergebot/internal/media"
	"github.com/wapuda/mergebot/internal/session"
	"github.com/wapuda/mergebot/internal/upload"
)

const (
	fieldMergeMode  = "merge_mode"
	fieldEngine     = "engine"
	fieldUploadTo   = "upload_to"
	fieldAsDocument = "as_document"
)

type Prefs struct {
	MergeMode  session.MergeMode
	Engine     media.Mode
	UploadTo   upload.Destination // "" = ask after every merge
	AsDocument bool
}

func Defaults() Prefs {
	return Prefs{MergeMode: session.VideoVideo, Engine: media.ModeAuto}
}

// Store keeps Prefs in one hash per user.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func key(userID int64) string { return fmt.Sprintf("settings:%d", userID) }

// Get returns the user's preferences, or Defaults when none are stored.
func (s *Store) Get(ctx context.Context, userID int64) (Prefs, error) {
	m, err := s.rdb.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		return Defaults(), err
	}
	p := Defaults()
	if v, ok := m[fieldMergeMode]; ok {
		p.MergeMode = session.ParseMergeMode(v)
	}
	if v, ok := m[fieldEngine]; ok {
		p.Engine = media.ParseMode(v)
	}
	if v, ok := m[fieldUploadTo]; ok {
		if d, ok := upload.ParseDestination(v); ok {
			p.UploadTo = d
		}
	}
	if v, ok := m[fieldAsDocument]; ok {
		p.AsDocument, _ = strconv.ParseBool(v)
	}
	return p, nil
}

func (s *Store) Set(ctx context.Context, userID int64, p Prefs) error {
	return s.rdb.HSet(ctx, key(userID),
		fieldMergeMode, string(p.MergeMode),
		fieldEngine, p.Engine.String(),
		fieldUploadTo, string(p.UploadTo),
		fieldAsDocument, strconv.FormatBool(p.AsDocument),
	).Err()
}

// Update applies fn to the stored preferences and saves the result.
func (s *Store) Update(ctx context.Context, userID int64, fn func(*Prefs)) (Prefs, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return p, err
	}
	fn(&p)
	return p, s.Set(ctx, userID, p)
}

// Reset drops the stored preferences.
func (s *Store) Reset(ctx context.Context, userID int64) error {
	return s.rdb.Del(ctx, key(userID)).Err()
}

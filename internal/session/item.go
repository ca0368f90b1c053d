package session

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// QueueItem is one submitted input. It is either a RemoteURL or a
// PlatformMessageRef; both are immutable once enqueued.
type QueueItem interface {
	// Name is the best known file name, used for the local copy.
	Name() string
	isQueueItem()
}

// RemoteURL is a direct HTTP(S) link.
type RemoteURL struct {
	URL      string
	FileName string
}

func (r RemoteURL) Name() string {
	if r.FileName != "" {
		return r.FileName
	}
	if u, err := url.Parse(r.URL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			if unescaped, err := url.PathUnescape(base); err == nil {
				return unescaped
			}
			return base
		}
	}
	return "download"
}

func (RemoteURL) isQueueItem() {}

// PlatformMessageRef points at a file attached to a chat message.
type PlatformMessageRef struct {
	ChatID    int64
	MessageID int
	FileID    string
	FileName  string
	FileSize  int64
}

func (p PlatformMessageRef) Name() string {
	if p.FileName != "" {
		return p.FileName
	}
	return p.FileID
}

func (PlatformMessageRef) isQueueItem() {}

// MergeMode selects what the queued items are merged into.
type MergeMode string

const (
	VideoVideo    MergeMode = "video-video"
	VideoAudio    MergeMode = "video-audio"
	VideoSubtitle MergeMode = "video-subtitle"
)

var (
	videoExt    = map[string]bool{".mp4": true, ".mkv": true, ".mov": true, ".webm": true, ".avi": true, ".m4v": true, ".ts": true, ".flv": true, ".3gp": true}
	audioExt    = map[string]bool{".mp3": true, ".m4a": true, ".aac": true, ".opus": true, ".ogg": true, ".flac": true, ".wav": true, ".ac3": true, ".eac3": true}
	subtitleExt = map[string]bool{".srt": true, ".ass": true, ".ssa": true, ".vtt": true, ".sub": true}
)

// ParseMergeMode falls back to VideoVideo for unknown values.
func ParseMergeMode(s string) MergeMode {
	switch MergeMode(s) {
	case VideoAudio, VideoSubtitle:
		return MergeMode(s)
	}
	return VideoVideo
}

// Accepts reports whether an item named name may be queued at position pos
// (0-based). Extension-less names are accepted as videos.
func (m MergeMode) Accepts(pos int, name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	isVideo := ext == "" || videoExt[ext]
	if pos == 0 || m == VideoVideo {
		return isVideo
	}
	switch m {
	case VideoAudio:
		return audioExt[ext]
	case VideoSubtitle:
		return subtitleExt[ext]
	}
	return false
}

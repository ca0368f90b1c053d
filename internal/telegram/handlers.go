package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/wapuda/mergebot/internal/pipeline"
	"github.com/wapuda/mergebot/internal/session"
)

const helpText = "Send two or more videos (files, albums or direct links), then /merge.\n" +
	"Commands:\n" +
	"/merge – download and merge the queue\n" +
	"/queue – show what is queued\n" +
	"/cancel – stop and clean up (/clear does the same)\n" +
	"/settings – merge mode, engine, upload destination"

func (h *Handler) onMessage(ctx context.Context, m *tgbotapi.Message) {
	log.Info().
		Int64("chat_id", m.Chat.ID).
		Int64("user_id", m.From.ID).
		Msg("message received")

	if m.IsCommand() {
		h.onCommand(ctx, m)
		return
	}

	sess, _ := h.svc.Snapshot(m.From.ID)
	switch sess.Prompt {
	case session.PromptFilename:
		if name := strings.TrimSpace(m.Text); name != "" {
			h.onFilename(m, name)
			return
		}
	case session.PromptThumbnail:
		if len(m.Photo) > 0 {
			h.onThumbnail(ctx, m, sess)
			return
		}
	}

	items := extractItems(m)
	if len(items) == 0 {
		if m.Text != "" {
			h.send(m.Chat.ID, "Send a video, an audio or subtitle file, or a direct http(s) link. /help")
		}
		return
	}
	h.enqueue(ctx, m, items)
}

func (h *Handler) onCommand(ctx context.Context, m *tgbotapi.Message) {
	userID, chatID := m.From.ID, m.Chat.ID
	switch m.Command() {
	case "start", "help":
		h.send(chatID, helpText)
	case "merge":
		h.startMerge(ctx, userID, chatID)
	case "cancel", "clear":
		if h.svc.Cancel(userID) {
			h.send(chatID, "Cancelled. Send files to start again.")
		} else {
			h.send(chatID, "Nothing to cancel.")
		}
	case "queue":
		sess, ok := h.svc.Snapshot(userID)
		if !ok {
			h.send(chatID, "Queue is empty.")
			return
		}
		h.send(chatID, queueText(sess, h.maxQueue))
	case "settings":
		p := h.getPrefs(ctx, userID)
		h.sendWithKeyboard(chatID, settingsText(p), settingsKeyboard(p, h.dests))
	default:
		h.send(chatID, "Unknown command. /help")
	}
}

func (h *Handler) startMerge(ctx context.Context, userID, chatID int64) {
	sess, ok := h.svc.Snapshot(userID)
	if !ok {
		h.send(chatID, pipeline.UserMessage(session.ErrNoSession))
		return
	}
	if sess.State != session.Collecting {
		h.send(chatID, pipeline.UserMessage(session.NotCollecting(sess.State)))
		return
	}
	if len(sess.Items) < 2 {
		h.send(chatID, fmt.Sprintf("Only %d file queued. Send at least two before /merge.", len(sess.Items)))
		return
	}

	status := h.send(chatID, fmt.Sprintf("Starting merge of %d files…", len(sess.Items)))
	h.setStatus(userID, status.MessageID)
	p := h.getPrefs(ctx, userID)
	run, err := h.svc.StartMerge(ctx, userID, p.Engine)
	if err != nil {
		h.takeStatus(chatID, userID)
		h.edit(chatID, status.MessageID, "❌ "+pipeline.UserMessage(err))
		return
	}
	log.Info().Int64("user_id", userID).Str("run_id", run.ID).Str("engine", p.Engine.String()).Msg("merge requested")
}

func (h *Handler) enqueue(ctx context.Context, m *tgbotapi.Message, items []session.QueueItem) {
	userID, chatID := m.From.ID, m.Chat.ID
	mode := h.getPrefs(ctx, userID).MergeMode

	var (
		queued []string
		sess   session.Session
		err    error
	)
	for _, it := range items {
		sess, err = h.svc.Enqueue(userID, chatID, mode, it)
		if err != nil {
			break
		}
		queued = append(queued, it.Name())
	}
	if err != nil {
		text := pipeline.UserMessage(err)
		if errors.Is(err, session.ErrRejected) {
			text = rejectText(sess.Mode, len(sess.Items))
		}
		h.send(chatID, "❌ "+text)
	}
	if len(queued) == 0 {
		return
	}
	if m.MediaGroupID != "" {
		h.addToAlbum(userID, chatID, m.MediaGroupID, queued, len(sess.Items))
		return
	}
	h.send(chatID, queuedText(queued, len(sess.Items), h.maxQueue))
}

func (h *Handler) onFilename(m *tgbotapi.Message, name string) {
	if err := h.svc.SetOutputName(m.From.ID, name); err != nil {
		h.send(m.Chat.ID, "❌ "+pipeline.UserMessage(err))
		return
	}
	h.send(m.Chat.ID, "Output name set: "+name+"\nChoose an upload destination above.")
}

func (h *Handler) onThumbnail(ctx context.Context, m *tgbotapi.Message, sess session.Session) {
	if h.fetcher == nil || sess.Dir == "" {
		h.send(m.Chat.ID, "Custom thumbnails are not available.")
		return
	}
	best := m.Photo[0]
	for _, p := range m.Photo[1:] {
		if p.FileSize > best.FileSize || p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	ref := session.PlatformMessageRef{
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		FileID:    best.FileID,
		FileName:  "cover.jpg",
		FileSize:  int64(best.FileSize),
	}
	p, err := h.fetcher.Fetch(ctx, ref, sess.Dir, nil)
	if err != nil {
		h.send(m.Chat.ID, "❌ "+pipeline.UserMessage(err))
		return
	}
	if err := h.svc.SetThumbnail(m.From.ID, p); err != nil {
		h.send(m.Chat.ID, "❌ "+pipeline.UserMessage(err))
		return
	}
	h.send(m.Chat.ID, "Thumbnail set ✅\nChoose an upload destination above.")
}

// extractItems turns an attachment or the links in a text message into
// queue items.
func extractItems(m *tgbotapi.Message) []session.QueueItem {
	ref := func(fileID, name string, size int) []session.QueueItem {
		return []session.QueueItem{session.PlatformMessageRef{
			ChatID:    m.Chat.ID,
			MessageID: m.MessageID,
			FileID:    fileID,
			FileName:  name,
			FileSize:  int64(size),
		}}
	}
	switch {
	case m.Video != nil:
		name := m.Video.FileName
		if name == "" {
			name = fmt.Sprintf("video_%d%s", m.MessageID, extFromMime(m.Video.MimeType, ".mp4"))
		}
		return ref(m.Video.FileID, name, m.Video.FileSize)
	case m.Document != nil:
		name := m.Document.FileName
		if name == "" {
			name = fmt.Sprintf("file_%d%s", m.MessageID, extFromMime(m.Document.MimeType, ""))
		}
		return ref(m.Document.FileID, name, m.Document.FileSize)
	case m.Audio != nil:
		name := m.Audio.FileName
		if name == "" {
			name = fmt.Sprintf("audio_%d%s", m.MessageID, extFromMime(m.Audio.MimeType, ".mp3"))
		}
		return ref(m.Audio.FileID, name, m.Audio.FileSize)
	}

	var items []session.QueueItem
	for _, f := range strings.Fields(m.Text) {
		if !strings.HasPrefix(f, "http://") && !strings.HasPrefix(f, "https://") {
			continue
		}
		u, err := url.Parse(f)
		if err != nil || u.Host == "" {
			continue
		}
		items = append(items, session.RemoteURL{URL: u.String()})
	}
	return items
}

func extFromMime(mime, def string) string {
	switch strings.ToLower(mime) {
	case "video/mp4":
		return ".mp4"
	case "video/x-matroska":
		return ".mkv"
	case "video/quicktime":
		return ".mov"
	case "video/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4", "audio/x-m4a":
		return ".m4a"
	case "audio/ogg":
		return ".ogg"
	case "application/x-subrip":
		return ".srt"
	}
	return def
}

func queuedText(names []string, total, limit int) string {
	var b strings.Builder
	if len(names) == 1 {
		fmt.Fprintf(&b, "Queued: %s", names[0])
	} else {
		fmt.Fprintf(&b, "Queued %d files", len(names))
	}
	fmt.Fprintf(&b, " (%d/%d).", total, limit)
	if total >= 2 {
		b.WriteString(" Send more or /merge.")
	} else {
		b.WriteString(" Send at least one more.")
	}
	return b.String()
}

func queueText(sess session.Session, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s · State: %s · %d/%d\n", sess.Mode, sess.State, len(sess.Items), limit)
	for i, it := range sess.Items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, path.Base(it.Name()))
	}
	return strings.TrimRight(b.String(), "\n")
}

func rejectText(mode session.MergeMode, queued int) string {
	if queued == 0 || mode == session.VideoVideo {
		return "Expected a video file."
	}
	switch mode {
	case session.VideoAudio:
		return "Expected an audio file after the video."
	case session.VideoSubtitle:
		return "Expected a subtitle file (srt, ass, vtt) after the video."
	}
	return pipeline.UserMessage(session.ErrRejected)
}

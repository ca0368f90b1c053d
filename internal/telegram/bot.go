// Package telegram is the chat surface: commands, inline keyboards and the
// status message that shows pipeline progress.
package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wapuda/mergebot/internal/media"
	"github.com/wapuda/mergebot/internal/pipeline"
	"github.com/wapuda/mergebot/internal/progress"
	"github.com/wapuda/mergebot/internal/session"
	"github.com/wapuda/mergebot/internal/settings"
	"github.com/wapuda/mergebot/internal/upload"
)

// Bot is the subset of *tgbotapi.BotAPI the handlers use.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Prefs is satisfied by *settings.Store.
type Prefs interface {
	Get(ctx context.Context, userID int64) (settings.Prefs, error)
	Update(ctx context.Context, userID int64, fn func(*settings.Prefs)) (settings.Prefs, error)
}

// Fetcher downloads a single chat attachment (custom thumbnails).
type Fetcher interface {
	Fetch(ctx context.Context, item session.QueueItem, dir string, sink progress.Sink) (string, error)
}

// Pipeline is satisfied by *pipeline.Service.
type Pipeline interface {
	Enqueue(userID, chatID int64, mode session.MergeMode, item session.QueueItem) (session.Session, error)
	Snapshot(userID int64) (session.Session, bool)
	StartMerge(ctx context.Context, userID int64, engine media.Mode) (*pipeline.Run, error)
	StartUpload(ctx context.Context, userID int64, dest upload.Destination, asDocument bool) (*pipeline.Run, error)
	Cancel(userID int64) bool
	SetPrompt(userID int64, p session.Prompt) error
	SetOutputName(userID int64, name string) error
	SetThumbnail(userID int64, path string) error
}

// Resolver adapts the Bot API file endpoint to download.FileResolver.
type Resolver struct {
	Bot interface {
		GetFileDirectURL(fileID string) (string, error)
	}
}

// FileURL returns as soon as ctx is done. The getFile call itself cannot be
// cancelled and finishes in the background, bounded by the bot's HTTP client
// timeouts.
func (r Resolver) FileURL(ctx context.Context, fileID string) (string, error) {
	type result struct {
		url string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		u, err := r.Bot.GetFileDirectURL(fileID)
		ch <- result{u, err}
	}()
	select {
	case res := <-ch:
		return res.url, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type Options struct {
	Bot          Bot
	Prefs        Prefs
	Fetcher      Fetcher
	Destinations []upload.Destination
	EditThrottle time.Duration
	AlbumWindow  time.Duration
	MaxQueue     int
}

// Handler routes updates to the pipeline and reports back to the chat. It
// also implements pipeline.Notifier; Attach binds the two after construction.
type Handler struct {
	bot         Bot
	prefs       Prefs
	fetcher     Fetcher
	dests       []upload.Destination
	throttle    *progress.Throttle
	albumWindow time.Duration
	maxQueue    int
	svc         Pipeline

	mu     sync.Mutex
	status map[int64]int // user -> status message id

	gmu    sync.Mutex
	albums map[string]*album // key: userID:mediaGroupID
}

func New(o Options) *Handler {
	if o.EditThrottle <= 0 {
		o.EditThrottle = 4 * time.Second
	}
	if o.AlbumWindow <= 0 {
		o.AlbumWindow = 2 * time.Second
	}
	return &Handler{
		bot:         o.Bot,
		prefs:       o.Prefs,
		fetcher:     o.Fetcher,
		dests:       o.Destinations,
		throttle:    progress.NewThrottle(o.EditThrottle),
		albumWindow: o.AlbumWindow,
		maxQueue:    o.MaxQueue,
		status:      make(map[int64]int),
		albums:      make(map[string]*album),
	}
}

func (h *Handler) Attach(svc Pipeline) { h.svc = svc }

// Handle dispatches one update.
func (h *Handler) Handle(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil && upd.Message.From != nil && upd.Message.Chat != nil:
		h.onMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil:
		h.onCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) send(chatID int64, text string) tgbotapi.Message {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	sent, _ := h.bot.Send(msg)
	return sent
}

func (h *Handler) sendWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) tgbotapi.Message {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	msg.DisableWebPagePreview = true
	sent, _ := h.bot.Send(msg)
	return sent
}

func (h *Handler) edit(chatID int64, msgID int, text string) {
	e := tgbotapi.NewEditMessageText(chatID, msgID, text)
	e.DisableWebPagePreview = true
	_, _ = h.bot.Send(e)
}

func (h *Handler) answerCB(cq *tgbotapi.CallbackQuery, text string) {
	_, _ = h.bot.Request(tgbotapi.NewCallback(cq.ID, text))
}

func (h *Handler) getPrefs(ctx context.Context, userID int64) settings.Prefs {
	if h.prefs == nil {
		return settings.Defaults()
	}
	p, _ := h.prefs.Get(ctx, userID)
	return p
}

func (h *Handler) setStatus(userID int64, msgID int) {
	h.mu.Lock()
	h.status[userID] = msgID
	h.mu.Unlock()
}

func (h *Handler) statusFor(userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status[userID]
}

// takeStatus forgets the user's status message and returns its id.
func (h *Handler) takeStatus(chatID, userID int64) (int, bool) {
	h.mu.Lock()
	id, ok := h.status[userID]
	delete(h.status, userID)
	h.mu.Unlock()
	if ok {
		h.throttle.Forget(statusKey(chatID, id))
	}
	return id, ok
}

func statusKey(chatID int64, msgID int) string { return fmt.Sprintf("%d_%d", chatID, msgID) }

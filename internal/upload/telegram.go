package upload

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wapuda/mergebot/internal/progress"
)

// Sender is the subset of *tgbotapi.BotAPI used for uploads.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramUploader sends the artifact back into the chat.
type TelegramUploader struct {
	bot   Sender
	limit int64
}

// NewTelegramUploader uses limit as the size ceiling (standard or premium
// account tier).
func NewTelegramUploader(bot Sender, limit int64) *TelegramUploader {
	return &TelegramUploader{bot: bot, limit: limit}
}

func (t *TelegramUploader) Upload(ctx context.Context, req Request, sink progress.Sink) (Receipt, error) {
	st, err := os.Stat(req.Path)
	if err != nil {
		return Receipt{}, err
	}
	if t.limit > 0 && st.Size() > t.limit {
		return Receipt{}, &Error{
			Destination: Telegram,
			Reason:      fmt.Sprintf("%s is larger than the %s limit", progress.HumanBytes(float64(st.Size())), progress.HumanBytes(float64(t.limit))),
			Err:         ErrTooLarge,
		}
	}

	f, err := os.Open(req.Path)
	if err != nil {
		return Receipt{}, err
	}
	defer f.Close()

	name := req.FileName
	if name == "" {
		name = filepath.Base(req.Path)
	}
	tr := progress.NewTracker(sink, "Uploading to Telegram", name, progress.Bytes, float64(st.Size()))
	tr.Start()
	file := tgbotapi.FileReader{Name: name, Reader: ctxReader{ctx: ctx, r: &progress.CountingReader{R: f, Tracker: tr}}}

	var thumb tgbotapi.RequestFileData
	if req.Thumbnail != "" {
		thumb = tgbotapi.FilePath(req.Thumbnail)
	}

	var msg tgbotapi.Chattable
	if req.AsDocument {
		doc := tgbotapi.NewDocument(req.ChatID, file)
		doc.Caption = req.Caption
		doc.Thumb = thumb
		msg = doc
	} else {
		v := tgbotapi.NewVideo(req.ChatID, file)
		v.Caption = req.Caption
		v.Thumb = thumb
		v.Duration = int(math.Round(req.Duration))
		v.SupportsStreaming = true
		msg = v
	}

	sent, err := t.bot.Send(msg)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Destination: Telegram, MessageID: sent.MessageID, Size: st.Size()}, nil
}

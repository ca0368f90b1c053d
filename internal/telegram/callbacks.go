package telegram

import (
	"context"
	"slices"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/wapuda/mergebot/internal/media"
	"github.com/wapuda/mergebot/internal/pipeline"
	"github.com/wapuda/mergebot/internal/session"
	"github.com/wapuda/mergebot/internal/settings"
	"github.com/wapuda/mergebot/internal/upload"
)

func (h *Handler) onCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	data := cq.Data
	userID := cq.From.ID
	chatID := cq.Message.Chat.ID
	msgID := cq.Message.MessageID

	log.Info().Int64("user_id", userID).Str("data", data).Msg("callback")

	switch {
	case strings.HasPrefix(data, cbUpload):
		dest, ok := upload.ParseDestination(strings.TrimPrefix(data, cbUpload))
		if !ok || !h.available(dest) {
			h.answerCB(cq, "Destination not available")
			return
		}
		h.answerCB(cq, "Uploading to "+destTitle(dest))
		p := h.getPrefs(ctx, userID)
		h.startUploadIn(ctx, userID, chatID, msgID, dest, p.AsDocument)

	case data == cbRename:
		if err := h.svc.SetPrompt(userID, session.PromptFilename); err != nil {
			h.answerCB(cq, pipeline.UserMessage(err))
			return
		}
		h.answerCB(cq, "")
		h.send(chatID, "Send the new file name.")

	case data == cbThumb:
		if err := h.svc.SetPrompt(userID, session.PromptThumbnail); err != nil {
			h.answerCB(cq, pipeline.UserMessage(err))
			return
		}
		h.answerCB(cq, "")
		h.send(chatID, "Send a photo to use as the thumbnail.")

	case data == cbCancel:
		h.svc.Cancel(userID)
		h.answerCB(cq, "Cancelled")
		h.edit(chatID, msgID, "Cancelled. Send files to start again.")

	case data == cbClose:
		h.answerCB(cq, "")
		h.edit(chatID, msgID, "Settings saved.")

	case strings.HasPrefix(data, "set:"):
		p, ok := h.updatePrefs(ctx, userID, data)
		if !ok {
			h.answerCB(cq, "Settings unavailable")
			return
		}
		h.answerCB(cq, "Saved")
		e := tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID, settingsText(p), settingsKeyboard(p, h.dests))
		_, _ = h.bot.Send(e)

	default:
		h.answerCB(cq, "")
	}
}

// updatePrefs applies one settings button.
func (h *Handler) updatePrefs(ctx context.Context, userID int64, data string) (settings.Prefs, bool) {
	if h.prefs == nil {
		return settings.Defaults(), false
	}
	p, err := h.prefs.Update(ctx, userID, func(p *settings.Prefs) {
		switch {
		case strings.HasPrefix(data, cbMode):
			p.MergeMode = session.ParseMergeMode(strings.TrimPrefix(data, cbMode))
		case strings.HasPrefix(data, cbEngine):
			p.Engine = media.ParseMode(strings.TrimPrefix(data, cbEngine))
		case strings.HasPrefix(data, cbDest):
			d, _ := upload.ParseDestination(strings.TrimPrefix(data, cbDest))
			p.UploadTo = d
		case data == cbDocument:
			p.AsDocument = !p.AsDocument
		}
	})
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("settings update failed")
		return p, false
	}
	return p, true
}

func (h *Handler) available(d upload.Destination) bool {
	return slices.Contains(h.dests, d)
}

func (h *Handler) startUpload(ctx context.Context, userID, chatID int64, dest upload.Destination, asDocument bool) {
	h.startUploadIn(ctx, userID, chatID, 0, dest, asDocument)
}

// startUploadIn uses msgID as the status message, or sends a new one when 0.
func (h *Handler) startUploadIn(ctx context.Context, userID, chatID int64, msgID int, dest upload.Destination, asDocument bool) {
	text := "Uploading to " + destTitle(dest) + "…"
	if msgID == 0 {
		msgID = h.send(chatID, text).MessageID
	} else {
		h.edit(chatID, msgID, text)
	}
	h.setStatus(userID, msgID)
	if _, err := h.svc.StartUpload(ctx, userID, dest, asDocument); err != nil {
		h.takeStatus(chatID, userID)
		h.edit(chatID, msgID, "❌ "+pipeline.UserMessage(err))
		return
	}
	log.Info().Int64("user_id", userID).Str("dest", string(dest)).Msg("upload requested")
}

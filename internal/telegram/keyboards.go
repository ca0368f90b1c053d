package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wapuda/mergebot/internal/media"
	"github.com/wapuda/mergebot/internal/session"
	"github.com/wapuda/mergebot/internal/settings"
	"github.com/wapuda/mergebot/internal/upload"
)

const (
	cbUpload   = "up:"
	cbRename   = "rename"
	cbThumb    = "thumb"
	cbCancel   = "cancel"
	cbMode     = "set:mode:"
	cbEngine   = "set:engine:"
	cbDest     = "set:dest:"
	cbDocument = "set:doc"
	cbClose    = "set:close"
)

func destTitle(d upload.Destination) string {
	switch d {
	case upload.Telegram:
		return "Telegram"
	case upload.GoFile:
		return "GoFile"
	case upload.Drive:
		return "Google Drive"
	}
	return "ask"
}

func uploadKeyboard(dests []upload.Destination) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for _, d := range dests {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(destTitle(d), cbUpload+string(d)))
	}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✏️ Rename", cbRename),
			tgbotapi.NewInlineKeyboardButtonData("🖼 Thumbnail", cbThumb),
		),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Cancel", cbCancel)),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func mark(on bool, label string) string {
	if on {
		return "✅ " + label
	}
	return label
}

func settingsText(p settings.Prefs) string {
	dest := "ask"
	if p.UploadTo != "" {
		dest = destTitle(p.UploadTo)
	}
	return fmt.Sprintf("Settings\nMerge mode: %s\nEngine: %s\nUpload to: %s\nSend as document: %t",
		p.MergeMode, p.Engine, dest, p.AsDocument)
}

func settingsKeyboard(p settings.Prefs, dests []upload.Destination) tgbotapi.InlineKeyboardMarkup {
	modes := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(mark(p.MergeMode == session.VideoVideo, "Video+Video"), cbMode+string(session.VideoVideo)),
		tgbotapi.NewInlineKeyboardButtonData(mark(p.MergeMode == session.VideoAudio, "Video+Audio"), cbMode+string(session.VideoAudio)),
		tgbotapi.NewInlineKeyboardButtonData(mark(p.MergeMode == session.VideoSubtitle, "Video+Subs"), cbMode+string(session.VideoSubtitle)),
	)
	var engines []tgbotapi.InlineKeyboardButton
	for _, m := range []media.Mode{media.ModeAuto, media.ModeFastOnly, media.ModeRobustOnly} {
		engines = append(engines, tgbotapi.NewInlineKeyboardButtonData(mark(p.Engine == m, m.String()), cbEngine+m.String()))
	}
	destRow := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData(mark(p.UploadTo == "", "Ask"), cbDest),
	}
	for _, d := range dests {
		destRow = append(destRow, tgbotapi.NewInlineKeyboardButtonData(mark(p.UploadTo == d, destTitle(d)), cbDest+string(d)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		modes,
		engines,
		destRow,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mark(p.AsDocument, "As document"), cbDocument),
			tgbotapi.NewInlineKeyboardButtonData("Close", cbClose),
		),
	)
}

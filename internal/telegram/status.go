package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wapuda/mergebot/internal/pipeline"
	"github.com/wapuda/mergebot/internal/progress"
	"github.com/wapuda/mergebot/internal/session"
	"github.com/wapuda/mergebot/internal/upload"
)

// Sink edits the user's status message, at most once per EditThrottle.
func (h *Handler) Sink(userID, chatID int64) progress.Sink {
	msgID := h.statusFor(userID)
	if msgID == 0 {
		return progress.Discard
	}
	return h.throttle.Throttled(statusKey(chatID, msgID), progress.SinkFunc(func(s progress.State) {
		h.edit(chatID, msgID, progress.Render(s))
	}))
}

func (h *Handler) MergeDone(userID, chatID int64, a session.Artifact) {
	summary := artifactSummary(a)
	if id, ok := h.takeStatus(chatID, userID); ok {
		h.edit(chatID, id, "Merge complete ✅\n"+summary)
	}
	log.Info().Int64("user_id", userID).Str("strategy", string(a.Strategy)).Msg("merge delivered")

	ctx := context.Background()
	p := h.getPrefs(ctx, userID)
	if p.UploadTo != "" && h.available(p.UploadTo) {
		h.startUpload(ctx, userID, chatID, p.UploadTo, p.AsDocument)
		return
	}
	h.sendWithKeyboard(chatID, "Where should I upload it?\n"+summary, uploadKeyboard(h.dests))
}

func (h *Handler) UploadDone(userID, chatID int64, r upload.Receipt) {
	text := fmt.Sprintf("Uploaded to %s ✅ (%s)", destTitle(r.Destination), progress.HumanBytes(float64(r.Size)))
	if r.Link != "" {
		text += "\n" + r.Link
	}
	if id, ok := h.takeStatus(chatID, userID); ok {
		h.edit(chatID, id, text)
	} else {
		h.send(chatID, text)
	}
	log.Info().Int64("user_id", userID).Str("dest", string(r.Destination)).Msg("upload delivered")
}

func (h *Handler) Failed(userID, chatID int64, err error) {
	text := "❌ " + pipeline.UserMessage(err)
	if id, ok := h.takeStatus(chatID, userID); ok {
		h.edit(chatID, id, text)
		return
	}
	h.send(chatID, text)
}

func artifactSummary(a session.Artifact) string {
	var parts []string
	parts = append(parts, progress.HumanBytes(float64(a.Size)))
	if a.Duration > 0 {
		parts = append(parts, progress.HumanDuration(time.Duration(a.Duration*float64(time.Second))))
	}
	if a.Width > 0 && a.Height > 0 {
		parts = append(parts, fmt.Sprintf("%dx%d", a.Width, a.Height))
	}
	if a.Strategy != "" {
		parts = append(parts, string(a.Strategy))
	}
	return strings.Join(parts, " · ")
}

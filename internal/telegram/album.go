package telegram

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// album collects the acknowledgements for one media group so the user gets a
// single reply instead of one per file.
type album struct {
	names []string
	total int
	timer *time.Timer
}

func (h *Handler) addToAlbum(userID, chatID int64, mgid string, names []string, total int) {
	key := fmt.Sprintf("%d:%s", userID, mgid)

	h.gmu.Lock()
	defer h.gmu.Unlock()

	a, ok := h.albums[key]
	if !ok {
		a = &album{}
		h.albums[key] = a
	}
	a.names = append(a.names, names...)
	if total > a.total {
		a.total = total
	}

	// (re)start debounce
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(h.albumWindow, func() {
		h.finalizeAlbum(chatID, key)
	})
}

func (h *Handler) finalizeAlbum(chatID int64, key string) {
	h.gmu.Lock()
	a, ok := h.albums[key]
	if ok {
		delete(h.albums, key)
	}
	h.gmu.Unlock()
	if !ok || len(a.names) == 0 {
		return
	}

	log.Info().Str("album", key).Int("count", len(a.names)).Msg("album collected")
	h.send(chatID, queuedText(a.names, a.total, h.maxQueue))
}

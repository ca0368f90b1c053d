package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/wapuda/mergebot/internal/config"
	"github.com/wapuda/mergebot/internal/download"
	"github.com/wapuda/mergebot/internal/jobs"
	logx "github.com/wapuda/mergebot/internal/logs"
	"github.com/wapuda/mergebot/internal/media"
	"github.com/wapuda/mergebot/internal/netx"
	"github.com/wapuda/mergebot/internal/pipeline"
	"github.com/wapuda/mergebot/internal/session"
	"github.com/wapuda/mergebot/internal/settings"
	"github.com/wapuda/mergebot/internal/telegram"
	"github.com/wapuda/mergebot/internal/upload"
)

const shutdownGrace = 30 * time.Second

func newBot(c config.Config) (*tgbotapi.BotAPI, error) {
	endpoint := tgbotapi.APIEndpoint
	if c.BotAPIEndpoint != "" {
		endpoint = c.BotAPIEndpoint
	}
	// long polls hold the header for u.Timeout and big sendVideo calls are
	// processed server side before the reply
	client := netx.NewHTTPClient(netx.Options{ResponseHeaderTimeout: 5 * time.Minute})
	return tgbotapi.NewBotAPIWithClient(c.BotToken, endpoint, client)
}

func main() {
	c := config.Load()

	logx.Setup(logx.FromEnv("bot"))
	log.Info().Msg("bot starting")

	if c.BotToken == "" {
		log.Fatal().Msg("BOT_TOKEN is required")
	}
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", c.DataDir).Msg("data dir")
	}

	bot, err := newBot(c)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram auth")
	}
	bot.Debug = false
	log.Info().Str("username", bot.Self.UserName).Msg("bot authorized")

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	defer rdb.Close()
	asClient := asynq.NewClient(asynq.RedisClientOpt{Addr: c.RedisAddr})
	defer asClient.Close()

	engine := media.NewEngine(media.Config{
		FFmpegPath:   c.FFmpegPath,
		FFprobePath:  c.FFprobePath,
		VideoCodec:   c.VideoCodec,
		CRF:          c.VideoCRF,
		Preset:       c.Preset,
		AudioCodec:   c.AudioCodec,
		AudioBitrate: c.AudioBitrate,
		ProbeTimeout: c.ProbeTimeout,
		Timeout:      c.MergeTimeout,
	})

	uploaders := map[upload.Destination]upload.Uploader{
		upload.Telegram: upload.NewTelegramUploader(bot, c.TelegramLimit()),
		upload.GoFile: upload.NewGoFileClient(upload.GoFileOptions{
			APIBase: c.GoFileAPI,
			Token:   c.GoFileToken,
			Client:  netx.NewHTTPClient(netx.Options{}),
		}),
	}
	if _, err := exec.LookPath(c.RclonePath); err == nil {
		uploaders[upload.Drive] = upload.NewDriveUploader(upload.DriveOptions{
			RclonePath: c.RclonePath,
			ConfigPath: c.RcloneConfig,
			Remote:     c.RcloneRemote,
			Folder:     c.DriveFolder,
		})
	} else {
		log.Warn().Str("rclone", c.RclonePath).Msg("rclone not found; drive uploads disabled")
	}
	dispatcher := upload.NewDispatcher(uploaders)
	dispatcher.Timeout = c.UploadTimeout

	downloader := download.NewManager(download.Options{
		Client:      netx.NewHTTPClient(netx.Options{}),
		Resolver:    telegram.Resolver{Bot: bot},
		IdleTimeout: c.DownloadTimeout,
		Concurrency: c.DownloadConcurrency,
	})

	h := telegram.New(telegram.Options{
		Bot:          bot,
		Prefs:        settings.NewStore(rdb),
		Fetcher:      downloader,
		Destinations: dispatcher.Available(),
		EditThrottle: c.EditThrottle,
		MaxQueue:     c.MaxQueueSize,
	})
	store := session.NewStore(c.MaxQueueSize)
	svc := pipeline.New(pipeline.Options{
		DataDir:  c.DataDir,
		Store:    store,
		Download: downloader,
		Merge:    media.NewOrchestrator(engine.Fast(), engine.Robust()),
		Tools:    engine,
		Upload:   dispatcher,
		Purger:   jobs.NewAsynqPurger(asClient),
		Notify:   h,
	})
	h.Attach(svc)

	// health endpoint
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "sessions": store.Len()})
		})
		log.Info().Str("addr", c.HealthAddr).Msg("health endpoint listening")
		if err := http.ListenAndServe(c.HealthAddr, mux); err != nil {
			log.Error().Err(err).Msg("health endpoint stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go svc.KeepAlive(ctx, c.KeepAliveInterval, c.UploadChoiceTTL)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			log.Info().Int("sessions", store.Len()).Msg("bot stopping")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			if err := svc.Shutdown(sctx); err != nil {
				log.Warn().Err(err).Msg("runs still active at exit")
			}
			cancel()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			h.Handle(ctx, upd)
		}
	}
}

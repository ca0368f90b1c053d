// Package config loads the bot and worker settings from .env and the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const mib = 1024 * 1024

type Config struct {
	BotToken       string
	BotAPIEndpoint string // custom Bot API server, "" = api.telegram.org
	HealthAddr     string
	RedisAddr      string
	DataDir        string

	FFmpegPath   string
	FFprobePath  string
	VideoCodec   string
	VideoCRF     int
	Preset       string
	AudioCodec   string
	AudioBitrate string

	ProbeTimeout        time.Duration
	MergeTimeout        time.Duration
	DownloadTimeout     time.Duration
	DownloadConcurrency int
	MaxQueueSize        int
	EditThrottle        time.Duration

	IsPremium               bool
	TelegramUploadMaxBytes  int64
	TelegramPremiumMaxBytes int64

	GoFileAPI   string
	GoFileToken string

	RclonePath   string
	RcloneConfig string
	RcloneRemote string
	DriveFolder  string

	UploadTimeout     time.Duration
	UploadChoiceTTL   time.Duration // merged files nobody picks a destination for are dropped after this
	KeepAliveInterval time.Duration // how often live run dirs are touched so the sweep skips them

	WorkerConcurrency int
	SweepMaxAge       time.Duration
	SweepCron         string
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func mustBool(k string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return def
}

func mustDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		// bare numbers are seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

// Load reads .env (if present) and the environment.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	return Config{
		BotToken:       os.Getenv("BOT_TOKEN"),
		BotAPIEndpoint: getenv("BOT_API_ENDPOINT", ""),
		HealthAddr:     getenv("HEALTH_ADDR", ":8080"),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		DataDir:        getenv("DATA_DIR", "downloads"),

		FFmpegPath:   getenv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:  getenv("FFPROBE_PATH", "ffprobe"),
		VideoCodec:   getenv("VIDEO_CODEC", "libx264"),
		VideoCRF:     mustInt("VIDEO_CRF", 23),
		Preset:       getenv("FFMPEG_PRESET", "fast"),
		AudioCodec:   getenv("AUDIO_CODEC", "aac"),
		AudioBitrate: getenv("AUDIO_BITRATE", "192k"),

		ProbeTimeout:        mustDuration("PROBE_TIMEOUT", 30*time.Second),
		MergeTimeout:        mustDuration("MERGE_TIMEOUT", 30*time.Minute),
		DownloadTimeout:     mustDuration("DOWNLOAD_TIMEOUT", 5*time.Minute),
		DownloadConcurrency: mustInt("DOWNLOAD_CONCURRENCY", 1),
		MaxQueueSize:        mustInt("MAX_QUEUE_SIZE", 10),
		EditThrottle:        mustDuration("EDIT_THROTTLE", 4*time.Second),

		IsPremium:               mustBool("IS_PREMIUM", false),
		TelegramUploadMaxBytes:  int64(mustInt("TG_UPLOAD_LIMIT_MB", 2000)) * mib,
		TelegramPremiumMaxBytes: int64(mustInt("TG_PREMIUM_UPLOAD_LIMIT_MB", 4000)) * mib,

		GoFileAPI:   strings.TrimRight(getenv("GOFILE_API", "https://api.gofile.io"), "/"),
		GoFileToken: os.Getenv("GOFILE_TOKEN"),

		RclonePath:   getenv("RCLONE_PATH", "rclone"),
		RcloneConfig: getenv("RCLONE_CONFIG", ""),
		RcloneRemote: getenv("RCLONE_REMOTE", "gdrive"),
		DriveFolder:  getenv("GDRIVE_FOLDER", "mergebot"),

		UploadTimeout:     mustDuration("UPLOAD_TIMEOUT", time.Hour),
		UploadChoiceTTL:   mustDuration("UPLOAD_CHOICE_TTL", time.Hour),
		KeepAliveInterval: mustDuration("WORKSPACE_KEEPALIVE", 10*time.Minute),

		WorkerConcurrency: mustInt("WORKER_CONCURRENCY", 2),
		SweepMaxAge:       mustDuration("SWEEP_MAX_AGE", 2*time.Hour),
		SweepCron:         getenv("SWEEP_CRON", "@every 15m"),
	}
}

// TelegramLimit is the upload ceiling for the configured account class.
func (c Config) TelegramLimit() int64 {
	if c.IsPremium {
		return c.TelegramPremiumMaxBytes
	}
	return c.TelegramUploadMaxBytes
}

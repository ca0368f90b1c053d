package logx

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey int

const (
	CtxKeySessionID ctxKey = iota
	CtxKeyUserID
)

// Config via env or code
type Config struct {
	Service        string // "bot", "worker" or "localtest"
	Level          string // debug|info|warn|error
	Format         string // json|console
	FilePath       string // "" = stdout only
	FileMaxSizeMB  int
	FileMaxBackups int
	FileMaxAgeDays int
	FileCompress   bool
	SampleEveryN   int // >0 keeps 1/N events
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		v = strings.ToLower(v)
		return v == "1" || v == "true" || v == "yes"
	}
	return def
}

// FromEnv builds the logging config for one binary.
func FromEnv(service string) Config {
	return Config{
		Service:        service,
		Level:          strings.ToLower(getenv("LOG_LEVEL", "info")),
		Format:         strings.ToLower(getenv("LOG_FORMAT", "json")),
		FilePath:       getenv("LOG_FILE", ""),
		FileMaxSizeMB:  getenvInt("LOG_FILE_MAX_SIZE", 50),
		FileMaxBackups: getenvInt("LOG_FILE_MAX_BACKUPS", 3),
		FileMaxAgeDays: getenvInt("LOG_FILE_MAX_AGE", 7),
		FileCompress:   getenvBool("LOG_FILE_COMPRESS", true),
		SampleEveryN:   getenvInt("LOG_SAMPLE_EVERY", 0),
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(c Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if c.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}
	if c.FilePath != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   c.FilePath,
			MaxSize:    c.FileMaxSizeMB,
			MaxBackups: c.FileMaxBackups,
			MaxAge:     c.FileMaxAgeDays,
			Compress:   c.FileCompress,
		})
	}

	logger := zerolog.New(out).Level(lvl).With().
		Timestamp().
		Str("svc", c.Service).
		Logger()
	if c.SampleEveryN > 0 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(c.SampleEveryN)})
	}

	log.Logger = logger
	return logger
}

// WithRun tags ctx with the user and pipeline run it belongs to.
func WithRun(ctx context.Context, userID int64, runID string) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, userID)
	if runID != "" {
		ctx = context.WithValue(ctx, CtxKeySessionID, runID)
	}
	return ctx
}

// FromCtx returns the global logger with sid/uid fields taken from ctx.
func FromCtx(ctx context.Context) zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return l
	}
	w := l.With()
	if v, ok := ctx.Value(CtxKeySessionID).(string); ok {
		w = w.Str("sid", v)
	}
	if v, ok := ctx.Value(CtxKeyUserID).(int64); ok {
		w = w.Int64("uid", v)
	}
	return w.Logger()
}

package main

import (
	"os"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/wapuda/mergebot/internal/config"
	"github.com/wapuda/mergebot/internal/jobs"
	logx "github.com/wapuda/mergebot/internal/logs"
)

func main() {
	c := config.Load()

	logx.Setup(logx.FromEnv("worker"))
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", c.DataDir).Msg("data dir")
	}

	handlers, err := jobs.NewHandlers(c.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("jobs handlers")
	}

	redisOpt := asynq.RedisClientOpt{Addr: c.RedisAddr}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: c.WorkerConcurrency,
	})

	scheduler := asynq.NewScheduler(redisOpt, nil)
	sweep, err := jobs.SweepTask(c.SweepMaxAge)
	if err != nil {
		log.Fatal().Err(err).Msg("sweep task")
	}
	entry, err := scheduler.Register(c.SweepCron, sweep)
	if err != nil {
		log.Fatal().Err(err).Str("cron", c.SweepCron).Msg("register sweep")
	}
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("scheduler start")
	}
	defer scheduler.Shutdown()

	log.Info().
		Str("data_dir", c.DataDir).
		Str("sweep_cron", c.SweepCron).
		Str("sweep_entry", entry).
		Dur("sweep_max_age", c.SweepMaxAge).
		Msg("worker starting")
	if err := srv.Run(handlers.Mux()); err != nil {
		log.Fatal().Err(err).Msg("worker stopped")
	}
}

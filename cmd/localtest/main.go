package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wapuda/mergebot/internal/config"
	logx "github.com/wapuda/mergebot/internal/logs"
	"github.com/wapuda/mergebot/internal/media"
	"github.com/wapuda/mergebot/internal/progress"
)

func main() {
	mode := flag.String("mode", "auto", "merge engine: auto, fast or robust")
	out := flag.String("o", "merged.mp4", "output file")
	flag.Parse()
	if flag.NArg() < 2 {
		fmt.Println("Usage: go run ./cmd/localtest [-mode auto|fast|robust] [-o out.mp4] <in1> <in2> [...]")
		os.Exit(2)
	}

	c := config.Load()
	logx.Setup(logx.FromEnv("localtest"))

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
	orch := media.NewOrchestrator(engine.Fast(), engine.Robust())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	throttle := progress.NewThrottle(time.Second)
	sink := throttle.Throttled("stdout", progress.SinkFunc(func(s progress.State) {
		fmt.Printf("%s\n\n", progress.Render(s))
	}))

	res, err := orch.Merge(ctx, media.MergeJob{Inputs: flag.Args(), Output: *out, Mode: media.ParseMode(*mode)}, sink)
	if err != nil {
		if d := media.Diagnostic(err); d != "" {
			fmt.Fprintln(os.Stderr, d)
		}
		log.Fatal().Err(err).Msg("merge failed")
	}
	if res.FastErr != nil {
		log.Warn().Err(res.FastErr).Msg("fast merge fell back")
	}
	info, err := engine.Prober().Probe(ctx, res.Output)
	if err != nil {
		log.Warn().Err(err).Msg("probe output")
	}
	fmt.Printf("Generated: %s (%s, %.1fs, %dx%d)\n", res.Output, res.Strategy, info.Duration, info.Width, info.Height)
}

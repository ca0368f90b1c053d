package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alessio/shellescape"
	"github.com/rs/zerolog"

	logx "github.com/wapuda/mergebot/internal/logs"
	"github.com/wapuda/mergebot/internal/progress"
)

type DriveOptions struct {
	RclonePath string
	ConfigPath string // rclone.conf, "" = rclone default
	Remote     string // configured remote name, e.g. gdrive
	Folder     string
}

// DriveUploader copies files to Google Drive with rclone.
type DriveUploader struct {
	o DriveOptions
}

func NewDriveUploader(o DriveOptions) *DriveUploader {
	if o.RclonePath == "" {
		o.RclonePath = "rclone"
	}
	return &DriveUploader{o: o}
}

// rcloneLog is one --use-json-log line. Stats lines carry the stats object.
type rcloneLog struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
	Stats *struct {
		Bytes      int64   `json:"bytes"`
		TotalBytes int64   `json:"totalBytes"`
		Speed      float64 `json:"speed"`
	} `json:"stats"`
}

func (d *DriveUploader) target(name string) string {
	folder := strings.Trim(d.o.Folder, "/")
	if folder == "" {
		return d.o.Remote + ":" + name
	}
	return d.o.Remote + ":" + folder + "/" + name
}

func (d *DriveUploader) args(args ...string) []string {
	if d.o.ConfigPath != "" {
		args = append(args, "--config", d.o.ConfigPath)
	}
	return args
}

func (d *DriveUploader) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, d.o.RclonePath, args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = 10 * time.Second
	logger := logx.FromCtx(ctx)
	logger.Debug().Str("cmd", shellescape.QuoteCommand(append([]string{d.o.RclonePath}, args...))).Msg("exec")
	return cmd
}

func (d *DriveUploader) Upload(ctx context.Context, req Request, sink progress.Sink) (Receipt, error) {
	st, err := os.Stat(req.Path)
	if err != nil {
		return Receipt{}, err
	}
	name := req.FileName
	if name == "" {
		name = filepath.Base(req.Path)
	}
	target := d.target(name)

	tr := progress.NewTracker(sink, "Uploading to Drive", name, progress.Bytes, float64(st.Size()))
	tr.Start()

	cmd := d.command(ctx, d.args("copyto", req.Path, target, "--use-json-log", "--stats", "2s", "-v")...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Receipt{}, err
	}
	if err := cmd.Start(); err != nil {
		return Receipt{}, err
	}

	var lastErr string
	lw := logx.NewLineWriter(logx.FromCtx(ctx), "rclone", zerolog.DebugLevel)
	lw.Filter = func(line string) bool {
		var l rcloneLog
		if json.Unmarshal([]byte(line), &l) != nil {
			return false
		}
		if l.Level == "error" || l.Level == "critical" {
			lastErr = l.Msg
		}
		if l.Stats == nil {
			return false
		}
		if l.Stats.TotalBytes > 0 {
			tr.SetTotal(float64(l.Stats.TotalBytes))
		}
		tr.Update(float64(l.Stats.Bytes))
		return true
	}
	lw.Pipe(stderr)

	if err := cmd.Wait(); err != nil {
		if lastErr != "" {
			return Receipt{}, fmt.Errorf("rclone copy: %s", lastErr)
		}
		return Receipt{}, fmt.Errorf("rclone copy: %w", err)
	}
	tr.Update(float64(st.Size()))

	var out, errOut bytes.Buffer
	link := d.command(ctx, d.args("link", target)...)
	link.Stdout, link.Stderr = &out, &errOut
	if err := link.Run(); err != nil {
		// the copy succeeded, a missing share link is not fatal
		logger := logx.FromCtx(ctx)
		logger.Warn().Err(err).Str("stderr", strings.TrimSpace(errOut.String())).Msg("rclone link failed")
		return Receipt{Destination: Drive, Link: target, Size: st.Size()}, nil
	}
	return Receipt{Destination: Drive, Link: strings.TrimSpace(out.String()), Size: st.Size()}, nil
}

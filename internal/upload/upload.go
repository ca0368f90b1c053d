// Package upload sends a merged file to Telegram, GoFile or Google Drive.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	logx "github.com/wapuda/mergebot/internal/logs"
	"github.com/wapuda/mergebot/internal/progress"
)

type Destination string

const (
	Telegram Destination = "telegram"
	GoFile   Destination = "gofile"
	Drive    Destination = "drive"
)

func ParseDestination(s string) (Destination, bool) {
	switch d := Destination(strings.ToLower(strings.TrimSpace(s))); d {
	case Telegram, GoFile, Drive:
		return d, true
	}
	return "", false
}

var (
	ErrUploadFailed = errors.New("upload failed")
	ErrTooLarge     = errors.New("file exceeds the Telegram size limit")
)

const maxReasonLen = 300

// Error is a failed upload to one destination.
type Error struct {
	Destination Destination
	Reason      string
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload to %s: %s", e.Destination, e.Reason)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUploadFailed}
	}
	return []error{ErrUploadFailed, e.Err}
}

// Request describes the artifact to upload.
type Request struct {
	Path       string
	FileName   string // name shown to the user, defaults to the base of Path
	ChatID     int64
	Caption    string
	Thumbnail  string // JPEG path, optional
	AsDocument bool
	Duration   float64
}

// Receipt is what the user gets back.
type Receipt struct {
	Destination Destination
	Link        string // empty for Telegram
	MessageID   int
	Size        int64
}

type Uploader interface {
	Upload(ctx context.Context, req Request, sink progress.Sink) (Receipt, error)
}

// Dispatcher routes requests to the uploader for each destination and always
// removes the local artifact afterwards.
type Dispatcher struct {
	uploaders map[Destination]Uploader

	// Timeout caps one upload, zero means no limit.
	Timeout time.Duration
}

func NewDispatcher(uploaders map[Destination]Uploader) *Dispatcher {
	return &Dispatcher{uploaders: uploaders}
}

// Available lists configured destinations in display order.
func (d *Dispatcher) Available() []Destination {
	var out []Destination
	for _, dest := range []Destination{Telegram, GoFile, Drive} {
		if _, ok := d.uploaders[dest]; ok {
			out = append(out, dest)
		}
	}
	return out
}

func (d *Dispatcher) Upload(ctx context.Context, req Request, dest Destination, sink progress.Sink) (Receipt, error) {
	defer func() {
		_ = os.Remove(req.Path)
		if req.Thumbnail != "" {
			_ = os.Remove(req.Thumbnail)
		}
	}()

	logger := logx.FromCtx(ctx).With().Str("dest", string(dest)).Logger()

	u, ok := d.uploaders[dest]
	if !ok {
		return Receipt{}, &Error{Destination: dest, Reason: "destination not configured"}
	}
	uctx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		uctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	rc, err := u.Upload(uctx, req, sink)
	if err != nil {
		if ctx.Err() != nil {
			return Receipt{}, ctx.Err()
		}
		if errors.Is(uctx.Err(), context.DeadlineExceeded) {
			logger.Error().Err(err).Dur("timeout", d.Timeout).Msg("upload timed out")
			return Receipt{}, &Error{Destination: dest, Reason: "timed out after " + d.Timeout.String(), Err: context.DeadlineExceeded}
		}
		logger.Error().Err(err).Msg("upload failed")
		var ue *Error
		if errors.As(err, &ue) {
			return Receipt{}, err
		}
		return Receipt{}, &Error{Destination: dest, Reason: truncate(err.Error(), maxReasonLen), Err: err}
	}
	rc.Destination = dest
	logger.Info().Str("link", rc.Link).Int64("bytes", rc.Size).Msg("upload done")
	return rc, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "…"
}

// ctxReader fails reads once ctx is done so blocking client libraries stop
// consuming the file.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Package download materialises queue items as local files.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	logx "github.com/wapuda/mergebot/internal/logs"
	"github.com/wapuda/mergebot/internal/netx"
	"github.com/wapuda/mergebot/internal/progress"
	"github.com/wapuda/mergebot/internal/session"
)

const (
	chunkSize   = 1 << 20
	maxNameLen  = 120
	defaultIdle = 5 * time.Minute
)

// FileResolver turns a platform file id into a direct download URL.
type FileResolver interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}

type Options struct {
	Client      *http.Client
	Resolver    FileResolver
	IdleTimeout time.Duration // abort when no bytes arrive for this long
	Concurrency int           // parallel fetches in FetchAll, 1 = sequential
}

type Manager struct {
	client      *http.Client
	resolver    FileResolver
	idle        time.Duration
	concurrency int
}

func NewManager(o Options) *Manager {
	m := &Manager{client: o.Client, resolver: o.Resolver, idle: o.IdleTimeout, concurrency: o.Concurrency}
	if m.client == nil {
		m.client = netx.NewHTTPClient(netx.Options{})
	}
	if m.idle <= 0 {
		m.idle = defaultIdle
	}
	if m.concurrency < 1 {
		m.concurrency = 1
	}
	return m
}

// Fetch downloads one item into dir and returns the local path.
func (m *Manager) Fetch(ctx context.Context, item session.QueueItem, dir string, sink progress.Sink) (string, error) {
	return m.fetch(ctx, item, filepath.Join(dir, SanitizeName(item.Name())), sink)
}

// FetchAll downloads items into dir, at most Concurrency at a time. Paths are
// returned in queue order. On failure every file already written is removed
// and the remaining fetches are cancelled.
func (m *Manager) FetchAll(ctx context.Context, items []session.QueueItem, dir string, sinkFor func(i int) progress.Sink) ([]string, error) {
	paths := make([]string, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			var sink progress.Sink
			if sinkFor != nil {
				sink = sinkFor(i)
			}
			name := fmt.Sprintf("%02d_%s", i+1, SanitizeName(it.Name()))
			p, err := m.fetch(gctx, it, filepath.Join(dir, name), sink)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, p := range paths {
			if p != "" {
				_ = os.Remove(p)
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return paths, nil
}

func (m *Manager) fetch(ctx context.Context, item session.QueueItem, dest string, sink progress.Sink) (string, error) {
	var (
		src  string
		hint int64
	)
	switch it := item.(type) {
	case session.RemoteURL:
		src = it.URL
	case session.PlatformMessageRef:
		if m.resolver == nil {
			return "", &Error{Name: it.Name(), Reason: "no file resolver configured"}
		}
		u, err := m.resolver.FileURL(ctx, it.FileID)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", &Error{Name: it.Name(), Reason: "resolve file", Err: err}
		}
		src, hint = u, it.FileSize
	default:
		return "", fmt.Errorf("%w: unsupported item %T", ErrDownloadFailed, item)
	}
	return m.stream(ctx, src, dest, item.Name(), hint, sink)
}

func (m *Manager) stream(ctx context.Context, src, dest, name string, sizeHint int64, sink progress.Sink) (path string, err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", &Error{Name: name, Reason: "create dir", Err: err}
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var stalled atomic.Bool
	idle := time.AfterFunc(m.idle, func() {
		stalled.Store(true)
		cancel()
	})
	defer idle.Stop()

	fail := func(e error) (string, error) {
		if parent.Err() != nil {
			return "", parent.Err()
		}
		if stalled.Load() {
			return "", &Error{Name: name, Reason: "stalled", Err: context.DeadlineExceeded}
		}
		return "", &Error{Name: name, Err: redact(e)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", &Error{Name: name, Reason: "bad url", Err: redact(err)}
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Name: name, StatusCode: resp.StatusCode}
	}

	total := resp.ContentLength
	if total <= 0 {
		total = sizeHint
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", &Error{Name: name, Reason: "create file", Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			path, err = "", &Error{Name: name, Reason: "close file", Err: cerr}
		}
		if err != nil {
			_ = os.Remove(dest)
		}
	}()

	tr := progress.NewTracker(sink, "Downloading", name, progress.Bytes, float64(total))
	tr.Start()

	logger := logx.FromCtx(ctx)
	logger.Debug().Str("file", name).Int64("size", total).Msg("download started")

	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return "", &Error{Name: name, Reason: "write file", Err: werr}
			}
			written += int64(n)
			tr.Update(float64(written))
			idle.Reset(m.idle)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fail(rerr)
		}
	}
	if resp.ContentLength > 0 && written < resp.ContentLength {
		return "", &Error{Name: name, Reason: fmt.Sprintf("truncated at %d of %d bytes", written, resp.ContentLength)}
	}
	if written == 0 {
		return "", &Error{Name: name, Reason: "empty file"}
	}
	logger.Info().Str("file", name).Int64("bytes", written).Msg("download done")
	return dest, nil
}

// redact drops the request URL from transport errors; platform file URLs
// embed the bot token.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

// SanitizeName makes name safe as a single path element.
func SanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = "file"
	}
	if len(name) > maxNameLen {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = strings.ToValidUTF8(name[:maxNameLen-len(ext)], "") + ext
	}
	return name
}

package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/alessio/shellescape"

	logx "github.com/wapuda/mergebot/internal/logs"
)

const (
	diagnosticBytes = 500
	terminateGrace  = 10 * time.Second
)

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func newTail(max int) *tailBuffer { return &tailBuffer{max: max} }

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = append(t.buf[:0], t.buf[len(t.buf)-t.max:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return strings.TrimSpace(string(t.buf)) }

// command builds a tool invocation that is terminated with SIGTERM when ctx ends.
func command(ctx context.Context, bin string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = terminateGrace
	logger := logx.FromCtx(ctx)
	logger.Debug().Str("cmd", shellescape.QuoteCommand(append([]string{bin}, args...))).Msg("exec")
	return cmd
}

// runTool runs bin to completion and returns the stderr tail.
func runTool(ctx context.Context, bin string, args ...string) (string, error) {
	tail := newTail(diagnosticBytes)
	cmd := command(ctx, bin, args...)
	cmd.Stderr = tail
	err := cmd.Run()
	return tail.String(), err
}

func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// checkOutput verifies that a tool produced a non-empty file.
func checkOutput(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output missing: %w", err)
	}
	if st.Size() == 0 {
		return errors.New("output is empty")
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

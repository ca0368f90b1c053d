package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wapuda/mergebot/internal/progress"
)

const probeH264 = `{"format":{"duration":"2.000000"},"streams":[
 {"codec_type":"video","codec_name":"h264","width":640,"height":360},
 {"codec_type":"audio","codec_name":"aac"}]}`

const probeHEVC = `{"format":{"duration":"3.000000"},"streams":[
 {"codec_type":"video","codec_name":"hevc","width":1280,"height":720}]}`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755))
	return p
}

// fakeProbe answers with the contents of "<input>.probe" and fails when the
// sidecar is missing.
func fakeProbe(t *testing.T, dir string) string {
	return writeScript(t, dir, "ffprobe", `for a; do last=$a; done
[ -f "$last.probe" ] || { echo "no such file" >&2; exit 1; }
cat "$last.probe"
`)
}

type ffBehaviour struct {
	FastFails   bool
	RobustFails bool
	Sleep       bool
}

// fakeFFmpeg appends every invocation to the returned log file. Stream copy
// runs are recognised by "-f concat".
func fakeFFmpeg(t *testing.T, dir string, b ffBehaviour) (bin, log string) {
	log = filepath.Join(dir, "ffmpeg.log")
	var sb strings.Builder
	fmt.Fprintf(&sb, "echo \"$*\" >> %q\n", log)
	sb.WriteString("for a; do last=$a; done\n")
	if b.Sleep {
		sb.WriteString("exec sleep 30\n")
	}
	sb.WriteString("case \"$*\" in\n*\"-f concat\"*)\n")
	if b.FastFails {
		sb.WriteString("  echo \"Non-monotonous DTS in output stream\" >&2; exit 1 ;;\n")
	} else {
		sb.WriteString("  echo merged > \"$last\"; exit 0 ;;\n")
	}
	sb.WriteString("esac\n")
	if b.RobustFails {
		sb.WriteString("echo \"Error while opening encoder\" >&2\nexit 1\n")
	} else {
		sb.WriteString("printf 'out_time_us=1000000\\nspeed=2.0x\\nprogress=continue\\nout_time_us=4000000\\nspeed=2.0x\\nprogress=end\\n'\n")
		sb.WriteString("echo encoded > \"$last\"\n")
	}
	return writeScript(t, dir, "ffmpeg", sb.String()), log
}

// mediaFile creates a placeholder input whose probe result is probeJSON.
func mediaFile(t *testing.T, dir, name, probeJSON string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(p+".probe", []byte(probeJSON), 0o644))
	return p
}

func testEngine(t *testing.T, b ffBehaviour) (*Engine, string, string) {
	t.Helper()
	dir := t.TempDir()
	bin, log := fakeFFmpeg(t, dir, b)
	cfg := DefaultConfig()
	cfg.FFmpegPath = bin
	cfg.FFprobePath = fakeProbe(t, dir)
	return NewEngine(cfg), dir, log
}

func calls(t *testing.T, log string) []string {
	t.Helper()
	raw, err := os.ReadFile(log)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(raw)), "\n")
}

type recorder struct {
	mu     sync.Mutex
	states []progress.State
}

func (r *recorder) Report(s progress.State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) all() []progress.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.State(nil), r.states...)
}

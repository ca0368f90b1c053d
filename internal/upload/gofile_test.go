package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wapuda/mergebot/internal/netx"
)

func TestGoFileUpload(t *testing.T) {
	var gotFile []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok","data":{"servers":[{"name":"store7","zone":"eu"}]}}`)
	})
	mux.HandleFunc("/store7/uploadFile", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "tok", r.FormValue("token"))
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		assert.Equal(t, "final.mp4", hdr.Filename)
		gotFile, _ = io.ReadAll(f)
		_, _ = io.WriteString(w, `{"status":"ok","data":{"downloadPage":"https://gofile.io/d/Xy12"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewGoFileClient(GoFileOptions{APIBase: srv.URL + "/", UploadURLFmt: srv.URL + "/%s/uploadFile", Token: "tok"})
	path := artifact(t, 3000)
	rec := &recorder{}

	rc, err := c.Upload(context.Background(), Request{Path: path, FileName: "final.mp4"}, rec)
	require.NoError(t, err)
	assert.Equal(t, "https://gofile.io/d/Xy12", rc.Link)
	assert.Len(t, gotFile, 3000)
	assert.Equal(t, 3000.0, rec.last().Processed)
}

func TestGoFileErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok","data":{"servers":[{"name":"s1"}]}}`)
	})
	mux.HandleFunc("/s1/uploadFile", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, `{"status":"error-rateLimit","data":{}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewGoFileClient(GoFileOptions{APIBase: srv.URL, UploadURLFmt: srv.URL + "/%s/uploadFile"})
	_, err := c.Upload(context.Background(), Request{Path: artifact(t, 10)}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error-rateLimit")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok","data":{"servers":[]}}`)
	}))
	defer empty.Close()
	_, err = NewGoFileClient(GoFileOptions{APIBase: empty.URL}).Server(context.Background())
	assert.ErrorContains(t, err, "no upload servers")

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer down.Close()
	_, err = NewGoFileClient(GoFileOptions{APIBase: down.URL}).Server(context.Background())
	assert.ErrorContains(t, err, "HTTP 503")
}

func TestGoFileStalledServer(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewGoFileClient(GoFileOptions{
		APIBase: srv.URL,
		Client:  netx.NewHTTPClient(netx.Options{ResponseHeaderTimeout: 50 * time.Millisecond}),
	})
	start := time.Now()
	_, err := c.Server(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGoFileDefaultClientHasTimeouts(t *testing.T) {
	c := NewGoFileClient(GoFileOptions{})
	require.NotSame(t, http.DefaultClient, c.client)
	tr, ok := c.client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.NotZero(t, tr.ResponseHeaderTimeout)
	assert.NotZero(t, tr.TLSHandshakeTimeout)
}

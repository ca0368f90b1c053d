package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/wapuda/mergebot/internal/netx"
	"github.com/wapuda/mergebot/internal/progress"
)

const defaultGoFileUpload = "https://%s.gofile.io/uploadFile"

type GoFileOptions struct {
	APIBase      string       // e.g. https://api.gofile.io
	UploadURLFmt string       // fmt pattern taking the server name
	Token        string       // account token, optional
	Client       *http.Client // defaults to a netx client with transport timeouts
}

// GoFileClient uploads to gofile.io: pick a server, then stream a multipart
// POST to it.
type GoFileClient struct {
	api       string
	uploadFmt string
	token     string
	client    *http.Client
}

func NewGoFileClient(o GoFileOptions) *GoFileClient {
	c := &GoFileClient{
		api:       strings.TrimRight(o.APIBase, "/"),
		uploadFmt: o.UploadURLFmt,
		token:     o.Token,
		client:    o.Client,
	}
	if c.api == "" {
		c.api = "https://api.gofile.io"
	}
	if c.uploadFmt == "" {
		c.uploadFmt = defaultGoFileUpload
	}
	if c.client == nil {
		c.client = netx.NewHTTPClient(netx.Options{})
	}
	return c
}

type goFileEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (c *GoFileClient) getJSON(resp *http.Response, into any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gofile: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var env goFileEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("gofile: decode response: %w", err)
	}
	if env.Status != "ok" {
		return fmt.Errorf("gofile: status %q", env.Status)
	}
	return json.Unmarshal(env.Data, into)
}

// Server returns a random upload server name.
func (c *GoFileClient) Server(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api+"/servers", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	var data struct {
		Servers []struct {
			Name string `json:"name"`
		} `json:"servers"`
	}
	if err := c.getJSON(resp, &data); err != nil {
		return "", err
	}
	if len(data.Servers) == 0 {
		return "", fmt.Errorf("gofile: no upload servers")
	}
	return data.Servers[rand.Intn(len(data.Servers))].Name, nil
}

func (c *GoFileClient) Upload(ctx context.Context, req Request, sink progress.Sink) (Receipt, error) {
	st, err := os.Stat(req.Path)
	if err != nil {
		return Receipt{}, err
	}
	server, err := c.Server(ctx)
	if err != nil {
		return Receipt{}, err
	}

	name := req.FileName
	if name == "" {
		name = filepath.Base(req.Path)
	}
	tr := progress.NewTracker(sink, "Uploading to GoFile", name, progress.Bytes, float64(st.Size()))
	tr.Start()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(c.writeBody(mw, req.Path, name, tr))
	}()

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf(c.uploadFmt, server), pr)
	if err != nil {
		pr.Close()
		return Receipt{}, err
	}
	hreq.Header.Set("Content-Type", mw.FormDataContentType())
	if c.token != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(hreq)
	if err != nil {
		pr.CloseWithError(err)
		return Receipt{}, err
	}
	var data struct {
		DownloadPage string `json:"downloadPage"`
	}
	if err := c.getJSON(resp, &data); err != nil {
		return Receipt{}, err
	}
	if data.DownloadPage == "" {
		return Receipt{}, fmt.Errorf("gofile: response without download page")
	}
	return Receipt{Destination: GoFile, Link: data.DownloadPage, Size: st.Size()}, nil
}

func (c *GoFileClient) writeBody(mw *multipart.Writer, path, name string, tr *progress.Tracker) error {
	if c.token != "" {
		if err := mw.WriteField("token", c.token); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(part, &progress.CountingReader{R: f, Tracker: tr}); err != nil {
		return err
	}
	return mw.Close()
}

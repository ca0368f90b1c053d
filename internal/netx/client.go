// Package netx builds the HTTP clients shared by downloads, uploads and the
// Bot API.
package netx

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

type Options struct {
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	// Timeout caps a whole request. Leave zero for clients that stream
	// large bodies and rely on an idle watchdog instead.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 30 * time.Second
	}
	if o.TLSHandshakeTimeout <= 0 {
		o.TLSHandshakeTimeout = 10 * time.Second
	}
	if o.ResponseHeaderTimeout <= 0 {
		o.ResponseHeaderTimeout = 60 * time.Second
	}
	return o
}

// NewHTTPClient returns a client that honours HTTP(S)_PROXY and NO_PROXY
// and never waits forever on connect, handshake or response headers.
func NewHTTPClient(o Options) *http.Client {
	o = o.withDefaults()
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: o.DialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
			TLSHandshakeTimeout:   o.TLSHandshakeTimeout,
			ResponseHeaderTimeout: o.ResponseHeaderTimeout,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   4,
		},
		Timeout: o.Timeout,
	}
}

package fetcher

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Options configures the shared transport every Fetcher issues requests
// through. Generalizes the transport tuning of a Colly collector
// (MaxIdleConnsPerHost, ResponseHeaderTimeout, ForceAttemptHTTP2) to a
// directly held http.Transport, which byte-exact size verification and
// file streaming need and a scraping-collector abstraction does not
// expose.
type Options struct {
	UserAgent             string
	ConnectTimeout        time.Duration
	KeepAlive             time.Duration
	MaxRedirects          int
	LowSpeedBytesPerSecond int64
	LowSpeedDuration      time.Duration
}

func buildTransport(opts Options) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: opts.KeepAlive,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		MaxConnsPerHost:       0,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: false},
	}
}

func checkRedirect(maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
}

// Package fetcher performs single-request HTTP transfers with timeouts,
// cancellation, cookie attachment, header capture, and size verification.
// It is the one place every byte crossing the wire is accounted for.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/segin2005/efgrabber/internal/model"
)

// Result reports the outcome of a single transfer.
type Result struct {
	HTTPCode         int
	BytesTransferred int64
	DeclaredLength   int64
	ContentType      string
	SetCookieHeaders []string
	WallTime         time.Duration
}

// ProgressFunc is invoked periodically during FetchToFile with the number
// of bytes written so far.
type ProgressFunc func(written int64)

// Fetcher issues HTTP requests through a transport tuned for the site's
// bit-level compatibility requirements: bounded redirects, TLS
// verification, a fixed browser user agent, keepalive, and a
// dead-connection guard.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	lowSpeedBPS  int64
	lowSpeedWait time.Duration
}

// New builds a Fetcher sharing one *http.Transport across every request
// it issues.
func New(opts Options) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Transport:     buildTransport(opts),
			CheckRedirect: checkRedirect(opts.MaxRedirects),
		},
		userAgent:    opts.UserAgent,
		lowSpeedBPS:  opts.LowSpeedBytesPerSecond,
		lowSpeedWait: opts.LowSpeedDuration,
	}
}

// FetchToMemory performs a GET and buffers the entire body, used by index
// page scrapers.
func (f *Fetcher) FetchToMemory(ctx context.Context, url, cookieHeader string, timeout time.Duration) ([]byte, Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, monitored, start, err := f.doRequest(ctx, reqCtx, cancel, http.MethodGet, url, cookieHeader)
	if err != nil {
		return nil, Result{}, err
	}
	defer monitored.Close()

	body, err := io.ReadAll(monitored)
	wallTime := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Result{}, &model.CancelledError{}
		}
		return nil, Result{}, &model.NetworkError{Op: "reading response body", Err: err}
	}

	return body, buildResult(resp, monitored.BytesRead(), wallTime), nil
}

// FetchToFile performs a GET and streams the body directly to path,
// deleting any partial file on any non-success outcome. A failure caused
// by the caller's ctx being cancelled is reported as CancelledError; a
// failure caused by the per-transfer timeout or the dead-connection guard
// tripping is reported as NetworkError, since only the former is a
// cooperative cancellation the worker should not mark FAILED.
func (f *Fetcher) FetchToFile(ctx context.Context, url, path, cookieHeader string, timeout time.Duration, progress ProgressFunc) (Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, monitored, start, err := f.doRequest(ctx, reqCtx, cancel, http.MethodGet, url, cookieHeader)
	if err != nil {
		return Result{}, err
	}
	defer monitored.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Result{}, fmt.Errorf("creating parent directories: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("creating output file: %w", err)
	}

	written, copyErr := copyWithProgress(out, monitored, progress)
	closeErr := out.Close()
	wallTime := time.Since(start)

	if copyErr != nil || closeErr != nil {
		os.Remove(path)
		if ctx.Err() != nil {
			return Result{}, &model.CancelledError{}
		}
		if errors.Is(copyErr, io.ErrUnexpectedEOF) && resp.ContentLength > 0 && written != resp.ContentLength {
			return buildResult(resp, written, wallTime), &model.SizeMismatchError{Expected: resp.ContentLength, Got: written}
		}
		if copyErr != nil {
			return Result{}, &model.NetworkError{Op: "writing response body", Err: copyErr}
		}
		return Result{}, &model.NetworkError{Op: "closing output file", Err: closeErr}
	}

	result := buildResult(resp, written, wallTime)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && result.DeclaredLength > 0 && written != result.DeclaredLength {
		os.Remove(path)
		return result, &model.SizeMismatchError{Expected: result.DeclaredLength, Got: written}
	}

	return result, nil
}

// Probe performs a HEAD request to check for existence without
// transferring a body.
func (f *Fetcher) Probe(ctx context.Context, url, cookieHeader string, timeout time.Duration) (Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("building request: %w", err)
	}
	f.decorate(req, cookieHeader)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, &model.CancelledError{}
		}
		return Result{}, &model.NetworkError{Op: "probe request", Err: err}
	}
	defer resp.Body.Close()

	return buildResult(resp, 0, time.Since(start)), nil
}

// doRequest issues the request over reqCtx (the per-transfer timeout
// context) while classifying any failure against parentCtx (the caller's
// ctx), so a timeout or low-speed abort that only cancelled reqCtx is
// reported as a NetworkError rather than a cooperative CancelledError.
func (f *Fetcher) doRequest(parentCtx, reqCtx context.Context, cancel context.CancelFunc, method, url, cookieHeader string) (*http.Response, *lowSpeedReader, time.Time, error) {
	req, err := http.NewRequestWithContext(reqCtx, method, url, nil)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("building request: %w", err)
	}
	f.decorate(req, cookieHeader)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if parentCtx.Err() != nil {
			return nil, nil, time.Time{}, &model.CancelledError{}
		}
		return nil, nil, time.Time{}, &model.NetworkError{Op: "request", Err: err}
	}

	monitored := newLowSpeedReader(reqCtx, cancel, resp.Body, f.lowSpeedBPS, f.lowSpeedWait)
	return resp, monitored, start, nil
}

func (f *Fetcher) decorate(req *http.Request, cookieHeader string) {
	req.Header.Set("User-Agent", f.userAgent)
	if cookieHeader != "" {
		req.Header.Set("Cookie", cookieHeader)
	}
}

func buildResult(resp *http.Response, bytesTransferred int64, wallTime time.Duration) Result {
	return Result{
		HTTPCode:         resp.StatusCode,
		BytesTransferred: bytesTransferred,
		DeclaredLength:   resp.ContentLength,
		ContentType:      resp.Header.Get("Content-Type"),
		SetCookieHeaders: resp.Header.Values("Set-Cookie"),
		WallTime:         wallTime,
	}
}

func copyWithProgress(dst io.Writer, src io.Reader, progress ProgressFunc) (int64, error) {
	if progress == nil {
		return io.Copy(dst, src)
	}
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			written, writeErr := dst.Write(buf[:n])
			total += int64(written)
			if writeErr != nil {
				return total, writeErr
			}
			progress(total)
		}
		if readErr != nil {
			if readErr == io.EOF {
				return total, nil
			}
			return total, readErr
		}
	}
}

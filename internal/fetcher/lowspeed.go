package fetcher

import (
	"context"
	"io"
	"sync/atomic"
	"time"
)

// lowSpeedReader wraps a response body and cancels ctx if the rolling
// throughput drops below thresholdBPS for longer than maxStall, the
// "dead-connection guard" from the fetcher contract.
type lowSpeedReader struct {
	io.ReadCloser
	cancel context.CancelFunc

	thresholdBPS int64
	maxStall     time.Duration

	total       int64
	sinceWindow int64
	windowStart time.Time
	stopMonitor chan struct{}
}

func newLowSpeedReader(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, thresholdBPS int64, maxStall time.Duration) *lowSpeedReader {
	r := &lowSpeedReader{
		ReadCloser:   body,
		cancel:       cancel,
		thresholdBPS: thresholdBPS,
		maxStall:     maxStall,
		windowStart:  time.Now(),
		stopMonitor:  make(chan struct{}),
	}
	if thresholdBPS > 0 && maxStall > 0 {
		go r.monitor(ctx)
	}
	return r
}

func (r *lowSpeedReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if n > 0 {
		atomic.AddInt64(&r.total, int64(n))
		atomic.AddInt64(&r.sinceWindow, int64(n))
	}
	return n, err
}

func (r *lowSpeedReader) Close() error {
	select {
	case <-r.stopMonitor:
	default:
		close(r.stopMonitor)
	}
	return r.ReadCloser.Close()
}

func (r *lowSpeedReader) BytesRead() int64 { return atomic.LoadInt64(&r.total) }

func (r *lowSpeedReader) monitor(ctx context.Context) {
	tick := time.NewTicker(r.maxStall)
	defer tick.Stop()
	for {
		select {
		case <-r.stopMonitor:
			return
		case <-ctx.Done():
			return
		case <-tick.C:
			since := atomic.SwapInt64(&r.sinceWindow, 0)
			bps := float64(since) / r.maxStall.Seconds()
			if bps < float64(r.thresholdBPS) {
				r.cancel()
				return
			}
		}
	}
}

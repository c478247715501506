// Package scheduler drives work from the persistent store to the fetcher:
// a single dispatcher loop claims eligible rows and hands each to a worker
// task running under a live-tunable concurrency cap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/segin2005/efgrabber/internal/backoff"
	"github.com/segin2005/efgrabber/internal/fetcher"
	"github.com/segin2005/efgrabber/internal/metrics"
	"github.com/segin2005/efgrabber/internal/model"
	"github.com/segin2005/efgrabber/internal/storage"
)

// Store is the subset of the persistent store the dispatcher and its
// workers need; satisfied by *store.Store.
type Store interface {
	ClaimPending(collectionID int, limit int) ([]model.Document, error)
	ListFailedReady(collectionID int, maxRetries int, limit int) ([]model.Document, error)
	UpdateStatus(rowID int64, status model.Status, errMsg string, byteSize int64) error
	IncrementRetry(rowID int64) error
	GetStats(collectionID int) (model.Stats, error)
}

const (
	failedReadyBatch  = 100
	emptyQueueSleep   = 100 * time.Millisecond
	capacityFullSleep = 100 * time.Millisecond
	producerWaitSleep = 200 * time.Millisecond
)

// Config names the values a Scheduler needs beyond the Store and Fetcher.
type Config struct {
	CollectionID      int
	MaxRetryAttempts  int
	FileTimeout       time.Duration
}

// Scheduler owns the dispatcher loop and the accounting a Supervisor's
// statistics snapshot reports.
type Scheduler struct {
	store   Store
	fetcher *fetcher.Fetcher
	logger  *zap.Logger
	cfg     Config
	cookie  func() string
	mirror  storage.Provider

	maxConcurrent      atomic.Int64
	overwriteExisting  atomic.Bool
	externalScraping   atomic.Bool
	activeProducers    atomic.Int64
	inFlight           atomic.Int64
	stopped            atomic.Bool

	pauseMu   sync.Mutex
	pauseCond *sync.Cond
	paused    bool

	statsMu          sync.Mutex
	bytesThisSession int64
	firstActive      time.Time
	lastActive       time.Time

	wg sync.WaitGroup
}

// New builds a Scheduler for one collection.
func New(s Store, f *fetcher.Fetcher, cfg Config, cookie func() string, logger *zap.Logger) *Scheduler {
	metrics.Init()
	sch := &Scheduler{store: s, fetcher: f, cfg: cfg, cookie: cookie, logger: logger}
	sch.pauseCond = sync.NewCond(&sch.pauseMu)
	sch.maxConcurrent.Store(50)
	return sch
}

// SetMirror configures a cloud mirror; every COMPLETED download is
// copied to it fire-and-forget after the status transition lands, never
// gating or reverting local completion.
func (s *Scheduler) SetMirror(m storage.Provider) { s.mirror = m }

// SetMaxConcurrent changes the in-flight worker cap; takes effect on the
// dispatcher's next iteration.
func (s *Scheduler) SetMaxConcurrent(n int) { s.maxConcurrent.Store(int64(n)) }

// SetOverwriteExisting toggles whether workers redownload files that
// already exist on disk.
func (s *Scheduler) SetOverwriteExisting(b bool) { s.overwriteExisting.Store(b) }

// SetExternalScrapingActive keeps the dispatcher from terminating on an
// empty queue while an external producer is still populating rows.
func (s *Scheduler) SetExternalScrapingActive(b bool) { s.externalScraping.Store(b) }

// NoteProducerStarted/NoteProducerStopped let the caller register that a
// Producer goroutine (index scraper or brute-force enumerator) is still
// running, so the dispatcher does not terminate prematurely.
func (s *Scheduler) NoteProducerStarted() { s.activeProducers.Add(1) }
func (s *Scheduler) NoteProducerStopped() { s.activeProducers.Add(-1) }

// Pause blocks the dispatcher at its next iteration boundary.
func (s *Scheduler) Pause() {
	s.pauseMu.Lock()
	s.paused = true
	s.pauseMu.Unlock()
}

// Resume wakes a paused dispatcher.
func (s *Scheduler) Resume() {
	s.pauseMu.Lock()
	s.paused = false
	s.pauseMu.Unlock()
	s.pauseCond.Broadcast()
}

// Stop requests the dispatcher exit and wakes it if paused. Run's caller
// must still cancel ctx for in-flight fetches to observe cancellation.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
	s.Resume()
}

// InFlight reports the current in-flight worker count.
func (s *Scheduler) InFlight() int64 { return s.inFlight.Load() }

// Snapshot augments a Store stats row with the live scheduler counters a
// Supervisor publishes roughly once a second.
func (s *Scheduler) Snapshot() (model.Stats, error) {
	stats, err := s.store.GetStats(s.cfg.CollectionID)
	if err != nil {
		return stats, err
	}
	stats.InFlight = int(s.inFlight.Load())
	stats.WorkersActive = stats.InFlight
	max := int(s.maxConcurrent.Load())
	if idle := max - stats.InFlight; idle > 0 {
		stats.WorkersIdle = idle
	}

	s.statsMu.Lock()
	stats.BytesThisSession = s.bytesThisSession
	stats.FirstActive = s.firstActive
	stats.LastActive = s.lastActive
	s.statsMu.Unlock()

	if !stats.FirstActive.IsZero() {
		elapsed := time.Since(stats.FirstActive)
		stats.ElapsedWall = elapsed
		if elapsed > 0 {
			stats.CurrentSpeedBPS = float64(stats.BytesThisSession) / elapsed.Seconds()
		}
		if wire := stats.LastActive.Sub(stats.FirstActive); wire > 0 {
			stats.WireSpeedBPS = float64(stats.BytesThisSession) / wire.Seconds()
		}
	}
	return stats, nil
}

// Run drives the dispatcher loop until Stop is called or the queue drains
// with no producer left feeding it. It returns when every dispatched
// worker has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.wg.Wait()

	for {
		if s.stopped.Load() || ctx.Err() != nil {
			return nil
		}

		s.pauseMu.Lock()
		for s.paused && !s.stopped.Load() {
			s.pauseCond.Wait()
		}
		s.pauseMu.Unlock()
		if s.stopped.Load() {
			return nil
		}

		free := int(s.maxConcurrent.Load() - s.inFlight.Load())
		if free <= 0 {
			if !sleepCtx(ctx, capacityFullSleep) {
				return nil
			}
			continue
		}

		claimed, err := s.store.ClaimPending(s.cfg.CollectionID, free)
		if err != nil {
			return fmt.Errorf("claiming pending rows: %w", err)
		}
		if len(claimed) == 0 {
			limit := free
			if limit > failedReadyBatch {
				limit = failedReadyBatch
			}
			ready, err := s.store.ListFailedReady(s.cfg.CollectionID, s.cfg.MaxRetryAttempts, limit)
			if err != nil {
				return fmt.Errorf("listing retry-ready rows: %w", err)
			}
			claimed = ready
		}

		if len(claimed) == 0 {
			done, err := s.handleEmptyQueue(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			continue
		}

		for _, doc := range claimed {
			doc := doc
			if err := s.store.UpdateStatus(doc.RowID, model.StatusInProgress, "", doc.ByteSize); err != nil {
				return fmt.Errorf("marking row in progress: %w", err)
			}
			s.inFlight.Add(1)
			metrics.SetActiveWorkers(int(s.inFlight.Load()))
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer func() {
					s.inFlight.Add(-1)
					metrics.SetActiveWorkers(int(s.inFlight.Load()))
				}()
				s.runWorker(ctx, doc)
			}()
		}
	}
}

// handleEmptyQueue implements the dispatcher's four empty-result branches,
// returning done=true when the pipeline should terminate.
func (s *Scheduler) handleEmptyQueue(ctx context.Context) (bool, error) {
	if s.inFlight.Load() > 0 {
		return !sleepCtx(ctx, emptyQueueSleep), nil
	}
	if s.externalScraping.Load() {
		return !sleepCtx(ctx, producerWaitSleep), nil
	}
	if s.activeProducers.Load() > 0 {
		return !sleepCtx(ctx, producerWaitSleep), nil
	}

	stats, err := s.store.GetStats(s.cfg.CollectionID)
	if err != nil {
		return false, fmt.Errorf("re-checking stats before terminating: %w", err)
	}
	if stats.Pending == 0 && stats.InProgress == 0 {
		return true, nil
	}
	return !sleepCtx(ctx, emptyQueueSleep), nil
}

// runWorker fetches one document and classifies the outcome per the
// scheduler's HTTP/size classification table.
func (s *Scheduler) runWorker(ctx context.Context, doc model.Document) {
	if !s.overwriteExisting.Load() {
		if info, err := os.Stat(doc.LocalPath); err == nil && info.Size() > 0 {
			s.finish(doc, model.StatusSkipped, "", doc.ByteSize)
			return
		}
	}
	if err := os.MkdirAll(filepath.Dir(doc.LocalPath), 0o755); err != nil {
		s.fail(doc, fmt.Sprintf("creating parent directories: %v", err))
		return
	}

	s.markActive()
	result, err := s.fetcher.FetchToFile(ctx, doc.RemoteURL, doc.LocalPath, s.cookie(), s.cfg.FileTimeout, s.progressHook())
	s.markActive()

	var cancelled *model.CancelledError
	if errors.As(err, &cancelled) {
		return
	}

	is2xx := result.HTTPCode >= 200 && result.HTTPCode < 300

	switch {
	case result.HTTPCode == 404:
		os.Remove(doc.LocalPath)
		s.finish(doc, model.StatusNotFound, "not found", 0)

	case result.HTTPCode == 403 || result.HTTPCode == 429:
		os.Remove(doc.LocalPath)
		s.fail(doc, "Blocked")

	case err == nil && is2xx && result.BytesTransferred == 0:
		os.Remove(doc.LocalPath)
		s.finish(doc, model.StatusNotFound, "empty response", 0)

	case err == nil && is2xx:
		s.finish(doc, model.StatusCompleted, "", result.BytesTransferred)
		s.addBytes(result.BytesTransferred)

	case err == nil:
		os.Remove(doc.LocalPath)
		s.fail(doc, fmt.Sprintf("HTTP error: %d", result.HTTPCode))

	default:
		var sizeErr *model.SizeMismatchError
		if errors.As(err, &sizeErr) {
			s.fail(doc, "size mismatch")
			return
		}
		s.fail(doc, err.Error())
	}
}

func (s *Scheduler) finish(doc model.Document, status model.Status, msg string, byteSize int64) {
	if err := s.store.UpdateStatus(doc.RowID, status, msg, byteSize); err != nil {
		s.logger.Error("updating status", zap.Int64("row_id", doc.RowID), zap.Error(err))
	}
	if status == model.StatusCompleted && s.mirror != nil {
		go s.mirrorUpload(doc)
	}
}

func (s *Scheduler) mirrorUpload(doc model.Document) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FileTimeout)
	defer cancel()
	if err := s.mirror.Upload(ctx, doc.LocalPath, doc.DocumentID); err != nil {
		s.logger.Warn("mirroring document", zap.String("document_id", doc.DocumentID), zap.Error(err))
	}
}

func (s *Scheduler) fail(doc model.Document, msg string) {
	if err := s.store.UpdateStatus(doc.RowID, model.StatusFailed, msg, 0); err != nil {
		s.logger.Error("marking failed", zap.Int64("row_id", doc.RowID), zap.Error(err))
		return
	}
	if err := s.store.IncrementRetry(doc.RowID); err != nil {
		s.logger.Error("incrementing retry", zap.Int64("row_id", doc.RowID), zap.Error(err))
	}
	metrics.ObserveBackoffDelay(backoff.Delay(doc.RetryCount + 1))
}

func (s *Scheduler) addBytes(n int64) {
	s.statsMu.Lock()
	s.bytesThisSession += n
	s.statsMu.Unlock()
}

func (s *Scheduler) markActive() {
	now := time.Now()
	s.statsMu.Lock()
	if s.firstActive.IsZero() {
		s.firstActive = now
	}
	s.lastActive = now
	s.statsMu.Unlock()
}

func (s *Scheduler) progressHook() fetcher.ProgressFunc {
	return func(written int64) { s.markActive() }
}

// sleepCtx sleeps for d or returns false early if ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}


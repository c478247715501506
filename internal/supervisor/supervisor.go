// Package supervisor owns a collection's lifecycle: it starts the
// discovery producers and the download scheduler, publishes a periodic
// statistics snapshot through the progress hub, and exposes the recovery
// and control operations the CLI (or any future GUI) drives.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segin2005/efgrabber/internal/discovery"
	"github.com/segin2005/efgrabber/internal/model"
	"github.com/segin2005/efgrabber/internal/progress"
	"github.com/segin2005/efgrabber/internal/scheduler"
	"github.com/segin2005/efgrabber/internal/storage"
)

// Store is the full persistence surface a Supervisor needs: the
// scheduler's dispatch queries, the discovery producers' insert/cursor
// operations, and the bulk recovery transitions the CLI's reset/retry/
// clear subcommands trigger.
type Store interface {
	scheduler.Store
	discovery.PageStore
	ResetInProgress(collectionID int) error
	ResetFailed(collectionID int) error
	ResetAll(collectionID int) error
	ClearCollection(collectionID int) error
}

// Mode selects which discovery producers a Start call launches.
type Mode string

const (
	ModeScraper Mode = "scraper"
	ModeBrute   Mode = "brute"
	ModeHybrid  Mode = "hybrid"
)

// CollectionConfig names the values a Start call needs to build the
// producers and scheduler for one collection.
type CollectionConfig struct {
	CollectionID int
	BaseURL      string
	FileURLBase  string
	Prefix       string
	Root         string
	FirstID      uint64
	LastID       uint64
}

// StatsInterval is how often the stats publisher goroutine samples a
// running Scheduler and emits a StageStatsSnapshot event.
const StatsInterval = time.Second

// Supervisor wires one collection's producers, scheduler, and stats
// publisher together and reports the lifecycle outcome to Wait's caller.
type Supervisor struct {
	store       Store
	sched       *scheduler.Scheduler
	indexer     *discovery.IndexScraper
	brute       *discovery.BruteForceEnumerator
	hub         *progress.Hub
	mirror      storage.Provider
	logger      *zap.Logger

	collectionID int
	runID        [16]byte

	wg       sync.WaitGroup
	errMu    sync.Mutex
	firstErr error

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Supervisor for one collection. indexer and brute may be
// nil; Start returns an error if a requested Mode needs a producer that
// was not supplied.
func New(s Store, sched *scheduler.Scheduler, indexer *discovery.IndexScraper, brute *discovery.BruteForceEnumerator, hub *progress.Hub, mirror storage.Provider, collectionID int, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		store:        s,
		sched:        sched,
		indexer:      indexer,
		brute:        brute,
		hub:          hub,
		mirror:       mirror,
		collectionID: collectionID,
		logger:       logger,
	}
}

// Start launches the producers named by mode plus the scheduler and the
// stats publisher, and returns immediately; call Wait to block until the
// pipeline finishes.
func (sup *Supervisor) Start(ctx context.Context, cc CollectionConfig, mode Mode) error {
	if (mode == ModeScraper || mode == ModeHybrid) && sup.indexer == nil {
		return fmt.Errorf("mode %s requires an index scraper", mode)
	}
	if (mode == ModeBrute || mode == ModeHybrid) && sup.brute == nil {
		return fmt.Errorf("mode %s requires a brute-force enumerator", mode)
	}

	runCtx, cancel := context.WithCancel(ctx)
	sup.cancel = cancel
	sup.done = make(chan struct{})
	sup.runID = progress.UUIDToBytes(uuid.New())

	if mode == ModeScraper || mode == ModeHybrid {
		sup.runProducer(func() error { return sup.indexer.Run(runCtx) })
	}
	if mode == ModeBrute || mode == ModeHybrid {
		sup.runProducer(func() error { return sup.brute.Run(runCtx, cc.FirstID, cc.LastID) })
	}

	return sup.startCommon(runCtx)
}

// StartDownloadOnly runs the scheduler alone, for the case where an
// external scraper populates rows directly; the caller is responsible
// for toggling SetExternalScrapingActive around that scraper's lifetime.
func (sup *Supervisor) StartDownloadOnly(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	sup.cancel = cancel
	sup.done = make(chan struct{})
	sup.runID = progress.UUIDToBytes(uuid.New())
	return sup.startCommon(runCtx)
}

func (sup *Supervisor) startCommon(runCtx context.Context) error {
	sup.wg.Add(1)
	go func() {
		defer sup.wg.Done()
		if err := sup.sched.Run(runCtx); err != nil {
			sup.recordErr(fmt.Errorf("scheduler: %w", err))
		}
		// The scheduler has drained, stopped, or failed: end the stats
		// publisher and any producer still running so Wait can return.
		sup.cancel()
	}()

	sup.wg.Add(1)
	go sup.publishStats(runCtx)

	go func() {
		sup.wg.Wait()
		sup.emit(progress.Event{Stage: progress.StageRunDone, CollectionID: sup.collectionID})
		close(sup.done)
	}()

	sup.emit(progress.Event{Stage: progress.StageRunStart, CollectionID: sup.collectionID})
	return nil
}

// emit stamps evt with the run's identity and current time before handing
// it to the hub; a nil hub makes this a no-op.
func (sup *Supervisor) emit(evt progress.Event) {
	if sup.hub == nil {
		return
	}
	evt.RunID = sup.runID
	evt.TS = time.Now()
	sup.hub.Emit(evt)
}

func (sup *Supervisor) runProducer(run func() error) {
	sup.sched.NoteProducerStarted()
	sup.wg.Add(1)
	go func() {
		defer sup.wg.Done()
		defer sup.sched.NoteProducerStopped()
		if err := run(); err != nil {
			sup.recordErr(fmt.Errorf("producer: %w", err))
		}
	}()
}

// publishStats samples the scheduler roughly once a second until runCtx
// is cancelled or the pipeline finishes.
func (sup *Supervisor) publishStats(runCtx context.Context) {
	defer sup.wg.Done()
	ticker := time.NewTicker(StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			stats, err := sup.sched.Snapshot()
			if err != nil {
				sup.logger.Warn("sampling stats snapshot", zap.Error(err))
				continue
			}
			sup.emit(progress.Event{Stage: progress.StageStatsSnapshot, CollectionID: sup.collectionID, Stats: stats})
		}
	}
}

func (sup *Supervisor) recordErr(err error) {
	sup.errMu.Lock()
	defer sup.errMu.Unlock()
	if sup.firstErr == nil {
		sup.firstErr = err
	}
	sup.logger.Error("pipeline component failed", zap.Error(err))
}

// Wait blocks until every producer and the scheduler have exited,
// returning the first error any of them reported.
func (sup *Supervisor) Wait() error {
	<-sup.done
	sup.errMu.Lock()
	defer sup.errMu.Unlock()
	return sup.firstErr
}

// Pause freezes the scheduler's dispatch loop; producers keep running.
func (sup *Supervisor) Pause() { sup.sched.Pause() }

// Resume wakes a paused scheduler.
func (sup *Supervisor) Resume() { sup.sched.Resume() }

// Stop requests the scheduler and every producer exit, then returns
// immediately; call Wait to block for the drain to finish.
func (sup *Supervisor) Stop() {
	sup.sched.Stop()
	if sup.cancel != nil {
		sup.cancel()
	}
}

// Snapshot satisfies internal/api.StatsProvider.
func (sup *Supervisor) Snapshot() (model.Stats, error) { return sup.sched.Snapshot() }

// GetStats is an alias for Snapshot, named to match the operation the
// original lifecycle contract exposes.
func (sup *Supervisor) GetStats() (model.Stats, error) { return sup.Snapshot() }

// ResetInterrupted moves every IN_PROGRESS row back to PENDING, the
// crash-recovery operation for a run that was killed mid-download.
func (sup *Supervisor) ResetInterrupted() error { return sup.store.ResetInProgress(sup.collectionID) }

// RetryFailed moves every FAILED row back to PENDING regardless of
// backoff or retry_count, for an operator-forced immediate retry.
func (sup *Supervisor) RetryFailed() error { return sup.store.ResetFailed(sup.collectionID) }

// ResetAll moves every row not already PENDING back to PENDING, forcing
// a full redownload of the collection.
func (sup *Supervisor) ResetAll() error { return sup.store.ResetAll(sup.collectionID) }

// ClearCollection deletes every row associated with the collection.
func (sup *Supervisor) ClearCollection() error { return sup.store.ClearCollection(sup.collectionID) }

// SetExternalScrapingActive keeps the scheduler alive on an empty queue
// while an out-of-process producer is expected to keep feeding rows.
func (sup *Supervisor) SetExternalScrapingActive(b bool) { sup.sched.SetExternalScrapingActive(b) }

// SetMaxConcurrentDownloads changes the scheduler's in-flight worker cap.
func (sup *Supervisor) SetMaxConcurrentDownloads(n int) { sup.sched.SetMaxConcurrent(n) }

// SetOverwriteExisting toggles whether the scheduler redownloads files
// that already exist on disk.
func (sup *Supervisor) SetOverwriteExisting(b bool) { sup.sched.SetOverwriteExisting(b) }

// Package app initializes and holds every long-lived service the CLI
// needs, acting as a dependency injection container: it reads Config,
// switches on each provider's configured backend, and fails fast if any
// of them cannot be built.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/segin2005/efgrabber/internal/api"
	"github.com/segin2005/efgrabber/internal/clock"
	"github.com/segin2005/efgrabber/internal/config"
	"github.com/segin2005/efgrabber/internal/cookieharvester"
	"github.com/segin2005/efgrabber/internal/cookiejar"
	"github.com/segin2005/efgrabber/internal/discovery"
	"github.com/segin2005/efgrabber/internal/fetcher"
	"github.com/segin2005/efgrabber/internal/logging"
	"github.com/segin2005/efgrabber/internal/metrics"
	"github.com/segin2005/efgrabber/internal/progress"
	"github.com/segin2005/efgrabber/internal/progress/sinks"
	"github.com/segin2005/efgrabber/internal/queue"
	"github.com/segin2005/efgrabber/internal/scheduler"
	"github.com/segin2005/efgrabber/internal/storage"
	"github.com/segin2005/efgrabber/internal/store"
	"github.com/segin2005/efgrabber/internal/supervisor"
)

// App holds every shared, long-lived service wired up from Config.
// Initialized once at startup by New and passed to cmd/ subcommands.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     *store.Store
	Fetcher   *fetcher.Fetcher
	Jar       *cookiejar.Jar
	Hub       *progress.Hub
	Mirror    storage.Provider
	Queue     queue.Provider
	Harvester cookieharvester.Harvester
	Server    *api.Server
}

// New builds an App from cfg, failing loudly if any configured backend
// cannot be reached.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	metrics.Init()

	s, err := store.Open(cfg.Store.Path, clock.System{}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	jar := cookiejar.New()
	if err := jar.Seed(cfg.Fetch.CookieFile, cfg.Fetch.CookieString); err != nil {
		s.Close()
		return nil, fmt.Errorf("seeding cookie jar: %w", err)
	}
	jar.StartReaper(time.Minute)

	f := fetcher.New(fetcher.Options{
		UserAgent:              cfg.Fetch.UserAgent,
		ConnectTimeout:         time.Duration(cfg.Fetch.ConnectTimeoutSeconds) * time.Second,
		KeepAlive:              time.Duration(cfg.Fetch.KeepAliveSeconds) * time.Second,
		MaxRedirects:           cfg.Fetch.MaxRedirects,
		LowSpeedBytesPerSecond: cfg.Fetch.LowSpeedBPS,
		LowSpeedDuration:       time.Duration(cfg.Fetch.LowSpeedDurationSecs) * time.Second,
	})

	mirror, err := newMirror(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("initializing mirror provider: %w", err)
	}

	q, err := newQueue(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("initializing queue provider: %w", err)
	}

	hub := progress.NewHub(progress.Config{Logger: logger}, buildSinks(cfg, logger, q)...)

	harvester := newHarvester(cfg)

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Store:     s,
		Fetcher:   f,
		Jar:       jar,
		Hub:       hub,
		Mirror:    mirror,
		Queue:     q,
		Harvester: harvester,
	}
	return a, nil
}

func newMirror(ctx context.Context, cfg config.Config) (storage.Provider, error) {
	switch cfg.Mirror.Provider {
	case "gcs":
		return storage.NewGCSProvider(ctx, cfg.Mirror.GCS.Bucket, cfg.Mirror.GCS.Prefix)
	case "local", "":
		return storage.LocalProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown mirror provider %q", cfg.Mirror.Provider)
	}
}

func newQueue(ctx context.Context, cfg config.Config) (queue.Provider, error) {
	switch cfg.Queue.Provider {
	case "pubsub":
		return queue.NewPubSubProvider(ctx, cfg.Queue.PubSub.ProjectID, cfg.Queue.PubSub.TopicID)
	case "noop", "":
		return queue.NoopProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown queue provider %q", cfg.Queue.Provider)
	}
}

func newHarvester(cfg config.Config) cookieharvester.Harvester {
	if !cfg.Headless.Enabled {
		return cookieharvester.NoopHarvester{}
	}
	return cookieharvester.New(cookieharvester.Config{
		UserAgent:      cfg.Fetch.UserAgent,
		NavTimeout:     time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		RequiredCookie: cfg.Discovery.RequiredCookie,
	})
}

func buildSinks(cfg config.Config, logger *zap.Logger, q queue.Provider) []progress.Sink {
	sinkList := []progress.Sink{sinks.NewLogSink(logger)}
	if promSink, err := sinks.NewPrometheusSink(nil); err == nil {
		sinkList = append(sinkList, promSink)
	} else {
		logger.Warn("prometheus progress sink unavailable", zap.Error(err))
	}
	if cfg.Queue.Provider == "pubsub" {
		sinkList = append(sinkList, sinks.NewQueueSink(q))
	}
	return sinkList
}

// NewSupervisor builds a Supervisor for one collection, wiring the
// discovery producers appropriate to mode plus a Scheduler sharing this
// App's store, fetcher, cookie jar, and mirror.
func (a *App) NewSupervisor(cc supervisor.CollectionConfig, mode supervisor.Mode) (*supervisor.Supervisor, error) {
	cookie := func() string { return a.Jar.CookieString() }

	sched := scheduler.New(a.Store, a.Fetcher, scheduler.Config{
		CollectionID:     cc.CollectionID,
		MaxRetryAttempts: a.Config.Scheduler.MaxRetryAttempts,
		FileTimeout:      time.Duration(a.Config.Fetch.FileTimeoutSeconds) * time.Second,
	}, cookie, a.Logger)
	sched.SetMaxConcurrent(a.Config.Scheduler.MaxConcurrentDownloads)
	sched.SetOverwriteExisting(a.Config.Scheduler.OverwriteExisting)
	sched.SetMirror(a.Mirror)

	var indexer *discovery.IndexScraper
	if mode == supervisor.ModeScraper || mode == supervisor.ModeHybrid {
		detector, err := discovery.NewChallengeDetector(a.Config.Discovery.ChallengeMarkers, a.Config.Discovery.ChallengeMinBytes)
		if err != nil {
			return nil, fmt.Errorf("building challenge detector: %w", err)
		}
		indexer = discovery.NewIndexScraper(discovery.IndexScraperConfig{
			CollectionID: cc.CollectionID,
			BaseURL:      cc.BaseURL,
			FileURLBase:  cc.FileURLBase,
			Prefix:       cc.Prefix,
			Root:         cc.Root,
			MaxParallel:  a.Config.Scheduler.MaxConcurrentPageScrapes,
			PageTimeout:  time.Duration(a.Config.Fetch.PageTimeoutSeconds) * time.Second,
		}, a.Store, a.Fetcher, detector, cookie, a.Config.Fetch.UserAgent, a.Logger)
	}

	var brute *discovery.BruteForceEnumerator
	if mode == supervisor.ModeBrute || mode == supervisor.ModeHybrid {
		brute = discovery.NewBruteForceEnumerator(a.Store, cc.CollectionID, cc.FileURLBase, cc.Prefix, cc.Root, a.Logger)
	}

	return supervisor.New(a.Store, sched, indexer, brute, a.Hub, a.Mirror, cc.CollectionID, a.Logger), nil
}

// NewServer builds the status/debug HTTP server backed by stats, and
// keeps a reference so Close can be a no-op placeholder for future
// graceful-shutdown wiring by cmd/.
func (a *App) NewServer(stats api.StatsProvider) *api.Server {
	a.Server = api.NewServer(stats, a.Config, a.Logger)
	return a.Server
}

// Close releases every service the App holds, logging but not failing on
// individual shutdown errors since the process is exiting regardless.
func (a *App) Close() {
	a.Jar.StopReaper()
	if err := a.Hub.Close(context.Background()); err != nil {
		a.Logger.Warn("closing progress hub", zap.Error(err))
	}
	if err := a.Queue.Close(); err != nil {
		a.Logger.Warn("closing queue provider", zap.Error(err))
	}
	if err := a.Mirror.Close(); err != nil {
		a.Logger.Warn("closing mirror provider", zap.Error(err))
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("closing store", zap.Error(err))
	}
	if err := a.Logger.Sync(); err != nil {
		a.Logger.Warn("syncing logger", zap.Error(err))
	}
}

// Package app builds the long-lived services of a download run from
// configuration and drives one batch through them: download, persist the
// JSON document, store per-URL rows, and publish a completion notice.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-downloader/internal/clock/system"
	"github.com/JakeFAU/news-downloader/internal/config"
	"github.com/JakeFAU/news-downloader/internal/coordinator"
	"github.com/JakeFAU/news-downloader/internal/crawler"
	"github.com/JakeFAU/news-downloader/internal/extract"
	collyfetcher "github.com/JakeFAU/news-downloader/internal/fetcher/colly"
	"github.com/JakeFAU/news-downloader/internal/fetcher/headless"
	"github.com/JakeFAU/news-downloader/internal/hash/sha256"
	"github.com/JakeFAU/news-downloader/internal/metrics"
	"github.com/JakeFAU/news-downloader/internal/progress"
	"github.com/JakeFAU/news-downloader/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/news-downloader/internal/publisher/memory"
	"github.com/JakeFAU/news-downloader/internal/publisher/pubsub"
	"github.com/JakeFAU/news-downloader/internal/ratelimit"
	"github.com/JakeFAU/news-downloader/internal/robots"
	"github.com/JakeFAU/news-downloader/internal/storage"
	"github.com/JakeFAU/news-downloader/internal/storage/gcs"
	"github.com/JakeFAU/news-downloader/internal/storage/local"
	"github.com/JakeFAU/news-downloader/internal/storage/memory"
	"github.com/JakeFAU/news-downloader/internal/storage/postgres"
	"github.com/JakeFAU/news-downloader/internal/worker"
)

// Overrides replaces services that New would otherwise build from
// configuration. Nil fields are built normally.
type Overrides struct {
	Fetchers   crawler.FetcherFactory
	Policy     crawler.Policy
	Blobs      crawler.BlobStore
	Results    crawler.ResultStore
	Publisher  crawler.Publisher
	Registerer prometheus.Registerer
}

// Notification is the payload published once a batch has been persisted.
type Notification struct {
	BatchID   string              `json:"batch_id"`
	OutputURI string              `json:"output_uri,omitempty"`
	Summary   coordinator.Summary `json:"summary"`
}

// Outcome is what a Run produced.
type Outcome struct {
	Report    coordinator.Report
	OutputURI string
	MessageID string
}

// App holds the shared services for one download run.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	coordinator *coordinator.Coordinator
	writer      *storage.ResultsWriter
	outputName  string
	results     crawler.ResultStore
	publisher   crawler.Publisher
	hub         *progress.Hub
	metricsSrv  *metrics.Server

	closers []func() error
}

// New wires every service described by cfg. Services are closed by Close,
// including when New itself fails part way.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, o Overrides) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	promSink, err := sinks.NewPrometheusSink(o.Registerer)
	if err != nil {
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")), promSink)

	policy := o.Policy
	if policy == nil {
		policy = a.buildPolicy()
	}
	fetchers := o.Fetchers
	if fetchers == nil {
		if fetchers, err = a.buildFetchers(); err != nil {
			return nil, err
		}
	}

	deps := worker.Deps{
		Fetchers:  fetchers,
		Policy:    policy,
		Extractor: extract.New(cfg.Extract.Markers(), logger.Named("extract")),
		Pacer:     ratelimit.New(ratelimit.Config{HostQPS: cfg.Fetch.HostQPS, Burst: cfg.Fetch.HostBurst}),
		Emitter:   a.hub,
		Clock:     system.New(),
	}
	a.coordinator = coordinator.New(deps, coordinator.Config{
		Workers: cfg.Download.Workers,
		Worker: worker.Config{
			ResolveTimeout: cfg.Fetch.ResolveTimeout,
			RenderTimeout:  cfg.Fetch.RenderTimeout,
		},
	}, logger.Named("coordinator"))

	if cfg.Download.Persist {
		if err = a.buildWriter(ctx, o.Blobs); err != nil {
			return nil, err
		}
	}
	if a.results = o.Results; a.results == nil && cfg.DB.DSN != "" {
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.Table,
			MaxConns:        cfg.DB.MaxConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		}, sha256.New(), system.New())
		if err != nil {
			return nil, fmt.Errorf("init result store: %w", err)
		}
		a.results = store
		a.closers = append(a.closers, func() error { store.Close(); return nil })
	}
	if a.publisher = o.Publisher; a.publisher == nil && cfg.PubSub.TopicName != "" {
		if err = a.buildPublisher(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.Metrics.ListenAddr != "" {
		a.metricsSrv = metrics.NewServer(cfg.Metrics.ListenAddr, logger.Named("metrics"))
		addr, err := a.metricsSrv.Start()
		if err != nil {
			a.metricsSrv = nil
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
		logger.Info("metrics server listening", zap.String("addr", addr))
	}
	return a, nil
}

func (a *App) buildPolicy() crawler.Policy {
	if !a.cfg.Robots.Respect {
		a.logger.Warn("robots rules are not enforced")
		return robots.AllowAll{}
	}
	loader := robots.NewLoader(&http.Client{Timeout: a.cfg.Robots.Timeout}, a.cfg.Download.UserAgent)
	return robots.NewCache(loader, a.cfg.Download.UserAgent, robots.Mode(a.cfg.Robots.Mode), a.logger.Named("robots"))
}

func (a *App) buildFetchers() (crawler.FetcherFactory, error) {
	switch a.cfg.Fetch.Backend {
	case config.BackendColly:
		return collyfetcher.NewFactory(collyfetcher.Config{UserAgent: a.cfg.Download.UserAgent}), nil
	case config.BackendChromedp:
		return headless.NewFactory(headless.Config{
			UserAgent:  a.cfg.Download.UserAgent,
			ExecPath:   a.cfg.Fetch.ChromePath,
			Headful:    a.cfg.Fetch.Headful,
			LoadImages: a.cfg.Fetch.LoadImages,
		}, a.logger.Named("browser")), nil
	default:
		return nil, fmt.Errorf("unknown fetch backend %q", a.cfg.Fetch.Backend)
	}
}

func (a *App) buildWriter(ctx context.Context, blobs crawler.BlobStore) error {
	a.outputName = a.cfg.Download.OutputPath()
	if blobs != nil {
		a.writer = storage.NewResultsWriter(blobs, a.cfg.Storage.Prefix)
		return nil
	}
	switch a.cfg.Storage.Backend {
	case config.StorageLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Download.OutputDir})
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		blobs = store
		a.outputName = a.cfg.Download.OutputFile
	case config.StorageGCS:
		store, closeFn, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("init gcs storage: %w", err)
		}
		blobs = store
		a.closers = append(a.closers, closeFn)
	case config.StorageMemory:
		blobs = memory.NewBlobStore()
	default:
		return fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
	a.writer = storage.NewResultsWriter(blobs, a.cfg.Storage.Prefix)
	return nil
}

func (a *App) buildPublisher(ctx context.Context) error {
	switch a.cfg.PubSub.Backend {
	case config.PublisherMemory:
		a.publisher = memorypublisher.New()
	case config.PublisherPubSub:
		pub, err := pubsub.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return fmt.Errorf("init publisher: %w", err)
		}
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
	default:
		return fmt.Errorf("unknown publisher backend %q", a.cfg.PubSub.Backend)
	}
	return nil
}

// Run downloads urls and hands the results to the configured sinks. The
// report is returned even when persistence fails.
func (a *App) Run(ctx context.Context, urls []string) (Outcome, error) {
	report, err := a.coordinator.Download(ctx, urls)
	if err != nil {
		return Outcome{}, fmt.Errorf("download batch: %w", err)
	}
	out := Outcome{Report: report}
	batchID := report.BatchID.String()
	logger := a.logger.With(zap.String("batch_id", batchID))

	if a.writer != nil {
		uri, err := a.writer.Write(ctx, a.outputName, report.Results)
		if err != nil {
			return out, fmt.Errorf("persist results: %w", err)
		}
		out.OutputURI = uri
		logger.Info("results persisted", zap.String("uri", uri), zap.Int("urls", len(report.Results)))
	}
	if a.results != nil {
		if err := a.results.StoreResults(ctx, batchID, report.Results); err != nil {
			return out, fmt.Errorf("store result rows: %w", err)
		}
		logger.Info("result rows stored", zap.Int("rows", len(report.Results)))
	}
	if a.publisher != nil {
		id, err := a.publisher.Publish(ctx, a.cfg.PubSub.TopicName, Notification{
			BatchID:   batchID,
			OutputURI: out.OutputURI,
			Summary:   report.Summary,
		})
		if err != nil {
			return out, fmt.Errorf("publish notification: %w", err)
		}
		out.MessageID = id
		logger.Info("completion published", zap.String("message_id", id))
	}
	return out, nil
}

// Close drains progress events and releases every service. It is safe to
// call more than once.
func (a *App) Close(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("close progress hub", zap.Error(err))
		}
		a.hub = nil
	}
	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("shutdown metrics server", zap.Error(err))
		}
		a.metricsSrv = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close service", zap.Error(err))
		}
	}
	a.closers = nil
}

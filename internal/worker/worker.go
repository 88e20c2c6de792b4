// Package worker implements the per-chunk fetch loop: one page fetcher handle,
// URLs processed strictly in order, robots rules checked on the post-redirect
// URL before the page is rendered and extracted.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-downloader/internal/clock/system"
	"github.com/JakeFAU/news-downloader/internal/crawler"
	"github.com/JakeFAU/news-downloader/internal/metrics"
	"github.com/JakeFAU/news-downloader/internal/progress"
	"github.com/JakeFAU/news-downloader/internal/ratelimit"
)

const (
	defaultResolveTimeout = 10 * time.Second
	defaultRenderTimeout  = 20 * time.Second
)

// Config controls Worker behavior.
type Config struct {
	// Index identifies the worker within its batch.
	Index int
	// BatchID tags progress events.
	BatchID [16]byte
	// ResolveTimeout bounds the first navigation, which only resolves redirects.
	ResolveTimeout time.Duration
	// RenderTimeout bounds the navigation that retrieves the document.
	RenderTimeout time.Duration
}

// Deps are the collaborators a Worker drives. Fetchers, Policy, and Extractor
// are required.
type Deps struct {
	Fetchers  crawler.FetcherFactory
	Policy    crawler.Policy
	Extractor crawler.Extractor
	Pacer     crawler.Pacer
	Emitter   progress.Emitter
	Clock     crawler.Clock
}

// Worker processes one chunk of URLs with a single fetcher handle.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = defaultResolveTimeout
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = defaultRenderTimeout
	}
	if deps.Pacer == nil {
		deps.Pacer = ratelimit.Unlimited{}
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Discard
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(zap.Int("worker", cfg.Index)),
	}
}

// Run fetches urls in order and returns one result per distinct URL, keyed by
// the original URL. Per-URL failures are recorded as results. An error is
// returned only when no fetcher handle could be acquired.
func (w *Worker) Run(ctx context.Context, urls []string) (map[string]crawler.Result, error) {
	started := w.deps.Clock.Now()
	handle, err := w.deps.Fetchers.Acquire(ctx)
	if err != nil {
		w.emit(progress.Event{Stage: progress.StageWorkerError, Total: len(urls), Note: err.Error()})
		return nil, fmt.Errorf("acquire page fetcher: %w", err)
	}
	defer func() {
		if cerr := handle.Close(); cerr != nil {
			w.logger.Warn("close page fetcher", zap.Error(cerr))
		}
	}()

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	w.emit(progress.Event{Stage: progress.StageWorkerStart, Total: len(urls)})

	results := make(map[string]crawler.Result, len(urls))
	for i, rawURL := range urls {
		if _, seen := results[rawURL]; seen {
			continue
		}
		urlStart := w.deps.Clock.Now()
		res := w.process(ctx, handle, rawURL)
		results[rawURL] = res

		metrics.ObservePage(rawURL, string(res.Status))
		w.emit(progress.Event{
			Stage:  progress.StageURLDone,
			URL:    rawURL,
			Site:   metrics.SanitizeSite(rawURL),
			Status: res.Status,
			Dur:    w.deps.Clock.Now().Sub(urlStart),
			Note:   res.Message,
		})
		w.logger.Info(fmt.Sprintf("[%d/%d] %s", i+1, len(urls), res.Status),
			zap.String("url", rawURL),
			zap.String("final_url", res.FinalURL),
			zap.String("message", res.Message),
		)
	}

	w.emit(progress.Event{
		Stage: progress.StageWorkerDone,
		Total: len(urls),
		Dur:   w.deps.Clock.Now().Sub(started),
	})
	return results, nil
}

// process runs the two-phase fetch for one URL. It never panics.
func (w *Worker) process(ctx context.Context, handle crawler.PageFetcher, rawURL string) (res crawler.Result) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("recovered while processing url", zap.String("url", rawURL), zap.Any("panic", r))
			res = crawler.FetchError(fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return crawler.FetchError(fmt.Sprintf("canceled before fetch: %v", err))
	}

	if err := w.deps.Pacer.Wait(ctx, rawURL); err != nil {
		return crawler.FetchError(err.Error())
	}
	resolved, err := handle.Navigate(ctx, rawURL, w.cfg.ResolveTimeout)
	if err != nil {
		return crawler.FetchError(fmt.Sprintf("resolve navigation: %v", err))
	}
	finalURL := resolved.FinalURL
	if finalURL == "" {
		finalURL = rawURL
	}

	decision := w.deps.Policy.Check(ctx, finalURL)
	if decision.Warning != nil {
		w.logger.Debug("robots check fell back to allow-all",
			zap.String("url", finalURL), zap.Error(decision.Warning))
	}
	if !decision.Allowed {
		return crawler.Blocked(finalURL)
	}

	if err := w.deps.Pacer.Wait(ctx, finalURL); err != nil {
		return crawler.FetchError(err.Error())
	}
	page, err := handle.Navigate(ctx, finalURL, w.cfg.RenderTimeout)
	if err != nil {
		return crawler.FetchError(fmt.Sprintf("render navigation: %v", err))
	}
	renderedURL := page.FinalURL
	if renderedURL == "" {
		renderedURL = finalURL
	}
	return w.deps.Extractor.Parse(renderedURL, page.HTML)
}

func (w *Worker) emit(evt progress.Event) {
	evt.BatchID = w.cfg.BatchID
	evt.Worker = w.cfg.Index
	if evt.TS.IsZero() {
		evt.TS = w.deps.Clock.Now()
	}
	w.deps.Emitter.Emit(evt)
}

// Package collyfetcher implements page fetchers over plain HTTP using gocolly.
// It does not execute JavaScript; pages are returned as served.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/news-downloader/internal/crawler"
)

// ErrHandleClosed is returned by Navigate after Close.
var ErrHandleClosed = errors.New("collector handle closed")

// Config controls collector behavior.
type Config struct {
	UserAgent string
	// Transport overrides the default pooled transport, mainly for tests.
	Transport http.RoundTripper
}

// Factory hands out one collector per acquired handle.
type Factory struct {
	cfg Config
}

// NewFactory builds a Factory.
func NewFactory(cfg Config) *Factory {
	return &Factory{cfg: cfg}
}

// Acquire implements crawler.FetcherFactory.
func (f *Factory) Acquire(ctx context.Context) (crawler.PageFetcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire collector: %w", err)
	}
	c := colly.NewCollector(colly.Async(false))
	transport := f.cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	if f.cfg.UserAgent != "" {
		c.UserAgent = f.cfg.UserAgent
	}
	// Robots rules are enforced by the worker against the post-redirect URL.
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	return &Handle{base: c}, nil
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// Handle wraps a collector owned by a single worker.
type Handle struct {
	base   *colly.Collector
	closed bool
}

// Navigate performs a GET for rawURL, following redirects, and returns the
// final URL with the response body.
func (h *Handle) Navigate(ctx context.Context, rawURL string, timeout time.Duration) (crawler.Snapshot, error) {
	if h.closed {
		return crawler.Snapshot{}, ErrHandleClosed
	}
	var (
		snap     crawler.Snapshot
		fetchErr error
	)
	collector := h.base.Clone()
	// Requests carry ctx so cancellation aborts the in-flight transfer.
	collector.Context = ctx
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	if timeout > 0 {
		collector.SetRequestTimeout(timeout)
	}
	configureHooks(collector, &snap, &fetchErr)

	if err := runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return crawler.Snapshot{}, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	if snap.FinalURL == "" {
		snap.FinalURL = rawURL
	}
	return snap, nil
}

// Close releases the handle. Subsequent Navigate calls fail.
func (h *Handle) Close() error {
	h.closed = true
	return nil
}

func configureHooks(hooks collectorHooks, snap *crawler.Snapshot, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		finalURL := ""
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		*snap = crawler.Snapshot{
			FinalURL: finalURL,
			HTML:     append([]byte(nil), r.Body...),
		}
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		// Visit observes the same ctx; wait so hooks stop writing before return.
		<-done
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("colly fetch canceled: %w", ctxErr)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

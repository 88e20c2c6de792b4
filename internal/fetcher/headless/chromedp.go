// Package headless provides page fetchers that render pages in headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-downloader/internal/crawler"
)

// ErrBrowserUnavailable indicates the browser process could not be started.
var ErrBrowserUnavailable = errors.New("headless browser unavailable")

// ErrHandleClosed is returned by Navigate after Close.
var ErrHandleClosed = errors.New("browser handle closed")

const readySelector = "body"

// Config controls how browser processes are launched.
type Config struct {
	UserAgent string
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
	// Headful shows the browser window; used for local debugging only.
	Headful bool
	// LoadImages re-enables image downloads, which are off by default.
	LoadImages bool
}

// Factory launches one browser per acquired handle.
type Factory struct {
	cfg    Config
	logger *zap.Logger
}

// NewFactory builds a Factory.
func NewFactory(cfg Config, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, logger: logger}
}

// Acquire starts a browser and returns a handle owning it. The caller must
// Close the handle.
func (f *Factory) Acquire(ctx context.Context) (crawler.PageFetcher, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), f.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	warmCtx, warmCancel := context.WithTimeout(browserCtx, 30*time.Second)
	stopForward := forwardCancel(ctx, warmCancel)
	err := chromedp.Run(warmCtx)
	stopForward()
	warmCancel()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", ErrBrowserUnavailable, err)
	}
	f.logger.Debug("browser started")

	return &Handle{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		userAgent:     f.cfg.UserAgent,
	}, nil
}

func (f *Factory) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", !f.cfg.Headful),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if !f.cfg.LoadImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if f.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.cfg.UserAgent))
	}
	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}
	return opts
}

// Handle is a single browser owned by one worker. It is not safe for
// concurrent use.
type Handle struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	userAgent     string

	closeOnce sync.Once
	closed    bool
}

// Navigate opens rawURL in a fresh tab and returns the rendered document once
// the body is ready. It fails if readiness is not reached within timeout.
func (h *Handle) Navigate(ctx context.Context, rawURL string, timeout time.Duration) (crawler.Snapshot, error) {
	if h.closed {
		return crawler.Snapshot{}, ErrHandleClosed
	}
	tabCtx, cancelTab := chromedp.NewContext(h.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	var (
		html     string
		finalURL string
	)
	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady(readySelector, chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if h.userAgent != "" {
		tasks = append(chromedp.Tasks{emulation.SetUserAgentOverride(h.userAgent)}, tasks...)
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return crawler.Snapshot{}, fmt.Errorf("navigate %s: document not ready within %s: %w", rawURL, timeout, err)
		}
		return crawler.Snapshot{}, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	if finalURL == "" {
		finalURL = rawURL
	}
	return crawler.Snapshot{FinalURL: finalURL, HTML: []byte(html)}, nil
}

// Close shuts the browser down. Subsequent calls are no-ops.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closed = true
		h.browserCancel()
		h.allocCancel()
	})
	return nil
}

// forwardCancel cancels cancel when parent is done, until the returned stop
// function is called.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

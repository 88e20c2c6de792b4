// Package crawlertest provides in-memory fakes of the crawler interfaces for
// worker and coordinator tests.
package crawlertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/news-downloader/internal/crawler"
	"github.com/JakeFAU/news-downloader/internal/progress"
)

// Page scripts how the fake fetcher answers for one URL.
type Page struct {
	// RedirectTo becomes the snapshot's final URL when set.
	RedirectTo string
	HTML       string
	Err        error
	// Delay simulates load time; exceeding the navigation timeout fails.
	Delay time.Duration
	Panic bool
}

// Call records one Navigate invocation.
type Call struct {
	URL     string
	Timeout time.Duration
}

// Site is a scripted set of pages shared by every fetcher from a Factory.
// Unscripted URLs load instantly with a body naming the URL.
type Site struct {
	mu    sync.Mutex
	pages map[string]Page
}

// NewSite builds an empty Site.
func NewSite() *Site {
	return &Site{pages: make(map[string]Page)}
}

// Set scripts rawURL.
func (s *Site) Set(rawURL string, p Page) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[rawURL] = p
	return s
}

func (s *Site) page(rawURL string) Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[rawURL]
	if !ok {
		return Page{HTML: "page:" + rawURL}
	}
	return p
}

// Fetcher is a scripted crawler.PageFetcher.
type Fetcher struct {
	site    *Site
	mu      sync.Mutex
	calls   []Call
	closed  atomic.Int32
	onClose func()
}

// Navigate implements crawler.PageFetcher.
func (f *Fetcher) Navigate(ctx context.Context, rawURL string, timeout time.Duration) (crawler.Snapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{URL: rawURL, Timeout: timeout})
	f.mu.Unlock()

	p := f.site.page(rawURL)
	if p.Panic {
		panic("driver crashed on " + rawURL)
	}
	if p.Delay > 0 {
		if p.Delay > timeout {
			return crawler.Snapshot{}, fmt.Errorf("wait ready: %w", context.DeadlineExceeded)
		}
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return crawler.Snapshot{}, ctx.Err()
		}
	}
	if p.Err != nil {
		return crawler.Snapshot{}, p.Err
	}
	final := rawURL
	if p.RedirectTo != "" {
		final = p.RedirectTo
	}
	return crawler.Snapshot{FinalURL: final, HTML: []byte(p.HTML)}, nil
}

// Close implements crawler.PageFetcher.
func (f *Fetcher) Close() error {
	f.closed.Add(1)
	if f.onClose != nil {
		f.onClose()
	}
	return nil
}

// Calls returns the recorded navigations.
func (f *Fetcher) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CloseCount reports how many times Close was called.
func (f *Fetcher) CloseCount() int {
	return int(f.closed.Load())
}

// Factory hands out Fetchers over a shared Site.
type Factory struct {
	Site *Site
	// FailAcquire makes the nth Acquire call (1-based) fail; 0 disables.
	FailAcquire int
	// PanicAcquire makes the nth Acquire call (1-based) panic; 0 disables.
	PanicAcquire int

	mu       sync.Mutex
	acquired int
	fetchers []*Fetcher
	open     atomic.Int32
}

// ErrAcquire is returned by a Factory configured to fail.
var ErrAcquire = errors.New("browser failed to start")

// Acquire implements crawler.FetcherFactory.
func (f *Factory) Acquire(context.Context) (crawler.PageFetcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired++
	if f.PanicAcquire > 0 && f.acquired == f.PanicAcquire {
		panic("fetcher factory exploded")
	}
	if f.FailAcquire > 0 && f.acquired == f.FailAcquire {
		return nil, ErrAcquire
	}
	site := f.Site
	if site == nil {
		site = NewSite()
	}
	fetcher := &Fetcher{site: site, onClose: func() { f.open.Add(-1) }}
	f.open.Add(1)
	f.fetchers = append(f.fetchers, fetcher)
	return fetcher, nil
}

// Fetchers returns every fetcher handed out so far.
func (f *Factory) Fetchers() []*Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Fetcher(nil), f.fetchers...)
}

// Open reports handles acquired but not yet closed.
func (f *Factory) Open() int {
	return int(f.open.Load())
}

// Policy disallows any URL containing one of the listed substrings.
type Policy struct {
	Disallow []string
	Warning  error

	mu      sync.Mutex
	checked []string
}

// Check implements crawler.Policy.
func (p *Policy) Check(_ context.Context, rawURL string) crawler.Decision {
	p.mu.Lock()
	p.checked = append(p.checked, rawURL)
	p.mu.Unlock()
	for _, frag := range p.Disallow {
		if strings.Contains(rawURL, frag) {
			return crawler.Decision{Allowed: false, Warning: p.Warning}
		}
	}
	return crawler.Decision{Allowed: true, Warning: p.Warning}
}

// Checked returns the URLs the policy was asked about.
func (p *Policy) Checked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.checked...)
}

// Extractor returns an article whose title is the document body, or
// parse_failed when the body starts with "unknown".
type Extractor struct{}

// Parse implements crawler.Extractor.
func (Extractor) Parse(finalURL string, html []byte) crawler.Result {
	body := string(html)
	if strings.HasPrefix(body, "unknown") {
		return crawler.ParseFailed(finalURL, "unrecognized page type")
	}
	return crawler.Success(finalURL, crawler.Page{Type: crawler.PageTypeArticle, Title: body})
}

// Emitter records every event it receives.
type Emitter struct {
	mu     sync.Mutex
	events []progress.Event
}

// Emit implements progress.Emitter.
func (e *Emitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

// Events returns the recorded events in arrival order.
func (e *Emitter) Events() []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]progress.Event(nil), e.events...)
}

// Stages returns how many events of each stage were recorded.
func (e *Emitter) Stages() map[progress.Stage]int {
	counts := make(map[progress.Stage]int)
	for _, evt := range e.Events() {
		counts[evt.Stage]++
	}
	return counts
}

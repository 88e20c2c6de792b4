// Package coordinator splits a URL batch into contiguous chunks, runs one
// worker per chunk in parallel, and merges the per-chunk results.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-downloader/internal/clock/system"
	"github.com/JakeFAU/news-downloader/internal/crawler"
	iduuid "github.com/JakeFAU/news-downloader/internal/id/uuid"
	"github.com/JakeFAU/news-downloader/internal/metrics"
	"github.com/JakeFAU/news-downloader/internal/progress"
	"github.com/JakeFAU/news-downloader/internal/worker"
)

// ErrInvalidWorkers is returned when the worker count is not positive.
var ErrInvalidWorkers = errors.New("worker count must be positive")

// Partition splits urls into k contiguous chunks whose sizes differ by at most
// one; the first len(urls)%k chunks get the extra element. Chunks may be empty
// when k exceeds len(urls).
func Partition(urls []string, k int) [][]string {
	if k <= 0 {
		return nil
	}
	n := len(urls)
	base, extra := n/k, n%k
	chunks := make([][]string, k)
	start := 0
	for i := 0; i < k; i++ {
		size := base
		if i < extra {
			size++
		}
		chunks[i] = urls[start : start+size : start+size]
		start += size
	}
	return chunks
}

// Gap records a chunk whose worker failed before returning results.
type Gap struct {
	Worker int
	URLs   []string
	Err    error
}

// Summary carries aggregate counts for a batch.
type Summary struct {
	BatchID      string        `json:"batch_id"`
	Total        int           `json:"total"`
	Succeeded    int           `json:"succeeded"`
	Blocked      int           `json:"blocked"`
	ParseFailed  int           `json:"parse_failed"`
	FetchErrors  int           `json:"fetch_errors"`
	GapURLs      int           `json:"gap_urls"`
	Workers      int           `json:"workers"`
	FailedChunks int           `json:"failed_chunks"`
	Elapsed      time.Duration `json:"elapsed_ns"`
}

// Failed counts URLs that ended blocked or with a fetch error.
func (s Summary) Failed() int {
	return s.Blocked + s.FetchErrors
}

// Report is the outcome of a batch. Results holds exactly one entry per
// distinct input URL.
type Report struct {
	BatchID uuid.UUID
	Results map[string]crawler.Result
	Summary Summary
	Gaps    []Gap
}

// Config controls a Coordinator.
type Config struct {
	Workers int
	Worker  worker.Config
}

// IDSource mints batch identifiers.
type IDSource interface {
	NewBatchID() (uuid.UUID, error)
}

// Coordinator runs download batches.
type Coordinator struct {
	deps   worker.Deps
	cfg    Config
	ids    IDSource
	logger *zap.Logger
}

// New builds a Coordinator. deps are shared by every worker; the policy,
// extractor, and pacer must be safe for concurrent use.
func New(deps worker.Deps, cfg Config, logger *zap.Logger) *Coordinator {
	if deps.Emitter == nil {
		deps.Emitter = progress.Discard
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{deps: deps, cfg: cfg, ids: iduuid.New(), logger: logger}
}

type chunkOutcome struct {
	index   int
	urls    []string
	results map[string]crawler.Result
	err     error
}

// Download fetches every URL and returns the merged report. Worker failures
// never fail the batch: the affected URLs are reported as gaps and receive a
// fetch_error result. Only an invalid worker count returns an error.
func (c *Coordinator) Download(ctx context.Context, urls []string) (Report, error) {
	if c.cfg.Workers <= 0 {
		return Report{}, fmt.Errorf("%w: got %d", ErrInvalidWorkers, c.cfg.Workers)
	}
	batchID, err := c.ids.NewBatchID()
	if err != nil {
		return Report{}, fmt.Errorf("generate batch id: %w", err)
	}
	started := c.deps.Clock.Now()
	unique := Dedupe(urls)
	logger := c.logger.With(zap.String("batch_id", batchID.String()))

	c.emit(batchID, progress.Event{Stage: progress.StageBatchStart, Total: len(unique)})
	logger.Info("batch started", zap.Int("urls", len(unique)), zap.Int("workers", c.cfg.Workers))

	outcomes := make(chan chunkOutcome, c.cfg.Workers)
	launched := 0
	for i, chunk := range Partition(unique, c.cfg.Workers) {
		if len(chunk) == 0 {
			continue
		}
		launched++
		go c.runChunk(ctx, batchID, i, chunk, outcomes, logger)
	}

	report := Report{
		BatchID: batchID,
		Results: make(map[string]crawler.Result, len(unique)),
	}
	for received := 0; received < launched; received++ {
		out := <-outcomes
		if out.err != nil {
			logger.Error("worker failed", zap.Int("worker", out.index), zap.Int("urls", len(out.urls)), zap.Error(out.err))
			report.Gaps = append(report.Gaps, Gap{Worker: out.index, URLs: out.urls, Err: out.err})
			continue
		}
		for u, res := range out.results {
			report.Results[u] = res
		}
		logger.Debug("worker finished", zap.Int("worker", out.index), zap.Int("urls", len(out.results)))
	}
	fillGaps(report.Results, report.Gaps, unique)

	report.Summary = summarize(report.Results, report.Gaps)
	report.Summary.Workers = launched
	report.Summary.BatchID = batchID.String()
	report.Summary.Elapsed = c.deps.Clock.Now().Sub(started)

	outcome := "complete"
	if report.Summary.Failed() > 0 || len(report.Gaps) > 0 {
		outcome = "partial"
	}
	metrics.ObserveBatch(outcome)
	c.emit(batchID, progress.Event{Stage: progress.StageBatchDone, Total: len(unique), Dur: report.Summary.Elapsed})
	logger.Info("batch finished",
		zap.Int("total", report.Summary.Total),
		zap.Int("succeeded", report.Summary.Succeeded),
		zap.Int("blocked", report.Summary.Blocked),
		zap.Int("parse_failed", report.Summary.ParseFailed),
		zap.Int("fetch_errors", report.Summary.FetchErrors),
		zap.Int("gap_urls", report.Summary.GapURLs),
		zap.Duration("elapsed", report.Summary.Elapsed),
	)
	return report, nil
}

// runChunk always sends exactly one outcome, even if the worker panics.
func (c *Coordinator) runChunk(
	ctx context.Context,
	batchID uuid.UUID,
	index int,
	chunk []string,
	outcomes chan<- chunkOutcome,
	logger *zap.Logger,
) {
	out := chunkOutcome{index: index, urls: chunk}
	defer func() {
		if r := recover(); r != nil {
			out.results = nil
			out.err = fmt.Errorf("worker %d panicked: %v", index, r)
		}
		outcomes <- out
	}()

	cfg := c.cfg.Worker
	cfg.Index = index
	cfg.BatchID = progress.UUIDToBytes(batchID)
	out.results, out.err = worker.New(c.deps, cfg, logger.Named("worker")).Run(ctx, chunk)
}

func (c *Coordinator) emit(batchID uuid.UUID, evt progress.Event) {
	evt.BatchID = progress.UUIDToBytes(batchID)
	evt.TS = c.deps.Clock.Now()
	c.deps.Emitter.Emit(evt)
}

// Dedupe drops repeated URLs, keeping the first occurrence.
func Dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// fillGaps gives every gap URL, and any input URL a worker failed to report,
// a fetch_error result.
func fillGaps(results map[string]crawler.Result, gaps []Gap, urls []string) {
	for _, gap := range gaps {
		msg := fmt.Sprintf("worker %d failed: %v", gap.Worker, gap.Err)
		for _, u := range gap.URLs {
			if _, ok := results[u]; !ok {
				results[u] = crawler.FetchError(msg)
			}
		}
	}
	for _, u := range urls {
		if _, ok := results[u]; !ok {
			results[u] = crawler.FetchError("no result reported for url")
		}
	}
}

func summarize(results map[string]crawler.Result, gaps []Gap) Summary {
	s := Summary{Total: len(results), FailedChunks: len(gaps)}
	for _, res := range results {
		switch res.Status {
		case crawler.StatusSuccess:
			s.Succeeded++
		case crawler.StatusBlocked:
			s.Blocked++
		case crawler.StatusParseFailed:
			s.ParseFailed++
		case crawler.StatusFetchError:
			s.FetchErrors++
		}
	}
	for _, gap := range gaps {
		s.GapURLs += len(gap.URLs)
	}
	return s
}

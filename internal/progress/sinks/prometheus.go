package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/news-downloader/internal/progress"
)

// PrometheusSink exports batch progress via Prometheus collectors it owns.
type PrometheusSink struct {
	batchesStarted prometheus.Counter
	batchesRunning prometheus.Gauge
	batchRuntime   prometheus.Histogram

	workerErrors prometheus.Counter
	urlResults   *prometheus.CounterVec
	urlDuration  *prometheus.HistogramVec

	tracker *batchTracker
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		batchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdl_progress_batches_started_total",
			Help: "Download batches that have started.",
		}),
		batchesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "newsdl_progress_batches_running",
			Help: "Download batches currently running.",
		}),
		batchRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsdl_progress_batch_runtime_seconds",
			Help:    "Wall time per completed batch.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		workerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdl_progress_worker_errors_total",
			Help: "Workers that failed before finishing their chunk.",
		}),
		urlResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdl_progress_url_results_total",
			Help: "Per-URL terminal results partitioned by site and status.",
		}, []string{"site", "status"}),
		urlDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsdl_progress_url_duration_seconds",
			Help:    "Time spent per URL partitioned by status.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40},
		}, []string{"status"}),
		tracker: newBatchTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.batchesStarted,
		s.batchesRunning,
		s.batchRuntime,
		s.workerErrors,
		s.urlResults,
		s.urlDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageBatchStart:
		s.batchesStarted.Inc()
		if s.tracker.start(evt.BatchID) {
			s.batchesRunning.Inc()
		}
	case progress.StageBatchDone:
		if evt.Dur > 0 {
			s.batchRuntime.Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.BatchID) {
			s.batchesRunning.Dec()
		}
	case progress.StageWorkerError:
		s.workerErrors.Inc()
	case progress.StageURLDone:
		site := evt.Site
		if site == "" {
			site = "unknown"
		}
		s.urlResults.WithLabelValues(site, string(evt.Status)).Inc()
		if evt.Dur > 0 {
			s.urlDuration.WithLabelValues(string(evt.Status)).Observe(evt.Dur.Seconds())
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type batchTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newBatchTracker() *batchTracker {
	return &batchTracker{running: make(map[[16]byte]struct{})}
}

func (t *batchTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *batchTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}

package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-downloader/internal/crawler"
	"github.com/JakeFAU/news-downloader/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms follow the event stream.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	batchID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{BatchID: batchID, TS: now, Stage: progress.StageBatchStart, Total: 3},
		{BatchID: batchID, TS: now, Stage: progress.StageBatchStart, Total: 3},
		{
			BatchID: batchID, TS: now, Stage: progress.StageURLDone, Worker: 0,
			URL: "https://news.example/a", Site: "news.example", Status: crawler.StatusSuccess,
			Dur: 2 * time.Second,
		},
		{
			BatchID: batchID, TS: now, Stage: progress.StageURLDone, Worker: 1,
			URL: "https://news.example/interactive/x", Site: "news.example", Status: crawler.StatusBlocked,
		},
		{BatchID: batchID, TS: now, Stage: progress.StageWorkerError, Worker: 2, Note: "boom"},
		{BatchID: batchID, TS: now.Add(time.Minute), Stage: progress.StageBatchDone, Dur: time.Minute},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.batchesStarted))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.batchesRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.workerErrors))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.urlResults.WithLabelValues("news.example", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.urlResults.WithLabelValues("news.example", "blocked")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.urlDuration, "newsdl_progress_url_duration_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.batchRuntime, "newsdl_progress_batch_runtime_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

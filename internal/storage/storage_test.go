package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-downloader/internal/crawler"
	"github.com/JakeFAU/news-downloader/internal/storage/memory"
)

func TestResultsWriterRoundTrip(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	w := NewResultsWriter(blobs, "/runs/")
	results := map[string]crawler.Result{
		"https://news.example/a": crawler.Success("https://news.example/a", crawler.Page{Type: crawler.PageTypeArticle, Title: "A & B"}),
		"https://news.example/b": crawler.FetchError("timeout"),
	}

	uri, err := w.Write(context.Background(), "/output.json", results)
	require.NoError(t, err)
	require.Equal(t, "memory://runs/output.json", uri)

	data, ok := blobs.Get("runs/output.json")
	require.True(t, ok)
	require.Contains(t, string(data), "A & B")

	decoded, err := crawler.DecodeResults(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, results, decoded)
	require.Equal(t, JSONContentType, blobs.ContentType("runs/output.json"))
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("disk full")
}

func TestResultsWriterErrors(t *testing.T) {
	t.Parallel()

	_, err := NewResultsWriter(failingStore{}, "").Write(context.Background(), "out.json", nil)
	require.ErrorContains(t, err, "disk full")

	var nilWriter *ResultsWriter
	_, err = nilWriter.Write(context.Background(), "out.json", nil)
	require.Error(t, err)
}

// Package storage persists download results: the JSON document through a blob
// store and, optionally, one row per URL through a result store.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/JakeFAU/news-downloader/internal/crawler"
)

// JSONContentType is the content type of the persisted results document.
const JSONContentType = "application/json; charset=utf-8"

// ResultsWriter encodes a result map and hands it to a blob store.
type ResultsWriter struct {
	blobs  crawler.BlobStore
	prefix string
}

// NewResultsWriter builds a ResultsWriter. prefix is prepended to every object path.
func NewResultsWriter(blobs crawler.BlobStore, prefix string) *ResultsWriter {
	return &ResultsWriter{blobs: blobs, prefix: strings.Trim(prefix, "/")}
}

// Write stores results at name and returns the blob URI.
func (w *ResultsWriter) Write(ctx context.Context, name string, results map[string]crawler.Result) (string, error) {
	if w == nil || w.blobs == nil {
		return "", fmt.Errorf("results writer is not configured")
	}
	var buf bytes.Buffer
	if err := crawler.EncodeResults(&buf, results); err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}
	uri, err := w.blobs.PutObject(ctx, w.objectPath(name), JSONContentType, &buf)
	if err != nil {
		return "", fmt.Errorf("put results object: %w", err)
	}
	return uri, nil
}

func (w *ResultsWriter) objectPath(name string) string {
	name = strings.TrimLeft(name, "/")
	if w.prefix == "" {
		return name
	}
	return path.Join(w.prefix, name)
}

package crawler

import (
	"context"
	"io"
	"time"
)

// PageFetcher is a worker-owned browser or client handle. Implementations are
// not safe for concurrent use; one worker drives one handle sequentially.
type PageFetcher interface {
	// Navigate loads rawURL, waits at most timeout for the document to be
	// ready, and returns the post-redirect URL with the rendered markup.
	Navigate(ctx context.Context, rawURL string, timeout time.Duration) (Snapshot, error)
	// Close tears the handle down. It is called exactly once per handle.
	Close() error
}

// FetcherFactory acquires fresh page fetcher handles.
type FetcherFactory interface {
	Acquire(ctx context.Context) (PageFetcher, error)
}

// Decision is the outcome of a robots policy check. Warning is non-nil when
// the rules could not be loaded and the check fell back to allow-all.
type Decision struct {
	Allowed bool
	Warning error
}

// Policy answers crawl permission for a fully qualified URL.
type Policy interface {
	Check(ctx context.Context, rawURL string) Decision
}

// Extractor turns rendered markup into a Result.
type Extractor interface {
	Parse(finalURL string, html []byte) Result
}

// Pacer delays navigations to respect per-host budgets.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// ResultStore persists per-URL results row by row.
type ResultStore interface {
	StoreResults(ctx context.Context, batchID string, results map[string]Result) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Package crawler holds the result model, the JSON codec for persisted
// batches, and the small interfaces that connect fetchers, the robots policy,
// the extractor, and the persistence layer.
package crawler

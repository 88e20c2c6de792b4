package crawler

import (
	"errors"
	"fmt"
)

// Status is the discriminator of a per-URL Result.
type Status string

// Terminal outcomes recorded for every input URL.
const (
	StatusSuccess     Status = "success"
	StatusBlocked     Status = "blocked"
	StatusParseFailed Status = "parse_failed"
	StatusFetchError  Status = "fetch_error"
)

// ErrUnknownStatus is returned when a result carries an unrecognised discriminator.
var ErrUnknownStatus = errors.New("unknown result status")

// PageType identifies the layout family of a fetched page.
type PageType string

// Page layouts understood by the extractor.
const (
	PageTypeArticle   PageType = "article"
	PageTypeLiveStory PageType = "live-story"
	PageTypeGallery   PageType = "gallery"
	PageTypeUnknown   PageType = "unknown"
)

// Post is one entry of a live story, kept in document order.
type Post struct {
	Title   string `json:"title"`
	Time    string `json:"time"`
	Content string `json:"content"`
}

// Page is the structured content extracted from a successfully parsed document.
type Page struct {
	Type    PageType `json:"page_type"`
	Title   string   `json:"title"`
	Time    string   `json:"time"`
	Content string   `json:"content"`
	// Posts is only populated for live stories; it is never nil for them.
	Posts []Post `json:"posts,omitempty"`
}

// Result is the terminal outcome for a single URL. Exactly one variant is
// populated, selected by Status:
//   - success: Page is set, FinalURL is the URL that was rendered.
//   - blocked: FinalURL is the post-redirect URL refused by robots rules.
//   - parse_failed: Message explains why the layout could not be extracted.
//   - fetch_error: Message carries the navigation or driver failure.
type Result struct {
	Status   Status `json:"status"`
	FinalURL string `json:"final_url,omitempty"`
	Page     *Page  `json:"page,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Success builds a success result.
func Success(finalURL string, page Page) Result {
	if page.Type == PageTypeLiveStory && page.Posts == nil {
		page.Posts = []Post{}
	}
	return Result{Status: StatusSuccess, FinalURL: finalURL, Page: &page}
}

// Blocked builds a result for a URL disallowed by robots rules.
func Blocked(finalURL string) Result {
	return Result{Status: StatusBlocked, FinalURL: finalURL}
}

// ParseFailed builds a result for a page whose layout could not be extracted.
func ParseFailed(finalURL, reason string) Result {
	return Result{Status: StatusParseFailed, FinalURL: finalURL, Message: reason}
}

// FetchError builds a result for a navigation or driver failure.
func FetchError(message string) Result {
	return Result{Status: StatusFetchError, Message: message}
}

// Validate checks that the populated fields match the variant.
func (r Result) Validate() error {
	switch r.Status {
	case StatusSuccess:
		if r.Page == nil {
			return errors.New("success result requires a page")
		}
		if r.Message != "" {
			return errors.New("success result must not carry a message")
		}
	case StatusBlocked:
		if r.Page != nil {
			return errors.New("blocked result must not carry a page")
		}
	case StatusParseFailed, StatusFetchError:
		if r.Page != nil {
			return fmt.Errorf("%s result must not carry a page", r.Status)
		}
		if r.Message == "" {
			return fmt.Errorf("%s result requires a message", r.Status)
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownStatus, r.Status)
	}
	return nil
}

// Failed reports whether the result counts against the batch (blocked or fetch error).
func (r Result) Failed() bool {
	return r.Status == StatusBlocked || r.Status == StatusFetchError
}

// Snapshot is what a page fetcher returns for one navigation.
type Snapshot struct {
	// FinalURL is the document URL after redirects.
	FinalURL string
	// HTML is the rendered markup.
	HTML []byte
}

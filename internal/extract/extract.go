// Package extract turns rendered news pages into structured records. The page
// layout is selected by the data-page-type attribute and each layout is read
// with a small set of class markers.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-downloader/internal/crawler"
)

// ErrLayoutMissing reports that a container required by the page layout is absent.
var ErrLayoutMissing = errors.New("layout missing")

const pageTypeAttr = "data-page-type"

var (
	boilerplate = []string{"Published", "Updated"}
	// Pseudo-element text some renders leak into paragraph text.
	textArtifacts = []string{"::before"}

	articleHeadings = headingSet("h1", "h2", "h3", "h4", "h5", "h6")
	postHeadings    = headingSet("h3", "h4", "h5", "h6")
)

// Classify reads the page type from <body>, falling back to <html>.
func Classify(doc *goquery.Document) crawler.PageType {
	if doc == nil {
		return crawler.PageTypeUnknown
	}
	value, ok := doc.Find("body").First().Attr(pageTypeAttr)
	if !ok {
		value, _ = doc.Find("html").First().Attr(pageTypeAttr)
	}
	switch crawler.PageType(strings.TrimSpace(value)) {
	case crawler.PageTypeArticle:
		return crawler.PageTypeArticle
	case crawler.PageTypeLiveStory:
		return crawler.PageTypeLiveStory
	case crawler.PageTypeGallery:
		return crawler.PageTypeGallery
	default:
		return crawler.PageTypeUnknown
	}
}

// Extractor builds crawler results from parsed documents. It holds no
// per-document state and is safe for concurrent use.
type Extractor struct {
	markers Markers
	logger  *zap.Logger
}

// New builds an Extractor using markers.
func New(markers Markers, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{markers: markers, logger: logger}
}

// Parse implements crawler.Extractor.
func (e *Extractor) Parse(finalURL string, html []byte) crawler.Result {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return crawler.ParseFailed(finalURL, fmt.Sprintf("parse document: %v", err))
	}
	return e.Extract(Classify(doc), doc, finalURL)
}

// Extract dispatches on pageType. Unknown layouts and missing containers
// become parse_failed results; Extract never panics on odd markup.
func (e *Extractor) Extract(pageType crawler.PageType, doc *goquery.Document, finalURL string) crawler.Result {
	var (
		page crawler.Page
		err  error
	)
	switch pageType {
	case crawler.PageTypeArticle:
		page, err = e.article(doc)
	case crawler.PageTypeLiveStory:
		page, err = e.liveStory(doc)
	case crawler.PageTypeGallery:
		page, err = e.gallery(doc)
	default:
		return crawler.ParseFailed(finalURL, fmt.Sprintf("unrecognized page type %q", pageType))
	}
	if err != nil {
		e.logger.Debug("extraction failed",
			zap.String("url", finalURL),
			zap.String("page_type", string(pageType)),
			zap.Error(err),
		)
		return crawler.ParseFailed(finalURL, err.Error())
	}
	return crawler.Success(finalURL, page)
}

func (e *Extractor) article(doc *goquery.Document) (crawler.Page, error) {
	layout := e.markers.Article
	body := find(doc.Selection, layout.Body)
	if body.Length() == 0 {
		return crawler.Page{}, fmt.Errorf("%w: article body container", ErrLayoutMissing)
	}
	return crawler.Page{
		Type:    crawler.PageTypeArticle,
		Title:   trimmedText(find(doc.Selection, layout.Headline)),
		Time:    stripTimestamp(find(doc.Selection, layout.Timestamp).Text()),
		Content: walk(body, articleHeadings),
	}, nil
}

func (e *Extractor) liveStory(doc *goquery.Document) (crawler.Page, error) {
	layout := e.markers.LiveStory
	container := find(doc.Selection, layout.Posts)
	if container.Length() == 0 {
		return crawler.Page{}, fmt.Errorf("%w: live-story posts container", ErrLayoutMissing)
	}

	posts := make([]crawler.Post, 0)
	container.Find(layout.Post.Selector()).Each(func(_ int, wrapper *goquery.Selection) {
		post := crawler.Post{
			Title: trimmedText(find(wrapper, layout.PostHeadline)),
			Time:  find(wrapper, layout.PostTime).Text(),
		}
		if body := find(wrapper, layout.PostBody); body.Length() > 0 {
			post.Content = walk(body, postHeadings)
		}
		posts = append(posts, post)
	})

	return crawler.Page{
		Type:    crawler.PageTypeLiveStory,
		Title:   trimmedText(find(doc.Selection, layout.Headline)),
		Time:    stripTimestamp(find(doc.Selection, layout.Timestamp).Text()),
		Content: leadText(find(doc.Selection, layout.Lead)),
		Posts:   posts,
	}, nil
}

func (e *Extractor) gallery(doc *goquery.Document) (crawler.Page, error) {
	layout := e.markers.Gallery
	content := find(doc.Selection, layout.Content)
	if content.Length() == 0 {
		return crawler.Page{}, fmt.Errorf("%w: gallery content container", ErrLayoutMissing)
	}
	return crawler.Page{
		Type:    crawler.PageTypeGallery,
		Title:   trimmedText(find(doc.Selection, layout.Headline)),
		Time:    stripTimestamp(find(doc.Selection, layout.Timestamp).Text()),
		Content: trimmedText(content),
	}, nil
}

func find(sel *goquery.Selection, m Marker) *goquery.Selection {
	return sel.Find(m.Selector()).First()
}

// walk concatenates the direct children of container: paragraphs append their
// text and a newline, headings in allowed append **text**.
func walk(container *goquery.Selection, headings map[string]struct{}) string {
	var sb strings.Builder
	container.Children().Each(func(_ int, child *goquery.Selection) {
		name := goquery.NodeName(child)
		if name == "p" {
			sb.WriteString(trimmedText(child))
			sb.WriteByte('\n')
			return
		}
		if _, ok := headings[name]; ok {
			sb.WriteString("**")
			sb.WriteString(trimmedText(child))
			sb.WriteString("**")
		}
	})
	return sb.String()
}

func leadText(lead *goquery.Selection) string {
	if lead.Length() == 0 {
		return ""
	}
	items := lead.ChildrenFiltered("li")
	if items.Length() == 0 {
		return trimmedText(lead)
	}
	var sb strings.Builder
	items.Each(func(_ int, li *goquery.Selection) {
		sb.WriteString(trimmedText(li))
		sb.WriteByte('\n')
	})
	return sb.String()
}

func trimmedText(sel *goquery.Selection) string {
	text := sel.Text()
	for _, artifact := range textArtifacts {
		text = strings.ReplaceAll(text, artifact, "")
	}
	return strings.TrimSpace(text)
}

func stripTimestamp(raw string) string {
	for _, word := range boilerplate {
		raw = strings.ReplaceAll(raw, word, "")
	}
	return strings.TrimSpace(raw)
}

func headingSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

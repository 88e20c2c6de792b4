package extract

import "strings"

// Marker locates a node by tag name and a set of acceptable class names. A node
// matches when it carries ANY of the classes, which absorbs stylesheet drift
// between renders of the same layout.
type Marker struct {
	Tag     string
	Classes []string
}

// WithClasses returns a copy of m using classes, or m unchanged when classes
// holds no class names. An entry may be a whole class attribute such as
// "headline__text vossi-headline-text"; it is split into separate classes.
func (m Marker) WithClasses(classes []string) Marker {
	split := splitClasses(classes)
	if len(split) == 0 {
		return m
	}
	return Marker{Tag: m.Tag, Classes: split}
}

// Selector renders m as a CSS selector group.
func (m Marker) Selector() string {
	tag := m.Tag
	classes := splitClasses(m.Classes)
	if len(classes) == 0 {
		if tag == "" {
			return "*"
		}
		return tag
	}
	parts := make([]string, 0, len(classes))
	for _, class := range classes {
		parts = append(parts, tag+"."+class)
	}
	return strings.Join(parts, ", ")
}

// splitClasses breaks entries on whitespace and drops duplicates, keeping
// first-seen order.
func splitClasses(entries []string) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		for _, class := range strings.Fields(entry) {
			if _, ok := seen[class]; ok {
				continue
			}
			seen[class] = struct{}{}
			out = append(out, class)
		}
	}
	return out
}

// ArticleLayout holds the markers of a standard article.
type ArticleLayout struct {
	Timestamp Marker
	Headline  Marker
	Body      Marker
}

// LiveStoryLayout holds the markers of a live story and its posts.
type LiveStoryLayout struct {
	Timestamp    Marker
	Headline     Marker
	Lead         Marker
	Posts        Marker
	Post         Marker
	PostTime     Marker
	PostHeadline Marker
	PostBody     Marker
}

// GalleryLayout holds the markers of a photo gallery.
type GalleryLayout struct {
	Timestamp Marker
	Headline  Marker
	Content   Marker
}

// Markers is the full set of layouts understood by the Extractor.
type Markers struct {
	Article   ArticleLayout
	LiveStory LiveStoryLayout
	Gallery   GalleryLayout
}

// DefaultMarkers returns the class markers used by the targeted news site.
func DefaultMarkers() Markers {
	timestamp := Marker{Tag: "div", Classes: []string{"timestamp", "vossi-timestamp"}}
	headline := Marker{Tag: "h1", Classes: []string{"headline__text", "vossi-headline-text"}}
	return Markers{
		Article: ArticleLayout{
			Timestamp: timestamp,
			Headline:  headline,
			Body:      Marker{Tag: "div", Classes: []string{"article__content"}},
		},
		LiveStory: LiveStoryLayout{
			Timestamp:    timestamp,
			Headline:     Marker{Tag: "h1", Classes: []string{"headline_live-story__text"}},
			Lead:         Marker{Tag: "ul", Classes: []string{"list_live-story__items"}},
			Posts:        Marker{Tag: "div", Classes: []string{"live-story__items-container"}},
			Post:         Marker{Tag: "div", Classes: []string{"live-story-post__wrapper"}},
			PostTime:     Marker{Tag: "time"},
			PostHeadline: Marker{Tag: "h2", Classes: []string{"live-story-post__headline"}},
			PostBody:     Marker{Tag: "div", Classes: []string{"live-story-post__content"}},
		},
		Gallery: GalleryLayout{
			Timestamp: timestamp,
			Headline:  headline,
			Content:   Marker{Tag: "div", Classes: []string{"gallery__content", "gallery-inline__container"}},
		},
	}
}

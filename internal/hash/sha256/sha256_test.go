package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-downloader/internal/crawler"
)

func TestHashExtractedContent(t *testing.T) {
	t.Parallel()

	page := crawler.Page{
		Type:    crawler.PageTypeArticle,
		Content: "First paragraph.\n**Heading**Second paragraph.\n",
	}
	h := New()

	got, err := h.Hash([]byte(page.Content))
	require.NoError(t, err)
	require.Equal(t, "5179c6f8052387eafdfa77851405623d751f1977666f826d70a79421b160b4c1", got)

	again, err := h.Hash([]byte(page.Content))
	require.NoError(t, err)
	require.Equal(t, got, again)

	edited, err := h.Hash([]byte(page.Content + "Correction appended.\n"))
	require.NoError(t, err)
	require.NotEqual(t, got, edited)
}

func TestHashEmptyLiveStory(t *testing.T) {
	t.Parallel()

	got, err := New().Hash([]byte(crawler.Page{Type: crawler.PageTypeLiveStory}.Content))
	require.NoError(t, err)
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", got)
}

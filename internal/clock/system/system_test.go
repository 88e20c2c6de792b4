package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-downloader/internal/crawler"
)

func TestClockStampsUTC(t *testing.T) {
	t.Parallel()

	var clk crawler.Clock = New()
	before := time.Now().Add(-time.Second)
	got := clk.Now()
	after := time.Now().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after), "got %v", got)
}

func TestClockMeasuresElapsedBatchTime(t *testing.T) {
	t.Parallel()

	clk := New()
	started := clk.Now()
	time.Sleep(5 * time.Millisecond)
	elapsed := clk.Now().Sub(started)

	require.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
	require.Less(t, elapsed, time.Minute)
}

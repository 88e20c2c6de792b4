package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-downloader/internal/metrics"
)

func TestLimiterWaitPacesSameHost(t *testing.T) {
	metrics.Init()
	l := New(Config{HostQPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://news.example/a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://NEWS.example/b"))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	l := New(Config{HostQPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/"))
	require.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestLimiterDisabled(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(ctx, "https://news.example/"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterContextCancelled(t *testing.T) {
	l := New(Config{HostQPS: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://news.example/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://news.example/"))
}

func TestUnlimited(t *testing.T) {
	require.NoError(t, Unlimited{}.Wait(context.Background(), "x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Unlimited{}.Wait(ctx, "x"), context.Canceled)
}

func TestHostOf(t *testing.T) {
	require.Equal(t, "news.example", hostOf("https://News.Example:443/x"))
	require.Equal(t, "unknown", hostOf("::not a url"))
	require.Equal(t, "unknown", hostOf("/relative"))
}

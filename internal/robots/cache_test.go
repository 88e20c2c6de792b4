package robots

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-downloader/internal/metrics"
)

func newRobotsServer(t *testing.T, status int, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCacheCheckAppliesRules(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := newRobotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /interactive/\nAllow: /interactive/2024/", nil)
	cache := NewCache(NewLoader(srv.Client(), "newsdl"), "newsdl", ModeLastMatch, zap.NewNop())
	ctx := context.Background()

	d := cache.Check(ctx, srv.URL+"/interactive/2024/politics/x")
	require.True(t, d.Allowed)
	require.NoError(t, d.Warning)

	d = cache.Check(ctx, srv.URL+"/interactive/other")
	require.False(t, d.Allowed)
	require.NoError(t, d.Warning)
}

func TestCacheLoadsOncePerHostUnderConcurrency(t *testing.T) {
	t.Parallel()
	metrics.Init()

	var hits atomic.Int32
	srv := newRobotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private", &hits)
	cache := NewCache(NewLoader(srv.Client(), "newsdl"), "newsdl", "", zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := cache.Check(context.Background(), fmt.Sprintf("%s/private/%d", srv.URL, i))
			assert.False(t, d.Allowed)
		}(i)
	}
	wg.Wait()
	require.Equal(t, int32(1), hits.Load())
}

func TestCacheFailsOpenOnServerError(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := newRobotsServer(t, http.StatusServiceUnavailable, "", nil)
	cache := NewCache(NewLoader(srv.Client(), "newsdl"), "newsdl", ModeLastMatch, zap.NewNop())

	d := cache.Check(context.Background(), srv.URL+"/anything")
	require.True(t, d.Allowed)
	require.Error(t, d.Warning)
	require.True(t, errors.Is(d.Warning, ErrPolicyLoad))
}

func TestCacheFailsOpenWhenUnreachable(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := newRobotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /", nil)
	base := srv.URL
	srv.Close()

	cache := NewCache(NewLoader(nil, "newsdl"), "newsdl", ModeLastMatch, zap.NewNop())
	d := cache.Check(context.Background(), base+"/blocked-if-reachable")
	require.True(t, d.Allowed)
	require.ErrorIs(t, d.Warning, ErrPolicyLoad)
}

func TestCacheMissingRobotsAllowsWithoutWarning(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := newRobotsServer(t, http.StatusNotFound, "", nil)
	cache := NewCache(NewLoader(srv.Client(), "newsdl"), "newsdl", ModeLastMatch, zap.NewNop())

	d := cache.Check(context.Background(), srv.URL+"/x")
	require.True(t, d.Allowed)
	require.NoError(t, d.Warning)
}

func TestCacheStandardModeUsesLongestMatch(t *testing.T) {
	t.Parallel()
	metrics.Init()

	body := "User-agent: *\nDisallow: /a/b\nAllow: /a/\n"
	srv := newRobotsServer(t, http.StatusOK, body, nil)

	lastMatch := NewCache(NewLoader(srv.Client(), "newsdl"), "newsdl", ModeLastMatch, zap.NewNop())
	standard := NewCache(NewLoader(srv.Client(), "newsdl"), "newsdl", ModeStandard, zap.NewNop())

	require.True(t, lastMatch.Check(context.Background(), srv.URL+"/a/b/c").Allowed)
	require.False(t, standard.Check(context.Background(), srv.URL+"/a/b/c").Allowed)
}

func TestCacheMatchesEscapedAndQueryRules(t *testing.T) {
	t.Parallel()
	metrics.Init()

	body := "User-agent: *\nDisallow: /新闻/\nDisallow: /search?q=\n"
	srv := newRobotsServer(t, http.StatusOK, body, nil)
	cache := NewCache(NewLoader(srv.Client(), "newsdl"), "newsdl", ModeLastMatch, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		path    string
		allowed bool
	}{
		{path: "/新闻/a", allowed: false},
		{path: "/%E6%96%B0%E9%97%BB/a", allowed: false},
		{path: "/search?q=x", allowed: false},
		{path: "/search?page=2", allowed: true},
		{path: "/search", allowed: true},
		{path: "/news/a", allowed: true},
	}
	for _, tt := range tests {
		d := cache.Check(ctx, srv.URL+tt.path)
		require.Equal(t, tt.allowed, d.Allowed, tt.path)
		require.NoError(t, d.Warning, tt.path)
	}
}

func TestCacheUnusableURL(t *testing.T) {
	t.Parallel()

	cache := NewCache(NewLoader(nil, "newsdl"), "newsdl", ModeLastMatch, nil)
	d := cache.Check(context.Background(), "about:blank")
	require.True(t, d.Allowed)
	require.ErrorIs(t, d.Warning, ErrPolicyLoad)
}

func TestAllowAll(t *testing.T) {
	t.Parallel()

	d := AllowAll{}.Check(context.Background(), "https://example.com/interactive/")
	require.True(t, d.Allowed)
	require.NoError(t, d.Warning)
}

func TestModeValid(t *testing.T) {
	t.Parallel()

	require.True(t, ModeLastMatch.Valid())
	require.True(t, ModeStandard.Valid())
	require.False(t, Mode("longest").Valid())
}

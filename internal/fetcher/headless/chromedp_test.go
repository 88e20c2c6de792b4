package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAcquireMissingBrowser(t *testing.T) {
	t.Parallel()

	f := NewFactory(Config{ExecPath: "/nonexistent/chrome-binary"}, zap.NewNop())
	handle, err := f.Acquire(context.Background())
	require.Nil(t, handle)
	require.ErrorIs(t, err, ErrBrowserUnavailable)
}

func TestAllocatorOptionsGrowWithConfig(t *testing.T) {
	t.Parallel()

	base := len(NewFactory(Config{LoadImages: true}, nil).allocatorOptions())
	full := len(NewFactory(Config{UserAgent: "ua", ExecPath: "/bin/chrome"}, nil).allocatorOptions())
	require.Equal(t, base+3, full)
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child context was not cancelled")
	}
}

func TestForwardCancelStop(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	stop()
	cancelParent()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, child.Err())
	require.NotPanics(t, func() { forwardCancel(nil, cancelChild)() })
}

func TestHandleNavigateFollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<!doctype html><html><body data-page-type="article"><p>rendered</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	handle, err := NewFactory(Config{UserAgent: "newsdl-test"}, zap.NewNop()).Acquire(context.Background())
	if errors.Is(err, ErrBrowserUnavailable) {
		t.Skipf("chrome unavailable: %v", err)
	}
	require.NoError(t, err)
	defer handle.Close() //nolint:errcheck

	snap, err := handle.Navigate(context.Background(), srv.URL+"/old", 10*time.Second)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(snap.FinalURL, "/new"), snap.FinalURL)
	require.Contains(t, string(snap.HTML), "rendered")

	require.NoError(t, handle.Close())
	_, err = handle.Navigate(context.Background(), srv.URL+"/new", time.Second)
	require.ErrorIs(t, err, ErrHandleClosed)
}

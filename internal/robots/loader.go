package robots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	locator "github.com/benjaminestes/robots/v2"
)

// ErrPolicyLoad marks a robots resource that could not be retrieved. Callers
// treat it as a warning and fall back to allow-all.
var ErrPolicyLoad = errors.New("robots policy load failed")

const maxRobotsBodyBytes = 512 * 1024

// Loader retrieves robots.txt resources over HTTP.
type Loader struct {
	client    *http.Client
	userAgent string
}

// NewLoader builds a Loader. A nil client gets a 10 second timeout.
func NewLoader(client *http.Client, userAgent string) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Loader{client: client, userAgent: userAgent}
}

// Load fetches the robots resource governing rawURL. A missing resource (4xx)
// yields an empty body and no error. Network failures and 5xx responses wrap
// ErrPolicyLoad.
func (l *Loader) Load(ctx context.Context, rawURL string) ([]byte, error) {
	robotsURL, err := locator.Locate(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: locate robots for %q: %v", ErrPolicyLoad, rawURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: new robots request: %v", ErrPolicyLoad, err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrPolicyLoad, robotsURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully consumed or abandoned

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %s returned status %d", ErrPolicyLoad, robotsURL, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrPolicyLoad, robotsURL, err)
	}
	return body, nil
}

package robots

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-downloader/internal/crawler"
	"github.com/JakeFAU/news-downloader/internal/metrics"
)

// Cache evaluates robots rules with a once-per-host, read-only rule cache.
// It is safe for concurrent use by every worker in a batch.
type Cache struct {
	loader    *Loader
	userAgent string
	mode      Mode
	logger    *zap.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	once    sync.Once
	eval    Evaluator
	warning error
}

// NewCache builds a Cache. An empty mode defaults to ModeLastMatch.
func NewCache(loader *Loader, userAgent string, mode Mode, logger *zap.Logger) *Cache {
	if mode == "" {
		mode = ModeLastMatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		loader:    loader,
		userAgent: userAgent,
		mode:      mode,
		logger:    logger,
		entries:   make(map[string]*cacheEntry),
	}
}

// Check implements crawler.Policy.
func (c *Cache) Check(ctx context.Context, rawURL string) crawler.Decision {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return crawler.Decision{
			Allowed: true,
			Warning: fmt.Errorf("%w: unusable url %q", ErrPolicyLoad, rawURL),
		}
	}

	entry := c.entry(strings.ToLower(parsed.Scheme + "://" + parsed.Host))
	entry.once.Do(func() {
		entry.eval, entry.warning = c.load(ctx, rawURL)
		if entry.warning != nil {
			metrics.ObserveRobotsFallback(parsed.Hostname())
			c.logger.Warn("robots unavailable; allowing all paths",
				zap.String("host", parsed.Host),
				zap.Error(entry.warning),
			)
		}
	})

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return crawler.Decision{
		Allowed: entry.eval.Allowed(path),
		Warning: entry.warning,
	}
}

func (c *Cache) entry(key string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{}
		c.entries[key] = e
	}
	return e
}

func (c *Cache) load(ctx context.Context, rawURL string) (Evaluator, error) {
	body, err := c.loader.Load(ctx, rawURL)
	if err != nil {
		return RuleSet{}, err
	}
	if c.mode == ModeStandard {
		eval, perr := parseStandard(body, c.userAgent)
		if perr != nil {
			return RuleSet{}, fmt.Errorf("%w: %v", ErrPolicyLoad, perr)
		}
		return eval, nil
	}
	return Parse(string(body), c.userAgent), nil
}

// AllowAll is the policy used when robots enforcement is switched off.
type AllowAll struct{}

// Check implements crawler.Policy.
func (AllowAll) Check(context.Context, string) crawler.Decision {
	return crawler.Decision{Allowed: true}
}

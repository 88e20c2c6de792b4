package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Download.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Download.Workers)
	}
	if got := cfg.Download.OutputPath(); got != "parserd/output.json" {
		t.Fatalf("unexpected output path %q", got)
	}
	if !cfg.Download.Persist || !cfg.Robots.Respect {
		t.Fatalf("expected persist and robots respect by default: %+v", cfg)
	}
	if cfg.Download.UserAgent != DefaultUserAgent {
		t.Fatalf("unexpected user agent %q", cfg.Download.UserAgent)
	}
	if cfg.Fetch.Backend != BackendChromedp || cfg.Robots.Mode != "last-match" {
		t.Fatalf("unexpected backend/mode: %s/%s", cfg.Fetch.Backend, cfg.Robots.Mode)
	}
	if cfg.Fetch.ResolveTimeout != 10*time.Second || cfg.Fetch.RenderTimeout != 20*time.Second {
		t.Fatalf("unexpected timeouts: %v/%v", cfg.Fetch.ResolveTimeout, cfg.Fetch.RenderTimeout)
	}
	if cfg.Storage.Backend != StorageLocal || cfg.DB.Table != "news_results" {
		t.Fatalf("unexpected storage defaults: %+v %+v", cfg.Storage, cfg.DB)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
  level: debug
download:
  workers: 3
  output_dir: out
  output_file: batch.json
  persist: false
  user_agent: real-agent
fetch:
  backend: colly
  resolve_timeout: 2s
  render_timeout: 5s
  host_qps: 1.5
robots:
  mode: standard
  timeout: 3s
extract:
  article_body_classes: ["story__body", "article__content"]
storage:
  backend: gcs
  gcs_bucket: bucket
  prefix: runs
db:
  dsn: postgres://localhost/news
pubsub:
  project_id: proj
  topic_name: batches
metrics:
  listen_addr: ":9102"
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, 3, cfg.Download.Workers)
	require.Equal(t, "out/batch.json", cfg.Download.OutputPath())
	require.False(t, cfg.Download.Persist)
	require.Equal(t, "real-agent", cfg.Download.UserAgent)
	require.Equal(t, BackendColly, cfg.Fetch.Backend)
	require.Equal(t, 2*time.Second, cfg.Fetch.ResolveTimeout)
	require.Equal(t, 5*time.Second, cfg.Fetch.RenderTimeout)
	require.InDelta(t, 1.5, cfg.Fetch.HostQPS, 1e-9)
	require.Equal(t, "standard", cfg.Robots.Mode)
	require.Equal(t, 3*time.Second, cfg.Robots.Timeout)
	require.Equal(t, "bucket", cfg.Storage.GCSBucket)
	require.Equal(t, "runs", cfg.Storage.Prefix)
	require.Equal(t, "postgres://localhost/news", cfg.DB.DSN)
	require.Equal(t, "batches", cfg.PubSub.TopicName)
	require.Equal(t, ":9102", cfg.Metrics.ListenAddr)

	markers := cfg.Extract.Markers()
	require.Equal(t, "div.story__body, div.article__content", markers.Article.Body.Selector())
	require.Equal(t, "div.timestamp, div.vossi-timestamp", markers.Article.Timestamp.Selector())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("NEWSDL_DOWNLOAD_WORKERS", "9")
	t.Setenv("NEWSDL_FETCH_BACKEND", "colly")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 9, cfg.Download.Workers)
	require.Equal(t, BackendColly, cfg.Fetch.Backend)
}

func TestLoadWithViperKeepsBoundValues(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.Set("download.workers", 7)
	v.Set("download.persist", false)

	cfg, err := LoadWithViper(v, "")
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Download.Workers)
	require.False(t, cfg.Download.Persist)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero workers", mutate: func(c *Config) { c.Download.Workers = 0 }, wantErr: "download.workers"},
		{name: "empty output file", mutate: func(c *Config) { c.Download.OutputFile = " " }, wantErr: "output_file"},
		{
			name:   "empty output file without persist",
			mutate: func(c *Config) { c.Download.OutputFile = ""; c.Download.Persist = false },
		},
		{name: "empty user agent", mutate: func(c *Config) { c.Download.UserAgent = "" }, wantErr: "user_agent"},
		{name: "bad backend", mutate: func(c *Config) { c.Fetch.Backend = "curl" }, wantErr: "fetch.backend"},
		{name: "zero render timeout", mutate: func(c *Config) { c.Fetch.RenderTimeout = 0 }, wantErr: "render_timeout"},
		{name: "negative qps", mutate: func(c *Config) { c.Fetch.HostQPS = -1 }, wantErr: "host_qps"},
		{name: "bad robots mode", mutate: func(c *Config) { c.Robots.Mode = "longest" }, wantErr: "robots.mode"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Backend = StorageGCS }, wantErr: "gcs_bucket"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Backend = "s3" }, wantErr: "storage.backend"},
		{name: "topic without project", mutate: func(c *Config) { c.PubSub.TopicName = "t" }, wantErr: "project_id"},
		{
			name:   "memory topic without project",
			mutate: func(c *Config) { c.PubSub.Backend = PublisherMemory; c.PubSub.TopicName = "t" },
		},
		{name: "unknown publisher", mutate: func(c *Config) { c.PubSub.Backend = "kafka" }, wantErr: "pubsub.backend"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}

func TestExtractMarkersPerLayoutOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
extract:
  timestamp_classes: ["stamp"]
  headline_classes: ["headline__text inline-placeholder vossi-headline-text"]
  live_timestamp_classes: ["live-stamp"]
  live_post_time_classes: ["post-time"]
  live_post_headline_classes: ["post__title"]
  live_post_body_classes: ["post__body", "live-story-post__content"]
  gallery_headline_classes: ["gallery__title"]
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	m := cfg.Extract.Markers()

	require.Equal(t, "div.stamp", m.Article.Timestamp.Selector())
	require.Equal(t, "div.stamp", m.Gallery.Timestamp.Selector())
	require.Equal(t, "div.live-stamp", m.LiveStory.Timestamp.Selector())
	require.Equal(t, "h1.headline__text, h1.inline-placeholder, h1.vossi-headline-text", m.Article.Headline.Selector())
	require.Equal(t, "h1.gallery__title", m.Gallery.Headline.Selector())
	require.Equal(t, "time.post-time", m.LiveStory.PostTime.Selector())
	require.Equal(t, "h2.post__title", m.LiveStory.PostHeadline.Selector())
	require.Equal(t, "div.post__body, div.live-story-post__content", m.LiveStory.PostBody.Selector())
	require.Equal(t, "h1.headline_live-story__text", m.LiveStory.Headline.Selector())
}

func TestExtractMarkersSharedHeadlineReachesGallery(t *testing.T) {
	t.Parallel()

	m := ExtractConfig{HeadlineClasses: []string{"story-title"}}.Markers()
	require.Equal(t, "h1.story-title", m.Article.Headline.Selector())
	require.Equal(t, "h1.story-title", m.Gallery.Headline.Selector())
	require.Equal(t, "h2.live-story-post__headline", m.LiveStory.PostHeadline.Selector())
	require.Equal(t, "div.live-story-post__content", m.LiveStory.PostBody.Selector())
}

// Package config loads and validates downloader configuration via Viper.
package config

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/news-downloader/internal/extract"
	"github.com/JakeFAU/news-downloader/internal/robots"
)

// DefaultUserAgent is a desktop Chrome identity; it is also the agent used to
// select robots groups.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// EnvPrefix prefixes every environment override, e.g. NEWSDL_DOWNLOAD_WORKERS.
const EnvPrefix = "NEWSDL"

// Fetch backends.
const (
	BackendChromedp = "chromedp"
	BackendColly    = "colly"
)

// Storage backends.
const (
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

// Config captures all downloader configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Download DownloadConfig `mapstructure:"download"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Robots   RobotsConfig   `mapstructure:"robots"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DownloadConfig governs a batch run.
type DownloadConfig struct {
	Workers    int    `mapstructure:"workers"`
	OutputDir  string `mapstructure:"output_dir"`
	OutputFile string `mapstructure:"output_file"`
	Persist    bool   `mapstructure:"persist"`
	UserAgent  string `mapstructure:"user_agent"`
	URLsFile   string `mapstructure:"urls_file"`
}

// OutputPath joins the output directory and file name.
func (d DownloadConfig) OutputPath() string {
	return path.Join(d.OutputDir, d.OutputFile)
}

// FetchConfig selects and tunes the page fetcher.
type FetchConfig struct {
	Backend        string        `mapstructure:"backend"`
	ResolveTimeout time.Duration `mapstructure:"resolve_timeout"`
	RenderTimeout  time.Duration `mapstructure:"render_timeout"`
	HostQPS        float64       `mapstructure:"host_qps"`
	HostBurst      int           `mapstructure:"host_burst"`
	ChromePath     string        `mapstructure:"chrome_path"`
	Headful        bool          `mapstructure:"headful"`
	LoadImages     bool          `mapstructure:"load_images"`
}

// RobotsConfig controls robots rule enforcement.
type RobotsConfig struct {
	Respect bool          `mapstructure:"respect"`
	Mode    string        `mapstructure:"mode"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ExtractConfig overrides the class names of layout markers. Empty lists keep
// the built-in classes. TimestampClasses and HeadlineClasses apply to every
// layout unless a layout-specific list is set. An entry may be a whole class
// attribute; it is split on whitespace.
type ExtractConfig struct {
	TimestampClasses        []string `mapstructure:"timestamp_classes"`
	HeadlineClasses         []string `mapstructure:"headline_classes"`
	ArticleBodyClasses      []string `mapstructure:"article_body_classes"`
	LiveTimestampClasses    []string `mapstructure:"live_timestamp_classes"`
	LiveHeadlineClasses     []string `mapstructure:"live_headline_classes"`
	LiveLeadClasses         []string `mapstructure:"live_lead_classes"`
	LivePostsClasses        []string `mapstructure:"live_posts_classes"`
	LivePostClasses         []string `mapstructure:"live_post_classes"`
	LivePostTimeClasses     []string `mapstructure:"live_post_time_classes"`
	LivePostHeadlineClasses []string `mapstructure:"live_post_headline_classes"`
	LivePostBodyClasses     []string `mapstructure:"live_post_body_classes"`
	GalleryTimestampClasses []string `mapstructure:"gallery_timestamp_classes"`
	GalleryHeadlineClasses  []string `mapstructure:"gallery_headline_classes"`
	GalleryClasses          []string `mapstructure:"gallery_classes"`
}

// Markers applies the overrides to the default layout markers.
func (e ExtractConfig) Markers() extract.Markers {
	m := extract.DefaultMarkers()

	m.Article.Timestamp = m.Article.Timestamp.WithClasses(e.TimestampClasses)
	m.Article.Headline = m.Article.Headline.WithClasses(e.HeadlineClasses)
	m.Article.Body = m.Article.Body.WithClasses(e.ArticleBodyClasses)

	m.LiveStory.Timestamp = m.LiveStory.Timestamp.WithClasses(firstNonEmpty(e.LiveTimestampClasses, e.TimestampClasses))
	m.LiveStory.Headline = m.LiveStory.Headline.WithClasses(e.LiveHeadlineClasses)
	m.LiveStory.Lead = m.LiveStory.Lead.WithClasses(e.LiveLeadClasses)
	m.LiveStory.Posts = m.LiveStory.Posts.WithClasses(e.LivePostsClasses)
	m.LiveStory.Post = m.LiveStory.Post.WithClasses(e.LivePostClasses)
	m.LiveStory.PostTime = m.LiveStory.PostTime.WithClasses(e.LivePostTimeClasses)
	m.LiveStory.PostHeadline = m.LiveStory.PostHeadline.WithClasses(e.LivePostHeadlineClasses)
	m.LiveStory.PostBody = m.LiveStory.PostBody.WithClasses(e.LivePostBodyClasses)

	m.Gallery.Timestamp = m.Gallery.Timestamp.WithClasses(firstNonEmpty(e.GalleryTimestampClasses, e.TimestampClasses))
	m.Gallery.Headline = m.Gallery.Headline.WithClasses(firstNonEmpty(e.GalleryHeadlineClasses, e.HeadlineClasses))
	m.Gallery.Content = m.Gallery.Content.WithClasses(e.GalleryClasses)
	return m
}

func firstNonEmpty(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}

// StorageConfig sets where persisted batches go.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls optional per-URL row persistence. An empty DSN disables it.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// Publisher backends.
const (
	PublisherPubSub = "pubsub"
	PublisherMemory = "memory"
)

// PubSubConfig holds metadata for batch notifications. An empty topic disables
// them; the memory backend keeps notifications in process for dry runs.
type PubSubConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	return LoadWithViper(viper.New(), path)
}

// LoadWithViper builds a Config from v, which may already carry bound flags.
func LoadWithViper(v *viper.Viper, path string) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("download.workers", 4)
	v.SetDefault("download.output_dir", "parserd")
	v.SetDefault("download.output_file", "output.json")
	v.SetDefault("download.persist", true)
	v.SetDefault("download.user_agent", DefaultUserAgent)
	v.SetDefault("download.urls_file", "")
	v.SetDefault("fetch.backend", BackendChromedp)
	v.SetDefault("fetch.resolve_timeout", 10*time.Second)
	v.SetDefault("fetch.render_timeout", 20*time.Second)
	v.SetDefault("fetch.host_qps", 0.0)
	v.SetDefault("fetch.host_burst", 1)
	v.SetDefault("fetch.chrome_path", "")
	v.SetDefault("fetch.headful", false)
	v.SetDefault("fetch.load_images", false)
	v.SetDefault("robots.respect", true)
	v.SetDefault("robots.mode", string(robots.ModeLastMatch))
	v.SetDefault("robots.timeout", 10*time.Second)
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "news_results")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("pubsub.backend", PublisherPubSub)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.listen_addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Download.Workers <= 0 {
		return fmt.Errorf("download.workers must be > 0")
	}
	if c.Download.Persist && strings.TrimSpace(c.Download.OutputFile) == "" {
		return fmt.Errorf("download.output_file is required when persisting")
	}
	if strings.TrimSpace(c.Download.UserAgent) == "" {
		return fmt.Errorf("download.user_agent must not be empty")
	}
	switch c.Fetch.Backend {
	case BackendChromedp, BackendColly:
	default:
		return fmt.Errorf("fetch.backend must be %q or %q, got %q", BackendChromedp, BackendColly, c.Fetch.Backend)
	}
	if c.Fetch.ResolveTimeout <= 0 || c.Fetch.RenderTimeout <= 0 {
		return fmt.Errorf("fetch.resolve_timeout and fetch.render_timeout must be > 0")
	}
	if c.Fetch.HostQPS < 0 {
		return fmt.Errorf("fetch.host_qps must be >= 0")
	}
	if !robots.Mode(c.Robots.Mode).Valid() {
		return fmt.Errorf("robots.mode must be %q or %q, got %q", robots.ModeLastMatch, robots.ModeStandard, c.Robots.Mode)
	}
	if c.Robots.Respect && c.Robots.Timeout <= 0 {
		return fmt.Errorf("robots.timeout must be > 0 when robots are respected")
	}
	switch c.Storage.Backend {
	case StorageLocal, StorageMemory:
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is %q", StorageGCS)
		}
	default:
		return fmt.Errorf("storage.backend must be one of local, gcs, memory, got %q", c.Storage.Backend)
	}
	switch c.PubSub.Backend {
	case PublisherPubSub:
		if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
		}
	case PublisherMemory:
	default:
		return fmt.Errorf("pubsub.backend must be %q or %q, got %q", PublisherPubSub, PublisherMemory, c.PubSub.Backend)
	}
	return nil
}

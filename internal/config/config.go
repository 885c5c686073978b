// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
)

// EnvPrefix prefixes every environment override, e.g. PNCP_CRAWLER_WORKERS.
const EnvPrefix = "PNCP"

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Storage StorageConfig `mapstructure:"storage"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Unify   UnifyConfig   `mapstructure:"unify"`
	Search  SearchConfig  `mapstructure:"search"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig governs paging and the detail worker pool. BatchSize is how
// many listings are fetched between table writes; zero means one per worker.
type CrawlerConfig struct {
	DocTypes        []string      `mapstructure:"doc_types"`
	Sorts           []string      `mapstructure:"sorts"`
	Query           string        `mapstructure:"query"`
	Status          string        `mapstructure:"status"`
	StartPage       int           `mapstructure:"start_page"`
	MaxPages        int           `mapstructure:"max_pages"`
	PageSize        int           `mapstructure:"page_size"`
	MaxFailedPages  int           `mapstructure:"max_failed_pages"`
	Workers         int           `mapstructure:"workers"`
	BatchSize       int           `mapstructure:"batch_size"`
	PageDelay       time.Duration `mapstructure:"page_delay"`
	InspectArchives bool          `mapstructure:"inspect_archives"`
	ResolveNames    bool          `mapstructure:"resolve_names"`
}

// HTTPConfig configures the upstream client and its retry behavior.
type HTTPConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
	DetailPageSize int           `mapstructure:"detail_page_size"`
	RetryStrategy  string        `mapstructure:"retry_strategy"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
}

// StorageConfig locates the crawl tables.
type StorageConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	Delimiter string `mapstructure:"delimiter"`
}

// ArchiveConfig bounds attachment downloads.
type ArchiveConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxBytes int64         `mapstructure:"max_bytes"`
	TempDir  string        `mapstructure:"temp_dir"`
}

// UnifyConfig selects where unified documents go.
type UnifyConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Parts     int    `mapstructure:"parts"`
	// BlobStore is one of local, gcs or memory.
	BlobStore string `mapstructure:"blob_store"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// SearchConfig selects the index backend.
type SearchConfig struct {
	// Backend is sqlite or postgres.
	Backend    string         `mapstructure:"backend"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
	Limit      int            `mapstructure:"limit"`
	Cutoff     float64        `mapstructure:"cutoff"`
}

// PostgresConfig controls the Postgres index connection.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds the run-summary notification target. Empty disables it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig enables the Prometheus endpoint during crawls when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features and the per-run log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Dir         string `mapstructure:"dir"`
}

// New returns a Viper instance with defaults and environment binding applied.
// Callers may bind flags to it before calling Decode.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load builds a Config from defaults, an optional file and the environment.
func Load(path string) (Config, error) {
	v := New()
	if err := ReadFile(v, path); err != nil {
		return Config{}, err
	}
	return Decode(v)
}

// ReadFile merges the config file at path into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Decode unmarshals and validates v.
func Decode(v *viper.Viper) (Config, error) {
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
	v.SetDefault("crawler.doc_types", []string{"edital", "ata"})
	v.SetDefault("crawler.sorts", []string{crawler.SortOldest, crawler.SortNewest, crawler.SortRelevance})
	v.SetDefault("crawler.status", "todos")
	v.SetDefault("crawler.start_page", 1)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.page_size", 500)
	v.SetDefault("crawler.max_failed_pages", 3)
	v.SetDefault("crawler.workers", 10)
	v.SetDefault("crawler.batch_size", 0)
	v.SetDefault("crawler.page_delay", "1s")
	v.SetDefault("crawler.inspect_archives", true)
	v.SetDefault("crawler.resolve_names", true)
	v.SetDefault("http.base_url", "https://pncp.gov.br")
	v.SetDefault("http.user_agent", "pncp-crawler/1.0")
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.max_body_bytes", 64<<20)
	v.SetDefault("http.detail_page_size", 500)
	v.SetDefault("http.retry_strategy", crawler.RetryExponential)
	v.SetDefault("http.max_attempts", 5)
	v.SetDefault("http.backoff_initial", "1s")
	v.SetDefault("http.backoff_max", "60s")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.delimiter", "\t")
	v.SetDefault("archive.timeout", "2m")
	v.SetDefault("archive.max_bytes", 200<<20)
	v.SetDefault("unify.output_dir", "unified")
	v.SetDefault("unify.parts", 0)
	v.SetDefault("unify.blob_store", "local")
	v.SetDefault("search.backend", "sqlite")
	v.SetDefault("search.sqlite_path", "pncp.db")
	v.SetDefault("search.postgres.table", "pncp_listings")
	v.SetDefault("search.limit", 20)
	v.SetDefault("search.cutoff", 60.0)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.dir", "logs")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Crawler.DocTypes) == 0 {
		return fmt.Errorf("crawler.doc_types must not be empty")
	}
	for _, s := range c.Crawler.Sorts {
		switch s {
		case crawler.SortNewest, crawler.SortOldest, crawler.SortRelevance:
		default:
			return fmt.Errorf("crawler.sorts: unknown sort order %q", s)
		}
	}
	if c.Crawler.StartPage <= 0 {
		return fmt.Errorf("crawler.start_page must be > 0")
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.Crawler.PageSize <= 0 {
		return fmt.Errorf("crawler.page_size must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.BatchSize < 0 {
		return fmt.Errorf("crawler.batch_size must be >= 0")
	}
	if c.HTTP.BaseURL == "" {
		return fmt.Errorf("http.base_url is required")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.RetryStrategy != crawler.RetryExponential && c.HTTP.RetryStrategy != crawler.RetryFixed {
		return fmt.Errorf("http.retry_strategy must be %q or %q", crawler.RetryExponential, crawler.RetryFixed)
	}
	if utf8.RuneCountInString(c.Storage.Delimiter) != 1 {
		return fmt.Errorf("storage.delimiter must be a single character")
	}
	switch c.Unify.BlobStore {
	case "local", "memory":
	case "gcs":
		if c.Unify.GCSBucket == "" {
			return fmt.Errorf("unify.gcs_bucket must be set when unify.blob_store is gcs")
		}
	default:
		return fmt.Errorf("unify.blob_store: unknown store %q", c.Unify.BlobStore)
	}
	if c.Unify.Parts < 0 {
		return fmt.Errorf("unify.parts must be >= 0")
	}
	switch c.Search.Backend {
	case "sqlite":
	case "postgres":
		if c.Search.Postgres.DSN == "" {
			return fmt.Errorf("search.postgres.dsn must be set when search.backend is postgres")
		}
	default:
		return fmt.Errorf("search.backend: unknown backend %q", c.Search.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

// Delimiter returns the table delimiter rune.
func (c Config) Delimiter() rune {
	r, _ := utf8.DecodeRuneInString(c.Storage.Delimiter)
	return r
}

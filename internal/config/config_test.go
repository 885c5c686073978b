package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"edital", "ata"}, cfg.Crawler.DocTypes)
	assert.Equal(t, []string{"data", "-data", "relevancia"}, cfg.Crawler.Sorts)
	assert.Equal(t, 500, cfg.Crawler.PageSize)
	assert.Equal(t, 10, cfg.Crawler.Workers)
	assert.Equal(t, time.Second, cfg.Crawler.PageDelay)
	assert.Equal(t, 5, cfg.HTTP.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, '\t', cfg.Delimiter())
	assert.Equal(t, "sqlite", cfg.Search.Backend)
	assert.Equal(t, "logs", cfg.Logging.Dir)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
crawler:
  doc_types: [ata]
  sorts: ["-data"]
  page_size: 50
  workers: 4
  page_delay: 250ms
  inspect_archives: false
http:
  max_attempts: 2
  retry_strategy: fixed
  backoff_initial: 10ms
storage:
  data_dir: /tmp/pncp
  delimiter: ","
unify:
  parts: 3
  blob_store: gcs
  gcs_bucket: pncp-unified
search:
  backend: postgres
  postgres:
    dsn: postgres://localhost/pncp
logging:
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"ata"}, cfg.Crawler.DocTypes)
	assert.Equal(t, []string{"-data"}, cfg.Crawler.Sorts)
	assert.Equal(t, 50, cfg.Crawler.PageSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Crawler.PageDelay)
	assert.False(t, cfg.Crawler.InspectArchives)
	assert.Equal(t, "fixed", cfg.HTTP.RetryStrategy)
	assert.Equal(t, 10*time.Millisecond, cfg.HTTP.BackoffInitial)
	assert.Equal(t, ',', cfg.Delimiter())
	assert.Equal(t, 3, cfg.Unify.Parts)
	assert.Equal(t, "postgres://localhost/pncp", cfg.Search.Postgres.DSN)
	assert.Equal(t, "pncp_listings", cfg.Search.Postgres.Table)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PNCP_CRAWLER_WORKERS", "7")
	t.Setenv("PNCP_CRAWLER_BATCH_SIZE", "200")
	t.Setenv("PNCP_HTTP_BASE_URL", "http://localhost:8080")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Crawler.Workers)
	assert.Equal(t, 200, cfg.Crawler.BatchSize)
	assert.Equal(t, "http://localhost:8080", cfg.HTTP.BaseURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"no doc types":       func(c *Config) { c.Crawler.DocTypes = nil },
		"bad sort":           func(c *Config) { c.Crawler.Sorts = []string{"random"} },
		"zero start page":    func(c *Config) { c.Crawler.StartPage = 0 },
		"negative max pages": func(c *Config) { c.Crawler.MaxPages = -1 },
		"negative batch":     func(c *Config) { c.Crawler.BatchSize = -1 },
		"zero workers":       func(c *Config) { c.Crawler.Workers = 0 },
		"zero attempts":      func(c *Config) { c.HTTP.MaxAttempts = 0 },
		"bad strategy":       func(c *Config) { c.HTTP.RetryStrategy = "linear" },
		"long delimiter":     func(c *Config) { c.Storage.Delimiter = "||" },
		"gcs without bucket": func(c *Config) { c.Unify.BlobStore = "gcs" },
		"unknown blob store": func(c *Config) { c.Unify.BlobStore = "s3" },
		"postgres no dsn":    func(c *Config) { c.Search.Backend = "postgres" },
		"topic no project":   func(c *Config) { c.PubSub.Topic = "runs" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			cfg.Crawler.DocTypes = append([]string(nil), base.Crawler.DocTypes...)
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

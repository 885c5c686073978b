// Package app builds the long-lived services a command needs from the loaded
// configuration, acting as a small dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/pncp-crawler/internal/archive"
	"github.com/JakeFAU/pncp-crawler/internal/clock/system"
	"github.com/JakeFAU/pncp-crawler/internal/config"
	"github.com/JakeFAU/pncp-crawler/internal/crawler"
	"github.com/JakeFAU/pncp-crawler/internal/dispatcher"
	"github.com/JakeFAU/pncp-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/pncp-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/pncp-crawler/internal/id/uuid"
	"github.com/JakeFAU/pncp-crawler/internal/metrics"
	"github.com/JakeFAU/pncp-crawler/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/pncp-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/pncp-crawler/internal/search"
	pgsearch "github.com/JakeFAU/pncp-crawler/internal/search/postgres"
	sqlitesearch "github.com/JakeFAU/pncp-crawler/internal/search/sqlite"
	gcsstorage "github.com/JakeFAU/pncp-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/pncp-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/pncp-crawler/internal/storage/memory"
	"github.com/JakeFAU/pncp-crawler/internal/table"
	"github.com/JakeFAU/pncp-crawler/internal/unify"
	"github.com/JakeFAU/pncp-crawler/internal/worker"
)

// App holds the configuration, logger and lazily created cloud clients.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  *system.Clock

	pubsubClient  *pubsub.Client
	publisher     *gcppublisher.Publisher
	storageClient *storage.Client
}

// New creates an App. Cloud clients are opened only when configured.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, clock: system.New()}

	if cfg.PubSub.Topic != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.publisher = gcppublisher.New(client, cfg.PubSub.Topic)
		logger.Info("run summaries will be published", zap.String("topic", cfg.PubSub.Topic))
	}
	return a, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Clock returns the wall clock.
func (a *App) Clock() *system.Clock { return a.clock }

// Writer returns a table writer using the configured delimiter.
func (a *App) Writer() *table.Writer {
	return table.NewWriter(a.cfg.Delimiter())
}

// TablePaths returns the table locations for a document type.
func (a *App) TablePaths(docType string) worker.Paths {
	return worker.TablePaths(a.cfg.Storage.DataDir, docType)
}

// RetryPolicy builds the configured retry policy.
func (a *App) RetryPolicy() (crawler.RetryPolicy, error) {
	h := a.cfg.HTTP
	return crawler.NewRetryPolicy(h.RetryStrategy, h.MaxAttempts, h.BackoffInitial, h.BackoffMax)
}

// Fetcher builds the upstream API client on a colly transport.
func (a *App) Fetcher() (*fetcher.Fetcher, error) {
	retry, err := a.RetryPolicy()
	if err != nil {
		return nil, fmt.Errorf("build retry policy: %w", err)
	}
	transport := collyfetcher.New(collyfetcher.Config{
		UserAgent:   a.cfg.HTTP.UserAgent,
		Timeout:     a.cfg.HTTP.Timeout,
		MaxBodySize: a.cfg.HTTP.MaxBodyBytes,
	})
	return fetcher.New(fetcher.Config{
		BaseURL:        a.cfg.HTTP.BaseURL,
		DetailPageSize: a.cfg.HTTP.DetailPageSize,
	}, transport, retry, crawler.TimerSleeper{}, a.logger), nil
}

// Inspector builds the archive inspector.
func (a *App) Inspector() *archive.Inspector {
	return archive.New(archive.Config{
		Timeout:   a.cfg.Archive.Timeout,
		MaxBytes:  a.cfg.Archive.MaxBytes,
		UserAgent: a.cfg.HTTP.UserAgent,
		TempDir:   a.cfg.Archive.TempDir,
	}, a.logger)
}

// Orchestrator wires a crawl run from the configuration.
func (a *App) Orchestrator() (*worker.Orchestrator, error) {
	f, err := a.Fetcher()
	if err != nil {
		return nil, err
	}
	c := a.cfg.Crawler
	wcfg := worker.Config{
		DataDir:        a.cfg.Storage.DataDir,
		DocTypes:       c.DocTypes,
		Sorts:          c.Sorts,
		Query:          c.Query,
		Status:         c.Status,
		StartPage:      c.StartPage,
		MaxPages:       c.MaxPages,
		PageSize:       c.PageSize,
		MaxFailedPages: c.MaxFailedPages,
		BatchSize:      c.BatchSize,
		InspectArchive: c.InspectArchives,
		ResolveNames:   c.ResolveNames,
		Topic:          a.cfg.PubSub.Topic,
	}
	var inspector worker.Inspector
	if c.InspectArchives || c.ResolveNames {
		inspector = a.Inspector()
	}
	var publisher crawler.Publisher
	if a.publisher != nil {
		publisher = a.publisher
	}
	pacer := ratelimit.New(ratelimit.Config{Interval: c.PageDelay})
	return worker.New(
		wcfg,
		f,
		inspector,
		pacer,
		a.Writer(),
		dispatcher.New(c.Workers),
		publisher,
		a.clock,
		uuid.New(),
		a.logger,
	), nil
}

// BlobStore returns the store receiving unified JSON documents.
func (a *App) BlobStore(ctx context.Context) (crawler.BlobStore, error) {
	u := a.cfg.Unify
	switch u.BlobStore {
	case "memory":
		return memorystorage.NewBlobStore(), nil
	case "gcs":
		if a.storageClient == nil {
			client, err := storage.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("gcs client init failed: %w", err)
			}
			a.storageClient = client
		}
		store, err := gcsstorage.New(a.storageClient, gcsstorage.Config{Bucket: u.GCSBucket, Prefix: u.GCSPrefix})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := localstorage.New(localstorage.Config{BaseDir: u.OutputDir})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// Unifier builds the unification service.
func (a *App) Unifier(ctx context.Context, parts int) (*unify.Service, error) {
	blobs, err := a.BlobStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	return unify.NewService(unify.Config{OutputDir: a.cfg.Unify.OutputDir, Parts: parts}, blobs, a.logger), nil
}

// UnifySources names the tables unified for one document type.
func (a *App) UnifySources(docType string) unify.Sources {
	p := a.TablePaths(docType)
	return unify.Sources{
		Name:      docType,
		Listings:  p.Listings,
		Items:     p.Items,
		Files:     p.Files,
		Delimiter: a.cfg.Delimiter(),
	}
}

// OpenIndex opens the configured search index. The caller closes it.
func (a *App) OpenIndex(ctx context.Context) (search.Index, error) {
	s := a.cfg.Search
	switch s.Backend {
	case "postgres":
		idx, err := pgsearch.Open(ctx, pgsearch.Config{
			DSN:             s.Postgres.DSN,
			Table:           s.Postgres.Table,
			MaxConns:        s.Postgres.MaxConns,
			MaxConnLifetime: s.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		idx, err := sqlitesearch.Open(ctx, s.SQLitePath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
}

// ServeMetrics runs the metrics endpoint in the background when configured.
// The returned channel yields the server's exit error.
func (a *App) ServeMetrics(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	if a.cfg.Metrics.Addr == "" {
		close(errCh)
		return errCh
	}
	go func() {
		defer close(errCh)
		if err := metrics.Serve(ctx, a.cfg.Metrics.Addr, a.logger); err != nil {
			a.logger.Error("metrics server failed", zap.Error(err))
			errCh <- err
		}
	}()
	return errCh
}

// Handler exposes the metrics router, mainly for tests.
func (a *App) Handler() http.Handler {
	return metrics.Router()
}

// Close releases cloud clients and flushes the logger.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

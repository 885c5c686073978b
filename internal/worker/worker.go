// Package worker drives one crawl run: paging the search endpoint, fetching
// listing details, inspecting archives and sanitizing the tables.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
	"github.com/JakeFAU/pncp-crawler/internal/dedup"
	"github.com/JakeFAU/pncp-crawler/internal/dispatcher"
	"github.com/JakeFAU/pncp-crawler/internal/fetcher"
	"github.com/JakeFAU/pncp-crawler/internal/table"
)

// State names a stage of the crawl state machine.
type State string

// Crawl states.
const (
	StateInit           State = "INIT"
	StatePaging         State = "PAGING"
	StateDetailFetch    State = "DETAIL_FETCH"
	StateArchiveInspect State = "ARCHIVE_INSPECT"
	StateSanitize       State = "SANITIZE"
	StateDone           State = "DONE"
	StateCancelled      State = "CANCELLED"
)

// Fetcher is the subset of fetcher.Fetcher the orchestrator uses.
type Fetcher interface {
	SearchURL(params fetcher.SearchParams) string
	SearchPage(ctx context.Context, params fetcher.SearchParams) ([]crawler.Record, bool)
	Details(ctx context.Context, listing crawler.Listing, kind crawler.DetailKind) ([]crawler.Record, bool)
}

// Inspector resolves attachment names and lists archive contents.
type Inspector interface {
	ResolveName(ctx context.Context, fileURL string) (string, string, error)
	List(ctx context.Context, fileURL string) ([]string, error)
}

// Config controls one crawl run.
type Config struct {
	DataDir        string
	DocTypes       []string
	Sorts          []string
	Query          string
	Status         string
	StartPage      int
	MaxPages       int
	PageSize       int
	MaxFailedPages int
	BatchSize      int
	InspectArchive bool
	ResolveNames   bool
	Topic          string
}

// Paths holds the table locations for one crawl mode.
type Paths struct {
	Listings string
	Items    string
	Files    string
}

// TablePaths returns the table locations for a document type under dataDir.
func TablePaths(dataDir, docType string) Paths {
	return Paths{
		Listings: filepath.Join(dataDir, docType+"_listings.tsv"),
		Items:    filepath.Join(dataDir, docType+"_items.tsv"),
		Files:    filepath.Join(dataDir, docType+"_files.tsv"),
	}
}

// Orchestrator runs crawls. Only its own goroutine writes tables or mutates
// seen sets; pool tasks return results.
type Orchestrator struct {
	cfg       Config
	fetcher   Fetcher
	inspector Inspector
	pacer     crawler.Pacer
	writer    *table.Writer
	pool      *dispatcher.Pool
	publisher crawler.Publisher
	clock     crawler.Clock
	ids       crawler.IDGenerator
	logger    *zap.Logger
}

// New constructs an Orchestrator. inspector, pacer, publisher and ids may be nil.
func New(
	cfg Config,
	f Fetcher,
	inspector Inspector,
	pacer crawler.Pacer,
	writer *table.Writer,
	pool *dispatcher.Pool,
	publisher crawler.Publisher,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pool == nil {
		pool = dispatcher.New(1)
	}
	if writer == nil {
		writer = table.NewWriter('\t')
	}
	if cfg.StartPage <= 0 {
		cfg.StartPage = 1
	}
	if cfg.MaxFailedPages <= 0 {
		cfg.MaxFailedPages = 3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = pool.Size()
	}
	if len(cfg.Sorts) == 0 {
		cfg.Sorts = []string{crawler.SortNewest}
	}
	return &Orchestrator{
		cfg:       cfg,
		fetcher:   f,
		inspector: inspector,
		pacer:     pacer,
		writer:    writer,
		pool:      pool,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		logger:    logger,
	}
}

// run carries the per-run state passed to each stage.
type run struct {
	summary *Summary
	token   *crawler.CancelToken
	logger  *zap.Logger
}

func (r *run) stopped(ctx context.Context) bool {
	if r.summary.Cancelled {
		return true
	}
	if r.token.Cancelled() || ctx.Err() != nil {
		r.summary.Cancelled = true
		r.logger.Warn("cancellation requested, finishing in-flight work")
		return true
	}
	return false
}

// Run executes the state machine for every configured document type. The
// returned error is non-nil only for fatal conditions; per-request failures
// are counted in the summary.
func (o *Orchestrator) Run(ctx context.Context, token *crawler.CancelToken) (Summary, error) {
	start := o.now()
	summary := Summary{StartedAt: start, State: StateInit}
	if o.ids != nil {
		id, err := o.ids.NewID()
		if err != nil {
			return summary, fmt.Errorf("generate run id: %w", err)
		}
		summary.RunID = id
	}
	r := &run{
		summary: &summary,
		token:   token,
		logger:  o.logger.With(zap.String("run_id", summary.RunID)),
	}
	r.logger.Info("crawl starting",
		zap.Strings("doc_types", o.cfg.DocTypes),
		zap.Strings("sorts", o.cfg.Sorts),
		zap.Int("start_page", o.cfg.StartPage),
		zap.Int("max_pages", o.cfg.MaxPages),
		zap.Int("workers", o.pool.Size()),
	)

	if err := os.MkdirAll(o.cfg.DataDir, 0o755); err != nil {
		return summary, fmt.Errorf("create data dir %s: %w", o.cfg.DataDir, err)
	}

	for _, docType := range o.cfg.DocTypes {
		if err := o.runMode(ctx, r, docType); err != nil {
			summary.Finish(o.now())
			return summary, err
		}
	}

	summary.Finish(o.now())
	r.logger.Info("crawl finished", summary.Fields()...)
	o.publish(ctx, r.logger, summary)
	return summary, nil
}

func (o *Orchestrator) runMode(ctx context.Context, r *run, docType string) error {
	paths := TablePaths(o.cfg.DataDir, docType)
	logger := r.logger.With(zap.String("doc_type", docType))

	o.enter(r, logger, StatePaging)
	if err := o.page(ctx, r, logger, docType, paths); err != nil {
		return err
	}

	if !r.stopped(ctx) {
		o.enter(r, logger, StateDetailFetch)
		o.fetchDetails(ctx, r, logger, paths)
	}

	if o.cfg.InspectArchive && o.inspector != nil && !r.stopped(ctx) {
		o.enter(r, logger, StateArchiveInspect)
		o.inspectArchives(ctx, r, logger, paths)
	}

	o.enter(r, logger, StateSanitize)
	o.sanitize(r, logger, paths)
	return nil
}

func (o *Orchestrator) enter(r *run, logger *zap.Logger, state State) {
	r.summary.State = state
	logger.Info("state transition", zap.String("state", string(state)))
}

func (o *Orchestrator) sanitize(r *run, logger *zap.Logger, paths Paths) {
	for _, path := range []string{paths.Listings, paths.Items, paths.Files} {
		removed, err := o.writer.Sanitize(path)
		if err != nil {
			r.summary.Failures++
			logger.Error("sanitize failed", zap.String("path", path), zap.Error(err))
			continue
		}
		if removed > 0 {
			logger.Info("duplicate rows removed", zap.String("path", path), zap.Int("rows", removed))
		}
		r.summary.RowsSanitized += removed
	}
}

func (o *Orchestrator) publish(ctx context.Context, logger *zap.Logger, summary Summary) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	id, err := o.publisher.Publish(ctx, o.cfg.Topic, summary)
	if err != nil {
		logger.Warn("publish run summary failed", zap.Error(err))
		return
	}
	logger.Info("run summary published", zap.String("message_id", id), zap.String("topic", o.cfg.Topic))
}

func (o *Orchestrator) now() time.Time {
	if o.clock == nil {
		return time.Now().UTC()
	}
	return o.clock.Now()
}

// loadSeen reconstructs the seen set for a table keyed by control number.
func (o *Orchestrator) loadSeen(path string, logger *zap.Logger) *dedup.SeenSet {
	return dedup.Load(path, crawler.ColControlNumber, o.writer.Delimiter(), logger)
}

package worker

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
	"github.com/JakeFAU/pncp-crawler/internal/dedup"
	"github.com/JakeFAU/pncp-crawler/internal/dispatcher"
	"github.com/JakeFAU/pncp-crawler/internal/metrics"
)

// detailResult is what a pool task hands back for one listing.
type detailResult struct {
	listing      crawler.Listing
	items        []crawler.Record
	files        []crawler.Record
	itemsOK      bool
	filesOK      bool
	itemsFetched bool
	filesFetched bool
}

func (d detailResult) complete() bool { return d.itemsOK && d.filesOK }

// pendingListings returns listings with a detail flag unset, in table order.
func (o *Orchestrator) pendingListings(logger *zap.Logger, path string) []crawler.Listing {
	records, err := o.writer.ReadRecords(path)
	if err != nil {
		logger.Error("read listings failed, skipping detail fetch", zap.String("path", path), zap.Error(err))
		return nil
	}
	var pending []crawler.Listing
	queued := make(map[string]struct{})
	skipped := 0
	for _, rec := range records {
		l := crawler.ListingFromRecord(rec)
		if l.Fetched(crawler.DetailItems) && l.Fetched(crawler.DetailFiles) {
			continue
		}
		if l.ControlNumber == "" || !l.HasDetailKey() {
			skipped++
			continue
		}
		if _, dup := queued[l.ControlNumber]; dup {
			continue
		}
		queued[l.ControlNumber] = struct{}{}
		pending = append(pending, l)
	}
	if skipped > 0 {
		logger.Warn("listings without detail key skipped", zap.Int("count", skipped))
	}
	return pending
}

// fetchDetails fetches items and files for pending listings in batches of
// BatchSize, then writes rows and flips the flags of complete listings. A
// batch larger than the pool coalesces the listings-table rewrites.
func (o *Orchestrator) fetchDetails(ctx context.Context, r *run, logger *zap.Logger, paths Paths) {
	pending := o.pendingListings(logger, paths.Listings)
	if len(pending) == 0 {
		logger.Info("no listings pending detail fetch")
		return
	}
	itemsSeen := o.loadSeen(paths.Items, logger)
	filesSeen := o.loadSeen(paths.Files, logger)
	logger.Info("detail fetch starting", zap.Int("listings", len(pending)))

	for n, batch := range dispatcher.Batches(pending, o.cfg.BatchSize) {
		if r.stopped(ctx) {
			return
		}
		results := dispatcher.Map(ctx, o.pool, batch, func(ctx context.Context, l crawler.Listing) detailResult {
			return o.fetchListing(ctx, logger, l, itemsSeen, filesSeen)
		})
		o.storeDetails(r, logger, paths, results, itemsSeen, filesSeen)
		logger.Debug("detail batch stored", zap.Int("batch", n+1), zap.Int("size", len(batch)))
	}
}

// fetchListing runs inside a pool task. It only reads the seen sets.
func (o *Orchestrator) fetchListing(
	ctx context.Context,
	logger *zap.Logger,
	l crawler.Listing,
	itemsSeen, filesSeen *dedup.SeenSet,
) detailResult {
	res := detailResult{listing: l}
	if l.ControlNumber == "" {
		return res
	}
	if l.Fetched(crawler.DetailItems) || itemsSeen.Contains(l.ControlNumber) {
		res.itemsOK = true
	} else {
		res.items, res.itemsOK = o.fetcher.Details(ctx, l, crawler.DetailItems)
		res.itemsFetched = res.itemsOK
	}
	if l.Fetched(crawler.DetailFiles) || filesSeen.Contains(l.ControlNumber) {
		res.filesOK = true
	} else {
		res.files, res.filesOK = o.fetcher.Details(ctx, l, crawler.DetailFiles)
		res.filesFetched = res.filesOK
		if res.filesOK && o.cfg.ResolveNames && o.inspector != nil {
			o.resolveNames(ctx, logger, res.files)
		}
	}
	return res
}

func (o *Orchestrator) resolveNames(ctx context.Context, logger *zap.Logger, files []crawler.Record) {
	for _, rec := range files {
		fileURL := fileURLOf(rec)
		if fileURL == "" {
			continue
		}
		name, ext, err := o.inspector.ResolveName(ctx, fileURL)
		if err != nil {
			logger.Warn("resolve attachment name failed", zap.String("url", fileURL), zap.Error(err))
			continue
		}
		rec[crawler.ColRealName] = name
		rec[crawler.ColRealExtension] = ext
	}
}

// storeDetails runs on the orchestrator goroutine only.
func (o *Orchestrator) storeDetails(
	r *run,
	logger *zap.Logger,
	paths Paths,
	results []detailResult,
	itemsSeen, filesSeen *dedup.SeenSet,
) {
	var items, files []crawler.Record
	var itemIDs, fileIDs, complete []string
	for _, res := range results {
		id := res.listing.ControlNumber
		if id == "" {
			continue
		}
		if res.itemsFetched {
			items = append(items, res.items...)
			itemIDs = append(itemIDs, id)
		}
		if res.filesFetched {
			files = append(files, res.files...)
			fileIDs = append(fileIDs, id)
		}
		if res.complete() {
			complete = append(complete, id)
			continue
		}
		r.summary.FailedDetails++
		r.summary.Failures++
		logger.Warn("listing details incomplete, will retry on a later run",
			zap.String("control_number", id),
			zap.Bool("items_ok", res.itemsOK),
			zap.Bool("files_ok", res.filesOK),
		)
	}

	if err := o.writer.Append(paths.Items, items); err != nil {
		logger.Error("append items failed", zap.String("path", paths.Items), zap.Error(err))
		r.summary.Failures++
		return
	}
	itemsSeen.Add(idsWithRows(items)...)
	r.summary.Items += len(items)
	metrics.ObserveRecords("items", "new", len(items))

	if err := o.writer.Append(paths.Files, files); err != nil {
		logger.Error("append files failed", zap.String("path", paths.Files), zap.Error(err))
		r.summary.Failures++
		return
	}
	filesSeen.Add(idsWithRows(files)...)
	r.summary.Files += len(files)
	metrics.ObserveRecords("files", "new", len(files))

	if len(complete) == 0 {
		return
	}
	changed, err := o.writer.SetFlags(paths.Listings, crawler.ColControlNumber, complete,
		crawler.FlagColumn(crawler.DetailItems), crawler.FlagColumn(crawler.DetailFiles))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("flag listings failed", zap.Error(err))
		r.summary.Failures++
		return
	}
	r.summary.ListingsCompleted += changed
	logger.Info("detail batch complete",
		zap.Int("listings_flagged", changed),
		zap.Int("items", len(items)),
		zap.Int("files", len(files)),
		zap.Int("item_listings", len(itemIDs)),
		zap.Int("file_listings", len(fileIDs)),
	)
}

func idsWithRows(records []crawler.Record) []string {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.String(crawler.ColControlNumber))
	}
	return ids
}

// fileURLOf returns the download URL of an attachment record.
func fileURLOf(rec crawler.Record) string {
	if u := rec.String("url"); u != "" {
		return u
	}
	return rec.String("uri")
}

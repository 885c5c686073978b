package worker

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pncp-crawler/internal/archive"
	"github.com/JakeFAU/pncp-crawler/internal/crawler"
	"github.com/JakeFAU/pncp-crawler/internal/dispatcher"
	"github.com/JakeFAU/pncp-crawler/internal/metrics"
)

type archiveResult struct {
	url   string
	names []string
	err   error
}

// archiveCandidates returns unverified attachment URLs whose extension is a
// known archive format.
func archiveCandidates(records []crawler.Record) []string {
	var urls []string
	queued := make(map[string]struct{})
	for _, rec := range records {
		if rec.Bool(crawler.ColArchiveChecked) {
			continue
		}
		if !archive.IsArchive(attachmentExtension(rec)) {
			continue
		}
		u := fileURLOf(rec)
		if u == "" {
			continue
		}
		if _, dup := queued[u]; dup {
			continue
		}
		queued[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}

func attachmentExtension(rec crawler.Record) string {
	if ext := rec.String(crawler.ColRealExtension); ext != "" {
		return ext
	}
	if name := rec.String(crawler.ColRealName); name != "" {
		return archive.Extension(name)
	}
	return archive.Extension(rec.String("titulo"))
}

// inspectArchives lists archive contents in pool batches. Files that fail to
// decode are still marked verified so they are not retried forever.
func (o *Orchestrator) inspectArchives(ctx context.Context, r *run, logger *zap.Logger, paths Paths) {
	records, err := o.writer.ReadRecords(paths.Files)
	if err != nil {
		logger.Error("read files table failed, skipping archive inspection", zap.Error(err))
		return
	}
	candidates := archiveCandidates(records)
	if len(candidates) == 0 {
		logger.Info("no archives pending inspection")
		return
	}
	logger.Info("archive inspection starting", zap.Int("archives", len(candidates)))

	for _, batch := range dispatcher.Batches(candidates, o.cfg.BatchSize) {
		if r.stopped(ctx) {
			return
		}
		results := dispatcher.Map(ctx, o.pool, batch, func(ctx context.Context, u string) archiveResult {
			names, err := o.inspector.List(ctx, u)
			return archiveResult{url: u, names: names, err: err}
		})
		o.storeArchives(ctx, r, logger, paths, results)
	}
}

func (o *Orchestrator) storeArchives(ctx context.Context, r *run, logger *zap.Logger, paths Paths, results []archiveResult) {
	byURL := make(map[string]archiveResult, len(results))
	for _, res := range results {
		if res.url == "" {
			continue
		}
		if res.err != nil && ctx.Err() != nil {
			continue
		}
		byURL[res.url] = res
		r.summary.ArchivesInspected++
		if res.err != nil {
			r.summary.FailedArchives++
			r.summary.Failures++
			metrics.ObserveArchive(metrics.OutcomeFailed)
			logger.Error("archive inspection failed", zap.String("url", res.url), zap.Error(res.err))
			continue
		}
		metrics.ObserveArchive(metrics.OutcomeOK)
	}
	if len(byURL) == 0 {
		return
	}

	_, err := o.writer.UpdateRows(paths.Files, crawler.ColControlNumber, func(_ string, row crawler.Record) bool {
		res, ok := byURL[fileURLOf(row)]
		if !ok || row.Bool(crawler.ColArchiveChecked) {
			return false
		}
		if res.err == nil {
			row[crawler.ColArchiveContents] = strings.Join(res.names, ", ")
		}
		row[crawler.ColArchiveChecked] = crawler.FormatBool(true)
		return true
	})
	if err != nil {
		r.summary.Failures++
		logger.Error("update files table failed", zap.Error(err))
	}
}

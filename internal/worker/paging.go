package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
	"github.com/JakeFAU/pncp-crawler/internal/dedup"
	"github.com/JakeFAU/pncp-crawler/internal/fetcher"
	"github.com/JakeFAU/pncp-crawler/internal/metrics"
)

// page walks the search endpoint for every sort order. Newly seen listings
// are appended with both detail flags unset.
func (o *Orchestrator) page(ctx context.Context, r *run, logger *zap.Logger, docType string, paths Paths) error {
	seen := o.loadSeen(paths.Listings, logger)
	for _, sort := range o.cfg.Sorts {
		if r.stopped(ctx) {
			return nil
		}
		if err := o.pageSort(ctx, r, logger.With(zap.String("sort", sort)), docType, sort, paths, seen); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) pageSort(
	ctx context.Context,
	r *run,
	logger *zap.Logger,
	docType, sort string,
	paths Paths,
	seen *dedup.SeenSet,
) error {
	failedInRow := 0
	for page := o.cfg.StartPage; o.cfg.MaxPages <= 0 || page < o.cfg.StartPage+o.cfg.MaxPages; page++ {
		if r.stopped(ctx) {
			return nil
		}
		params := fetcher.SearchParams{
			Page:     page,
			PageSize: o.cfg.PageSize,
			Sort:     sort,
			Query:    o.cfg.Query,
			DocType:  docType,
			Status:   o.cfg.Status,
		}
		if o.pacer != nil {
			if err := o.pacer.Wait(ctx, o.fetcher.SearchURL(params)); err != nil {
				if ctx.Err() != nil {
					r.stopped(ctx)
					return nil
				}
				logger.Warn("page delay failed", zap.Error(err))
			}
		}

		records, ok := o.fetcher.SearchPage(ctx, params)
		r.summary.Pages++
		if !ok {
			r.summary.FailedPages++
			r.summary.Failures++
			failedInRow++
			logger.Warn("page skipped", zap.Int("page", page), zap.Int("consecutive_failures", failedInRow))
			if failedInRow >= o.cfg.MaxFailedPages {
				logger.Error("too many consecutive failed pages, stopping", zap.Int("page", page))
				return nil
			}
			continue
		}
		failedInRow = 0
		if len(records) == 0 {
			logger.Info("empty page, paging complete", zap.Int("page", page))
			return nil
		}

		fresh, dup := seen.Filter(records, crawler.ColControlNumber)
		r.summary.DuplicateListings += dup
		metrics.ObserveRecords("listings", "duplicate", dup)
		if len(fresh) > 0 {
			ids := make([]string, 0, len(fresh))
			for _, rec := range fresh {
				rec[crawler.ColDetailsFetched] = false
				rec[crawler.ColFilesFetched] = false
				ids = append(ids, rec.String(crawler.ColControlNumber))
			}
			if err := o.writer.Append(paths.Listings, fresh); err != nil {
				return fmt.Errorf("append listings page %d: %w", page, err)
			}
			seen.Add(ids...)
			r.summary.NewListings += len(fresh)
			metrics.ObserveRecords("listings", "new", len(fresh))
		}
		logger.Info("page stored",
			zap.Int("page", page),
			zap.Int("records", len(records)),
			zap.Int("new", len(fresh)),
			zap.Int("duplicates", dup),
		)
	}
	logger.Info("page ceiling reached", zap.Int("max_pages", o.cfg.MaxPages))
	return nil
}

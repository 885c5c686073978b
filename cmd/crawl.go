package cmd

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
	"github.com/JakeFAU/pncp-crawler/internal/interrupt"
	"github.com/JakeFAU/pncp-crawler/internal/worker"
)

func newCrawlCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Page the search API, then fetch details and inspect archives.",
		Long: `crawl walks every configured document type and sort order, appends new
listings to the listings table, fetches items and files for listings that
lack them, and inspects compressed attachments. Press q and Enter, or send
SIGINT, to stop after the current batch; a second SIGINT aborts.`,
		RunE: runCrawl,
	}

	f := cmd.Flags()
	f.Int("start-page", 1, "first search page")
	f.Int("max-pages", 0, "pages per sort order (0 means until exhausted)")
	f.Int("page-size", 500, "results per search page")
	f.StringSlice("sort", nil, "sort orders to walk (data, -data, relevancia)")
	f.StringSlice("doc-types", nil, "document types to crawl (edital, ata)")
	f.Int("workers", 10, "concurrent detail fetches")
	f.Int("batch-size", 0, "listings fetched between table writes (0 means one per worker)")
	f.Int("max-retries", 5, "attempts per request")
	f.Bool("no-archive", false, "skip downloading and listing compressed attachments")
	f.String("query", "", "search text")
	f.Bool("unify", false, "unify each document type after the crawl")

	mustBind(v, "crawler.start_page", f.Lookup("start-page"))
	mustBind(v, "crawler.max_pages", f.Lookup("max-pages"))
	mustBind(v, "crawler.page_size", f.Lookup("page-size"))
	mustBind(v, "crawler.sorts", f.Lookup("sort"))
	mustBind(v, "crawler.doc_types", f.Lookup("doc-types"))
	mustBind(v, "crawler.workers", f.Lookup("workers"))
	mustBind(v, "crawler.batch_size", f.Lookup("batch-size"))
	mustBind(v, "http.max_attempts", f.Lookup("max-retries"))
	mustBind(v, "crawler.query", f.Lookup("query"))
	return cmd
}

// applyCrawlOverrides maps flags that invert a config key onto v. It runs
// before the config is decoded.
func applyCrawlOverrides(cmd *cobra.Command, v *viper.Viper) {
	if noArchive, err := cmd.Flags().GetBool("no-archive"); err == nil && noArchive {
		v.Set("crawler.inspect_archives", false)
	}
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := a.Logger()

	orch, err := a.Orchestrator()
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}

	ctx, hard := context.WithCancel(cmd.Context())
	defer hard()

	token := crawler.NewCancelToken()
	stop := interrupt.WatchSignals(ctx, token, hard, logger, os.Interrupt, syscall.SIGTERM)
	defer stop()
	interrupt.WatchKeys(ctx, cmd.InOrStdin(), token, logger)
	fmt.Fprintf(cmd.ErrOrStderr(), "Press %q and Enter to stop after the current batch.\n", interrupt.CancelKey)

	metricsErr := a.ServeMetrics(ctx)

	summary, runErr := orch.Run(ctx, token)
	hard()
	if err := <-metricsErr; err != nil {
		logger.Warn("metrics endpoint stopped with error", zap.Error(err))
	}

	renderSummary(cmd, summary)
	if runErr != nil {
		logger.Error("crawl aborted", append(summary.Fields(), zap.Error(runErr))...)
		return fmt.Errorf("crawl failed: %w", runErr)
	}

	if unifyAfter, _ := cmd.Flags().GetBool("unify"); unifyAfter {
		return unifyAll(cmd, a)
	}
	return nil
}

func renderSummary(cmd *cobra.Command, summary worker.Summary) {
	t := newTable(cmd.OutOrStdout())
	t.SetTitle("Run " + summary.RunID)
	t.AppendHeader(table.Row{"Metric", "Value"})
	for _, row := range summary.Rows() {
		t.AppendRow(table.Row{row[0], row[1]})
	}
	t.Render()
}

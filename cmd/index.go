package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pncp-crawler/internal/search"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Load the listings tables into the search index.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			idx, err := a.OpenIndex(cmd.Context())
			if err != nil {
				return fmt.Errorf("open index: %w", err)
			}
			defer func() {
				if err := idx.Close(); err != nil {
					a.Logger().Warn("index close failed", zap.Error(err))
				}
			}()

			svc := search.NewService(idx, a.Logger())
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Type", "Rows read", "Indexed"})
			for _, docType := range a.Config().Crawler.DocTypes {
				records, err := a.Writer().ReadRecords(a.TablePaths(docType).Listings)
				if err != nil {
					return fmt.Errorf("read %s listings: %w", docType, err)
				}
				n, err := svc.Load(cmd.Context(), records)
				if err != nil {
					return err
				}
				t.AppendRow(table.Row{docType, len(records), n})
			}
			total, err := idx.Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("count index: %w", err)
			}
			t.AppendFooter(table.Row{"", "Total documents", total})
			t.Render()
			return nil
		},
	}
}

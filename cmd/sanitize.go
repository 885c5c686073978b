package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSanitizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sanitize",
		Short: "Drop fully duplicated rows from every table.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			w := a.Writer()
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Table", "Rows removed"})
			for _, docType := range a.Config().Crawler.DocTypes {
				p := a.TablePaths(docType)
				for _, path := range []string{p.Listings, p.Items, p.Files} {
					removed, err := w.Sanitize(path)
					if err != nil {
						return fmt.Errorf("sanitize %s: %w", path, err)
					}
					a.Logger().Info("table sanitized", zap.String("path", path), zap.Int("removed", removed))
					t.AppendRow(table.Row{path, removed})
				}
			}
			t.Render()
			return nil
		},
	}
}

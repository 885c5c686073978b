package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/pncp-crawler/internal/app"
)

func newUnifyCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unify",
		Short: "Join listings with their items and files into JSON, CSV and Markdown.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return unifyAll(cmd, a)
		},
	}
	cmd.Flags().Int("parts", 0, "split the Markdown report into this many files (0 disables it)")
	mustBind(v, "unify.parts", cmd.Flags().Lookup("parts"))
	return cmd
}

// unifyAll runs the unifier for every configured document type and prints
// one row per type.
func unifyAll(cmd *cobra.Command, a *app.App) error {
	svc, err := a.Unifier(cmd.Context(), a.Config().Unify.Parts)
	if err != nil {
		return err
	}
	t := newTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Type", "Listings", "CSV rows", "No items", "No files", "Failures", "CSV"})
	for _, docType := range a.Config().Crawler.DocTypes {
		res, err := svc.Run(cmd.Context(), a.UnifySources(docType))
		if err != nil {
			return fmt.Errorf("unify %s: %w", docType, err)
		}
		t.AppendRow(table.Row{
			docType, res.Listings, res.Rows, res.MissingItems, res.MissingFiles, res.Failures, res.CSVPath,
		})
	}
	t.Render()
	return nil
}

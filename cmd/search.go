package cmd

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/pncp-crawler/internal/search"
)

const snippetWidth = 60

func newSearchCmd(v *viper.Viper) *cobra.Command {
	var (
		modality string
		sphere   string
		exact    bool
		facets   string
	)
	cmd := &cobra.Command{
		Use:   "search [text...]",
		Short: "Fuzzy-search indexed listings by description.",
		Example: `  pncp search merenda escolar --modality "Pregão - Eletrônico"
  pncp search --facets modalidade_licitacao_nome`,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if facets != "" {
				values, err := svc.Facets(cmd.Context(), facets)
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{facets})
				for _, val := range values {
					t.AppendRow(table.Row{val})
				}
				t.Render()
				return nil
			}

			cfg := a.Config().Search
			hits, err := svc.Search(cmd.Context(), search.Query{
				Text:   strings.Join(args, " "),
				Filter: search.Filter{Modality: modality, Sphere: sphere},
				Limit:  cfg.Limit,
				Cutoff: cfg.Cutoff,
				Exact:  exact,
			})
			if err != nil {
				return err
			}
			renderHits(cmd, hits)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&modality, "modality", "", "only listings with this modality name")
	f.StringVar(&sphere, "sphere", "", "only listings from this sphere name")
	f.BoolVar(&exact, "exact", false, "require every word instead of fuzzy ranking")
	f.StringVar(&facets, "facets", "", "list distinct values of a field instead of searching")
	f.Int("limit", search.DefaultLimit, "maximum results")
	f.Float64("cutoff", search.DefaultCutoff, "minimum fuzzy score (0-100)")
	mustBind(v, "search.limit", f.Lookup("limit"))
	mustBind(v, "search.cutoff", f.Lookup("cutoff"))
	return cmd
}

func renderHits(cmd *cobra.Command, hits []search.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching listings.")
		return
	}
	t := newTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Score", "Control number", "Organization", "UF", "Modality", "Description", "Link"})
	for _, h := range hits {
		t.AppendRow(table.Row{
			fmt.Sprintf("%.1f", h.Score),
			h.ControlNumber,
			runewidth.Truncate(h.OrgName, 30, "…"),
			h.UF,
			h.Modality,
			runewidth.Truncate(h.Text(), snippetWidth, "…"),
			h.ItemURL,
		})
	}
	t.Render()
}

package unify

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-runewidth"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
	"github.com/JakeFAU/pncp-crawler/internal/table"
)

const headingWidth = 120

var markdownFields = []struct {
	label  string
	column string
}{
	{"Número de Controle", ColumnControlNumber},
	{"Licitação", ColumnTitle},
	{"Ano", ColumnYear},
	{"Objeto da licitação", ColumnDescription},
	{"CNPJ do Órgão", ColumnOrgCNPJ},
	{"Nome do Órgão", ColumnOrgName},
	{"Código da Unidade", ColumnUnitCode},
	{"Nome da Unidade", ColumnUnitName},
	{"Esfera", ColumnSphere},
	{"Poder", ColumnPower},
	{"Modalidade de Licitação", ColumnModality},
	{"Data de Publicação PNCP", ColumnPublished},
	{"Data de Atualização PNCP", ColumnUpdated},
	{"Data de Assinatura", ColumnSigned},
	{"Início da Vigência", ColumnValidFrom},
	{"Fim da Vigência", ColumnValidUntil},
	{"Cancelado", ColumnCancelled},
	{"Título do Arquivo", ColumnFileTitle},
	{"URI do Arquivo", ColumnFileURI},
	{"Nomes dos Arquivos", ColumnFileNames},
	{"Tipo ID", ColumnTypeID},
	{"Tipo Nome", ColumnTypeName},
	{"Item URL", ColumnItemURL},
}

var markdownItemFields = []struct {
	label  string
	column string
}{
	{"Descrição do Item", ColumnItemDesc},
	{"Material ou Serviço", ColumnItemKind},
	{"Valor Unitário Estimado", ColumnItemUnitValue},
	{"Quantidade", ColumnItemQuantity},
	{"Unidade de Medida", ColumnItemUnit},
}

// PartSize returns how many rows each of parts files holds.
func PartSize(total, parts int) int {
	if parts <= 0 || total <= 0 {
		return 0
	}
	return (total + parts - 1) / parts
}

// WriteMarkdown slices the flattened CSV at csvPath into parts Markdown files
// under dir and returns their paths. Parts beyond the data are still written,
// empty, so the file set is stable.
func WriteMarkdown(csvPath, dir string, parts int) ([]string, error) {
	if parts <= 0 {
		return nil, nil
	}
	t, err := table.NewWriter(',').Read(csvPath)
	if err != nil {
		return nil, fmt.Errorf("read unified csv: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create markdown dir: %w", err)
	}
	records := t.Records()
	size := PartSize(len(records), parts)
	paths := make([]string, 0, parts)
	for part := 0; part < parts; part++ {
		start := min(part*size, len(records))
		end := min(start+size, len(records))
		path := filepath.Join(dir, fmt.Sprintf("report_part_%d.md", part+1))
		if err := writeMarkdownPart(path, records[start:end]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeMarkdownPart(path string, rows []crawler.Record) error {
	return writeFileAtomic(path, func(w *bufio.Writer) error {
		for _, row := range rows {
			fmt.Fprintf(w, "# %s\n\n", heading(row.String(ColumnTitle), row.String(ColumnOrgName)))
			for _, f := range markdownFields {
				fmt.Fprintf(w, "**%s:** %s\n", f.label, row.String(f.column))
			}
			fmt.Fprintf(w, "**Município:** %s - %s\n\n", row.String(ColumnCity), row.String(ColumnState))
			w.WriteString("## Itens da Licitação\n")
			for _, f := range markdownItemFields {
				fmt.Fprintf(w, "**%s:** %s\n", f.label, row.String(f.column))
			}
			w.WriteString("\n---\n\n")
		}
		return nil
	})
}

func heading(title, org string) string {
	return runewidth.Truncate(fmt.Sprintf("Licitação %s - %s", title, org), headingWidth, "…")
}

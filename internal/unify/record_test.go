package unify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
)

func sampleListing() crawler.Record {
	return crawler.Record{
		"id":                        "abc",
		crawler.ColControlNumber:    "00394460000141-1-000010/2024",
		"ano":                       "2024",
		"numero_sequencial":         "10",
		"title":                     "Aquisição de papel",
		"description":               "Papel A4",
		"orgao_cnpj":                "00394460000141",
		"orgao_nome":                "Ministério",
		"unidade_codigo":            "170",
		"unidade_nome":              "Coordenação",
		"esfera_nome":               "Federal",
		"poder_nome":                "Executivo",
		"municipio_nome":            "Brasília",
		"uf":                        "DF",
		"modalidade_licitacao_nome": "Pregão",
		"data_publicacao_pncp":      "2024-05-01",
		"cancelado":                 "False",
	}
}

func TestUnifyBuildsComposite(t *testing.T) {
	items := []crawler.Record{
		{crawler.ColControlNumber: "00394460000141-1-000010/2024", "descricao": "Resma", "quantidade": "10"},
	}
	files := []crawler.Record{
		{crawler.ColControlNumber: "00394460000141-1-000010/2024", "titulo": "Edital", "url": "https://x/1",
			crawler.ColRealName: "edital.zip", crawler.ColArchiveContents: "a.pdf, b.pdf", crawler.ColRealExtension: "zip"},
		{"titulo": "Anexo", "uri": "https://x/2"},
	}

	rec := Unify(sampleListing(), items, files)

	l := rec.Licitacao
	assert.Equal(t, "abc", l.IDPNCP)
	assert.Equal(t, "Ministério", l.OrgaoSuperior.Nome)
	assert.Equal(t, "DF", l.OrgaoSuperior.Municipio.UF)
	assert.Equal(t, "Pregão", l.Modalidade)
	assert.False(t, l.Cancelado)
	assert.Equal(t, "https://pncp.gov.br/app/editais/00394460000141/2024/10", l.ItemURL)

	require.Len(t, l.ArquivosPublicados, 2)
	assert.Equal(t, "edital.zip, a.pdf, b.pdf", l.ArquivosPublicados[0].Nomes)
	assert.Equal(t, "https://x/1", l.ArquivosPublicados[0].URI)
	assert.Equal(t, "Anexo", l.ArquivosPublicados[1].Nomes)
	assert.Equal(t, "https://x/2", l.ArquivosPublicados[1].URI)

	require.Len(t, rec.Itens, 1)
	assert.NotContains(t, rec.Itens[0], crawler.ColControlNumber)
	assert.Contains(t, items[0], crawler.ColControlNumber, "input items must not be mutated")
}

func TestUnifyMissingDetailsYieldsEmptySections(t *testing.T) {
	rec := Unify(sampleListing(), nil, nil)

	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	assert.Empty(t, rec.Itens)
	assert.NotNil(t, rec.Itens)
	assert.Empty(t, rec.Licitacao.ArquivosPublicados)
	assert.Contains(t, string(raw), `"itens":[]`)
	assert.Contains(t, string(raw), `"arquivos_publicados":[]`)
}

func TestItemURLUsesListingPath(t *testing.T) {
	l := sampleListing()
	l["item_url"] = "/compras/00394460000141/2024/10"
	assert.Equal(t, "https://pncp.gov.br/compras/00394460000141/2024/10", itemURL(l))

	l["item_url"] = "https://elsewhere/x"
	assert.Equal(t, "https://elsewhere/x", itemURL(l))
}

package unify

import (
	"strings"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
)

// Flattened CSV columns.
const (
	ColumnControlNumber = "Número Controle PNCP"
	ColumnTitle         = "Título"
	ColumnYear          = "Ano"
	ColumnDescription   = "Descrição"
	ColumnOrgCNPJ       = "CNPJ Órgão"
	ColumnOrgName       = "Nome Órgão"
	ColumnUnitCode      = "Código Unidade"
	ColumnUnitName      = "Nome Unidade"
	ColumnSphere        = "Esfera Nome"
	ColumnPower         = "Poder Nome"
	ColumnCity          = "Município Nome"
	ColumnState         = "UF"
	ColumnModality      = "Modalidade"
	ColumnPublished     = "Data da Publicação no PNCP"
	ColumnUpdated       = "Data da Atualização PNCP"
	ColumnSigned        = "Data de Assinatura"
	ColumnValidFrom     = "Data de Início Vigência"
	ColumnValidUntil    = "Data de Fim Vigência"
	ColumnCancelled     = "Cancelado"
	ColumnFileTitle     = "Título Arquivo"
	ColumnFileURI       = "URI Arquivo"
	ColumnFileNames     = "Nomes Arquivos"
	ColumnFileExt       = "Extensão Real"
	ColumnTypeID        = "Tipo ID"
	ColumnTypeName      = "Tipo Nome"
	ColumnItemURL       = "Item URL"
	ColumnItemDesc      = "Item Descrição"
	ColumnItemKind      = "Material ou Serviço Nome"
	ColumnItemUnitValue = "Valor Unitário Estimado"
	ColumnItemQuantity  = "Quantidade"
	ColumnItemUnit      = "Unidade de Medida"
)

// Header is the flattened CSV header, in column order.
var Header = []string{
	ColumnControlNumber, ColumnTitle, ColumnYear, ColumnDescription,
	ColumnOrgCNPJ, ColumnOrgName, ColumnUnitCode, ColumnUnitName,
	ColumnSphere, ColumnPower, ColumnCity, ColumnState, ColumnModality,
	ColumnPublished, ColumnUpdated, ColumnSigned, ColumnValidFrom, ColumnValidUntil,
	ColumnCancelled, ColumnFileTitle, ColumnFileURI, ColumnFileNames, ColumnFileExt,
	ColumnTypeID, ColumnTypeName, ColumnItemURL,
	ColumnItemDesc, ColumnItemKind, ColumnItemUnitValue, ColumnItemQuantity, ColumnItemUnit,
}

// fileSeparator joins per-file values. Every file occupies the same position
// in each joined column, so an empty value stays as an empty slot.
const fileSeparator = " | "

// Flatten returns one row per item; a record without items yields a single
// row with empty item columns.
func Flatten(rec Record) [][]string {
	l := rec.Licitacao
	var titles, uris, names, exts []string
	for _, f := range l.ArquivosPublicados {
		if f == (PublishedFile{}) {
			continue
		}
		titles = append(titles, f.Titulo)
		uris = append(uris, f.URI)
		names = append(names, f.Nomes)
		exts = append(exts, f.Extensao)
	}
	base := []string{
		l.NumeroControlePNCP, l.Titulo, l.Ano, l.Descricao,
		l.OrgaoSuperior.CNPJ, l.OrgaoSuperior.Nome,
		l.OrgaoSuperior.Unidade.Codigo, l.OrgaoSuperior.Unidade.Nome,
		l.OrgaoSuperior.Esfera.Nome, l.OrgaoSuperior.Poder.Nome,
		l.OrgaoSuperior.Municipio.Nome, l.OrgaoSuperior.Municipio.UF,
		l.Modalidade,
		l.Datas.PublicacaoPNCP, l.Datas.AtualizacaoPNCP, l.Datas.Assinatura,
		l.Datas.InicioVigencia, l.Datas.FimVigencia,
		crawler.FormatBool(l.Cancelado),
		strings.Join(titles, fileSeparator), strings.Join(uris, fileSeparator),
		strings.Join(names, fileSeparator), strings.Join(exts, fileSeparator),
		l.Tipo.ID, l.Tipo.Nome, l.ItemURL,
	}

	if len(rec.Itens) == 0 {
		return [][]string{append(base, "", "", "", "", "")}
	}
	rows := make([][]string, 0, len(rec.Itens))
	for _, it := range rec.Itens {
		row := make([]string, 0, len(Header))
		row = append(row, base...)
		row = append(row,
			it.String("descricao"),
			it.String("materialOuServicoNome"),
			it.String("valorUnitarioEstimado"),
			it.String("quantidade"),
			it.String("unidadeMedida"),
		)
		rows = append(rows, row)
	}
	return rows
}

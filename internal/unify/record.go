// Package unify joins listings with their items and files into one composite
// record per listing and renders the JSON, CSV, JSONL and Markdown views.
package unify

import (
	"strings"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
)

// PortalURL is the public portal used to build listing links.
const PortalURL = "https://pncp.gov.br"

// IDName is a coded attribute.
type IDName struct {
	ID   string `json:"id"`
	Nome string `json:"nome"`
}

// Unit is an organization's administrative unit.
type Unit struct {
	Codigo string `json:"codigo"`
	Nome   string `json:"nome"`
}

// Municipality locates an organization.
type Municipality struct {
	Nome string `json:"nome"`
	UF   string `json:"uf"`
}

// Organization is the publishing body.
type Organization struct {
	CNPJ      string       `json:"cnpj"`
	Nome      string       `json:"nome"`
	Unidade   Unit         `json:"unidade"`
	Esfera    IDName       `json:"esfera"`
	Poder     IDName       `json:"poder"`
	Municipio Municipality `json:"municipio"`
}

// Dates groups the listing's timeline.
type Dates struct {
	PublicacaoPNCP  string `json:"publicacao_pncp"`
	AtualizacaoPNCP string `json:"atualizacao_pncp"`
	Assinatura      string `json:"assinatura"`
	InicioVigencia  string `json:"inicio_vigencia"`
	FimVigencia     string `json:"fim_vigencia"`
}

// PublishedFile is one attachment. Nomes carries the display name followed by
// any names found inside the archive.
type PublishedFile struct {
	Titulo   string `json:"titulo"`
	URI      string `json:"uri"`
	Nomes    string `json:"nomes_arquivos_unificados"`
	Extensao string `json:"extensao_real"`
}

// Listing is the unified view of one procurement notice.
type Listing struct {
	IDPNCP             string          `json:"id_pncp"`
	NumeroControlePNCP string          `json:"numero_controle_pncp"`
	Ano                string          `json:"ano"`
	NumeroSequencial   string          `json:"numero_sequencial"`
	Titulo             string          `json:"titulo"`
	Descricao          string          `json:"descricao"`
	OrgaoSuperior      Organization    `json:"orgao_superior"`
	Modalidade         string          `json:"modalidade_licitacao"`
	Datas              Dates           `json:"datas"`
	Cancelado          bool            `json:"cancelado"`
	ArquivosPublicados []PublishedFile `json:"arquivos_publicados"`
	Tipo               IDName          `json:"tipo"`
	ItemURL            string          `json:"item_url"`
}

// Record is the composite of a listing, its items and its files.
type Record struct {
	Licitacao Listing          `json:"licitacao"`
	Itens     []crawler.Record `json:"itens"`
}

// Unify builds the composite record. Missing items or files yield empty
// sections; it never fails.
func Unify(listing crawler.Record, items, files []crawler.Record) Record {
	l := Listing{
		IDPNCP:             listing.String("id"),
		NumeroControlePNCP: listing.String(crawler.ColControlNumber),
		Ano:                listing.String("ano"),
		NumeroSequencial:   listing.String("numero_sequencial"),
		Titulo:             listing.String("title"),
		Descricao:          listing.String("description"),
		OrgaoSuperior: Organization{
			CNPJ: listing.String("orgao_cnpj"),
			Nome: listing.String("orgao_nome"),
			Unidade: Unit{
				Codigo: listing.String("unidade_codigo"),
				Nome:   listing.String("unidade_nome"),
			},
			Esfera: IDName{ID: listing.String("esfera_id"), Nome: listing.String("esfera_nome")},
			Poder:  IDName{ID: listing.String("poder_id"), Nome: listing.String("poder_nome")},
			Municipio: Municipality{
				Nome: listing.String("municipio_nome"),
				UF:   listing.String("uf"),
			},
		},
		Modalidade: listing.String("modalidade_licitacao_nome"),
		Datas: Dates{
			PublicacaoPNCP:  listing.String("data_publicacao_pncp"),
			AtualizacaoPNCP: listing.String("data_atualizacao_pncp"),
			Assinatura:      listing.String("data_assinatura"),
			InicioVigencia:  listing.String("data_inicio_vigencia"),
			FimVigencia:     listing.String("data_fim_vigencia"),
		},
		Cancelado:          listing.Bool("cancelado"),
		ArquivosPublicados: make([]PublishedFile, 0, len(files)),
		Tipo:               IDName{ID: listing.String("tipo_id"), Nome: listing.String("tipo_nome")},
		ItemURL:            itemURL(listing),
	}
	for _, f := range files {
		l.ArquivosPublicados = append(l.ArquivosPublicados, publishedFile(f))
	}

	itens := make([]crawler.Record, 0, len(items))
	for _, it := range items {
		c := it.Clone()
		delete(c, crawler.ColControlNumber)
		itens = append(itens, c)
	}
	return Record{Licitacao: l, Itens: itens}
}

func publishedFile(f crawler.Record) PublishedFile {
	name := f.String(crawler.ColRealName)
	if name == "" {
		name = f.String("titulo")
	}
	if inner := f.String(crawler.ColArchiveContents); inner != "" {
		if name == "" {
			name = inner
		} else {
			name += ", " + inner
		}
	}
	uri := f.String("uri")
	if uri == "" {
		uri = f.String("url")
	}
	return PublishedFile{
		Titulo:   f.String("titulo"),
		URI:      uri,
		Nomes:    name,
		Extensao: f.String(crawler.ColRealExtension),
	}
}

func itemURL(listing crawler.Record) string {
	if p := listing.String("item_url"); p != "" {
		if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
			return p
		}
		return PortalURL + "/" + strings.TrimPrefix(p, "/")
	}
	return PortalURL + "/app/editais/" + listing.String("orgao_cnpj") + "/" +
		listing.String("ano") + "/" + listing.String("numero_sequencial")
}

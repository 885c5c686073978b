package crawler

import (
	"fmt"
	"net/http"
	"time"
)

// Column names shared by the persisted tables.
const (
	ColControlNumber   = "numero_controle_pncp"
	ColDetailsFetched  = "detalhes_baixados"
	ColFilesFetched    = "documentos_baixados"
	ColArchiveChecked  = "verificacao_arquivos"
	ColArchiveContents = "conteudo_arquivo"
	ColRealName        = "nome_real"
	ColRealExtension   = "extensao_real"
)

// DetailKind names a per-listing detail endpoint.
type DetailKind string

// Detail endpoints exposed by the portal.
const (
	DetailItems DetailKind = "itens"
	DetailFiles DetailKind = "arquivos"
)

// Sort orders accepted by the search endpoint.
const (
	SortNewest    = "-data"
	SortOldest    = "data"
	SortRelevance = "relevancia"
)

// FetchResponse is the result returned by a Transport implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// HTTPStatusError reports a non-2xx response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// Listing is the typed view of one procurement notice row.
type Listing struct {
	ControlNumber  string
	ID             string
	OrgCNPJ        string
	OrgName        string
	Year           string
	Sequence       string
	Modality       string
	Title          string
	Description    string
	PublishedAt    string
	ValidFrom      string
	ValidUntil     string
	Cancelled      bool
	DetailsFetched bool
	FilesFetched   bool
}

// ListingFromRecord extracts the fields the pipeline relies on.
// Missing fields default to their zero values.
func ListingFromRecord(r Record) Listing {
	return Listing{
		ControlNumber:  r.String(ColControlNumber),
		ID:             r.String("id"),
		OrgCNPJ:        r.String("orgao_cnpj"),
		OrgName:        r.String("orgao_nome"),
		Year:           r.String("ano"),
		Sequence:       r.String("numero_sequencial"),
		Modality:       r.String("modalidade_licitacao_nome"),
		Title:          r.String("title"),
		Description:    r.String("description"),
		PublishedAt:    r.String("data_publicacao_pncp"),
		ValidFrom:      r.String("data_inicio_vigencia"),
		ValidUntil:     r.String("data_fim_vigencia"),
		Cancelled:      r.Bool("cancelado"),
		DetailsFetched: r.Bool(ColDetailsFetched),
		FilesFetched:   r.Bool(ColFilesFetched),
	}
}

// HasDetailKey reports whether the listing carries enough data to address its
// detail endpoints.
func (l Listing) HasDetailKey() bool {
	return l.OrgCNPJ != "" && l.Year != "" && l.Sequence != ""
}

// Fetched reports whether the given detail kind was already persisted.
func (l Listing) Fetched(kind DetailKind) bool {
	if kind == DetailFiles {
		return l.FilesFetched
	}
	return l.DetailsFetched
}

// FlagColumn returns the listing column tracking the given detail kind.
func FlagColumn(kind DetailKind) string {
	if kind == DetailFiles {
		return ColFilesFetched
	}
	return ColDetailsFetched
}

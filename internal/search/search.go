// Package search loads crawled listings into a local index and ranks them
// against free-text queries with keyword filters.
package search

import (
	"context"
	"errors"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
)

// Default ranking knobs.
const (
	DefaultLimit  = 20
	DefaultCutoff = 60.0
)

// Filterable fields.
const (
	FieldModality = "modalidade_licitacao_nome"
	FieldSphere   = "esfera_nome"
)

// ErrUnknownField reports a facet request for a field that is not indexed.
var ErrUnknownField = errors.New("unknown search field")

// Document is one indexed listing.
type Document struct {
	ControlNumber string `json:"numero_controle_pncp"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	OrgName       string `json:"orgao_nome"`
	City          string `json:"municipio_nome"`
	UF            string `json:"uf"`
	Modality      string `json:"modalidade_licitacao_nome"`
	Sphere        string `json:"esfera_nome"`
	PublishedAt   string `json:"data_publicacao_pncp"`
	ItemURL       string `json:"item_url"`
}

// DocumentFromRecord maps a listing row to a Document.
func DocumentFromRecord(r crawler.Record) Document {
	return Document{
		ControlNumber: r.String(crawler.ColControlNumber),
		Title:         r.String("title"),
		Description:   r.String("description"),
		OrgName:       r.String("orgao_nome"),
		City:          r.String("municipio_nome"),
		UF:            r.String("uf"),
		Modality:      r.String(FieldModality),
		Sphere:        r.String(FieldSphere),
		PublishedAt:   r.String("data_publicacao_pncp"),
		ItemURL:       r.String("item_url"),
	}
}

// Text is the searchable text of a document.
func (d Document) Text() string {
	if d.Description != "" {
		return d.Description
	}
	return d.Title
}

// Filter narrows a query by exact keyword matches. Empty fields match all.
type Filter struct {
	Modality string
	Sphere   string
}

// Index persists documents and answers filtered scans.
type Index interface {
	// Upsert inserts or replaces documents keyed by control number.
	Upsert(ctx context.Context, docs []Document) (int, error)
	// Find returns every document matching the filter.
	Find(ctx context.Context, f Filter) ([]Document, error)
	// Values lists the distinct non-empty values of a filterable field.
	Values(ctx context.Context, field string) ([]string, error)
	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int, error)
	Close() error
}

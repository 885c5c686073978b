// Package sqlite implements the search index on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "embed"

	_ "modernc.org/sqlite"

	"github.com/JakeFAU/pncp-crawler/internal/search"
)

//go:embed schema.sql
var schema string

const columns = `numero_controle_pncp, title, description, orgao_nome, municipio_nome, uf,
	modalidade_licitacao_nome, esfera_nome, data_publicacao_pncp, item_url`

const upsertQuery = `INSERT INTO listings (` + columns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (numero_controle_pncp) DO UPDATE SET
	title = excluded.title,
	description = excluded.description,
	orgao_nome = excluded.orgao_nome,
	municipio_nome = excluded.municipio_nome,
	uf = excluded.uf,
	modalidade_licitacao_nome = excluded.modalidade_licitacao_nome,
	esfera_nome = excluded.esfera_nome,
	data_publicacao_pncp = excluded.data_publicacao_pncp,
	item_url = excluded.item_url`

// Index is a search.Index backed by SQLite.
type Index struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway index.
func Open(ctx context.Context, path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Upsert implements search.Index in a single transaction.
func (i *Index) Upsert(ctx context.Context, docs []search.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx,
			d.ControlNumber, d.Title, d.Description, d.OrgName, d.City, d.UF,
			d.Modality, d.Sphere, d.PublishedAt, d.ItemURL,
		); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", d.ControlNumber, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(docs), nil
}

// Find implements search.Index.
func (i *Index) Find(ctx context.Context, f search.Filter) ([]search.Document, error) {
	var conds []string
	var args []any
	if f.Modality != "" {
		conds = append(conds, search.FieldModality+" = ?")
		args = append(args, f.Modality)
	}
	if f.Sphere != "" {
		conds = append(conds, search.FieldSphere+" = ?")
		args = append(args, f.Sphere)
	}
	query := "SELECT " + columns + " FROM listings"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY numero_controle_pncp"

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []search.Document
	for rows.Next() {
		var d search.Document
		if err := rows.Scan(
			&d.ControlNumber, &d.Title, &d.Description, &d.OrgName, &d.City, &d.UF,
			&d.Modality, &d.Sphere, &d.PublishedAt, &d.ItemURL,
		); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Values implements search.Index.
func (i *Index) Values(ctx context.Context, field string) ([]string, error) {
	if field != search.FieldModality && field != search.FieldSphere {
		return nil, fmt.Errorf("%q: %w", field, search.ErrUnknownField)
	}
	rows, err := i.db.QueryContext(ctx,
		"SELECT DISTINCT "+field+" FROM listings WHERE "+field+" <> '' ORDER BY "+field)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", field, err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Count implements search.Index.
func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := i.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM listings").Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

// Close releases the database.
func (i *Index) Close() error {
	return i.db.Close()
}

// Package postgres implements the search index on a shared Postgres table.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/pncp-crawler/internal/search"
)

//go:embed schema.sql
var schemaTemplate string

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const columns = `numero_controle_pncp, title, description, orgao_nome, municipio_nome, uf,
	modalidade_licitacao_nome, esfera_nome, data_publicacao_pncp, item_url`

// Config controls the Postgres connection pool used by the index.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Index is a search.Index backed by Postgres.
type Index struct {
	pool  querier
	table string
}

// Open connects to Postgres and ensures the table exists.
func Open(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("search.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	idx, err := NewWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := idx.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

// NewWithPool constructs an index from an existing pool (primarily for testing).
func NewWithPool(pool querier, table string) (*Index, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "pncp_listings"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Index{pool: pool, table: table}, nil
}

// EnsureSchema creates the table and its filter indexes.
func (i *Index) EnsureSchema(ctx context.Context) error {
	if _, err := i.pool.Exec(ctx, fmt.Sprintf(schemaTemplate, i.table)); err != nil {
		return fmt.Errorf("create %s: %w", i.table, err)
	}
	return nil
}

// Upsert implements search.Index in a single transaction.
func (i *Index) Upsert(ctx context.Context, docs []search.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (numero_controle_pncp) DO UPDATE SET
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	orgao_nome = EXCLUDED.orgao_nome,
	municipio_nome = EXCLUDED.municipio_nome,
	uf = EXCLUDED.uf,
	modalidade_licitacao_nome = EXCLUDED.modalidade_licitacao_nome,
	esfera_nome = EXCLUDED.esfera_nome,
	data_publicacao_pncp = EXCLUDED.data_publicacao_pncp,
	item_url = EXCLUDED.item_url`, i.table, columns)

	tx, err := i.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, d := range docs {
		if _, err := tx.Exec(ctx, query,
			d.ControlNumber, d.Title, d.Description, d.OrgName, d.City, d.UF,
			d.Modality, d.Sphere, d.PublishedAt, d.ItemURL,
		); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", d.ControlNumber, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(docs), nil
}

// Find implements search.Index.
func (i *Index) Find(ctx context.Context, f search.Filter) ([]search.Document, error) {
	var conds []string
	var args []any
	if f.Modality != "" {
		args = append(args, f.Modality)
		conds = append(conds, fmt.Sprintf("%s = $%d", search.FieldModality, len(args)))
	}
	if f.Sphere != "" {
		args = append(args, f.Sphere)
		conds = append(conds, fmt.Sprintf("%s = $%d", search.FieldSphere, len(args)))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", columns, i.table)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY numero_controle_pncp"

	rows, err := i.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (search.Document, error) {
		var d search.Document
		err := row.Scan(
			&d.ControlNumber, &d.Title, &d.Description, &d.OrgName, &d.City, &d.UF,
			&d.Modality, &d.Sphere, &d.PublishedAt, &d.ItemURL,
		)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan listings: %w", err)
	}
	return docs, nil
}

// Values implements search.Index.
func (i *Index) Values(ctx context.Context, field string) ([]string, error) {
	if field != search.FieldModality && field != search.FieldSphere {
		return nil, fmt.Errorf("%q: %w", field, search.ErrUnknownField)
	}
	query := fmt.Sprintf("SELECT DISTINCT %[1]s FROM %[2]s WHERE %[1]s <> '' ORDER BY %[1]s", field, i.table)
	rows, err := i.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", field, err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", field, err)
	}
	return values, nil
}

// Count implements search.Index.
func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := i.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", i.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

// Close releases the underlying pool resources.
func (i *Index) Close() error {
	if i == nil || i.pool == nil {
		return nil
	}
	i.pool.Close()
	return nil
}

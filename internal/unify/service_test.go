package unify_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
	"github.com/JakeFAU/pncp-crawler/internal/storage/memory"
	"github.com/JakeFAU/pncp-crawler/internal/table"
	"github.com/JakeFAU/pncp-crawler/internal/unify"
)

func writeTable(t *testing.T, path string, records []crawler.Record) {
	t.Helper()
	require.NoError(t, table.NewWriter('\t').Append(path, records))
}

func TestServiceRun(t *testing.T) {
	dataDir := t.TempDir()
	outDir := t.TempDir()
	src := unify.Sources{
		Name:     "editais",
		Listings: filepath.Join(dataDir, "editais_listings.tsv"),
		Items:    filepath.Join(dataDir, "editais_items.tsv"),
		Files:    filepath.Join(dataDir, "editais_files.tsv"),
	}
	writeTable(t, src.Listings, []crawler.Record{
		{crawler.ColControlNumber: "A/2024", "title": "Papel", "orgao_nome": "Org A", "ano": "2024"},
		{crawler.ColControlNumber: "B/2024", "title": "Café", "orgao_nome": "Org B", "ano": "2024"},
	})
	writeTable(t, src.Items, []crawler.Record{
		{crawler.ColControlNumber: "A/2024", "descricao": "Resma"},
		{crawler.ColControlNumber: "A/2024", "descricao": "Caneta"},
	})
	writeTable(t, src.Files, []crawler.Record{
		{crawler.ColControlNumber: "A/2024", "titulo": "Edital", "url": "https://x/1"},
	})

	core, logs := observer.New(zapcore.InfoLevel)
	blobs := memory.NewBlobStore()
	svc := unify.NewService(unify.Config{OutputDir: outDir, Parts: 2}, blobs, zap.New(core))

	res, err := svc.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Listings)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 1, res.MissingItems)
	assert.Equal(t, 1, res.MissingFiles)
	assert.Len(t, res.MarkdownFiles, 2)
	assert.Equal(t, 1, logs.FilterMessage("listing has no items").Len())

	assert.Equal(t, []string{"editais/json/A_2024.json", "editais/json/B_2024.json"}, blobs.Keys())
	raw, ok := blobs.Object("editais/json/A_2024.json")
	require.True(t, ok)
	var doc unify.Record
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "Papel", doc.Licitacao.Titulo)
	assert.Len(t, doc.Itens, 2)
	assert.Contains(t, string(raw), "\n    \"licitacao\"")

	csvTable, err := table.NewWriter(',').Read(res.CSVPath)
	require.NoError(t, err)
	assert.Equal(t, unify.Header, csvTable.Header)
	assert.Len(t, csvTable.Rows, 3)

	jsonl, err := os.ReadFile(res.JSONLPath)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(jsonl)), "\n"), 2)

	// A second pass regenerates rather than appends.
	res, err = svc.Run(context.Background(), src)
	require.NoError(t, err)
	csvTable, err = table.NewWriter(',').Read(res.CSVPath)
	require.NoError(t, err)
	assert.Len(t, csvTable.Rows, 3)
}

func TestServiceRunMissingListings(t *testing.T) {
	svc := unify.NewService(unify.Config{OutputDir: t.TempDir()}, nil, nil)
	_, err := svc.Run(context.Background(), unify.Sources{Name: "atas", Listings: filepath.Join(t.TempDir(), "none.tsv")})
	assert.Error(t, err)
}

func TestServiceRunCancelled(t *testing.T) {
	dataDir := t.TempDir()
	listings := filepath.Join(dataDir, "l.tsv")
	writeTable(t, listings, []crawler.Record{{crawler.ColControlNumber: "A"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := unify.NewService(unify.Config{OutputDir: t.TempDir()}, memory.NewBlobStore(), nil)
	_, err := svc.Run(ctx, unify.Sources{Name: "editais", Listings: listings})
	assert.ErrorIs(t, err, context.Canceled)
}

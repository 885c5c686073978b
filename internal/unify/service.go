package unify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
	"github.com/JakeFAU/pncp-crawler/internal/table"
)

// Sources names the tables of one crawl mode.
type Sources struct {
	Name     string
	Listings string
	Items    string
	Files    string
	// Delimiter of the source tables; zero means tab.
	Delimiter rune
}

// Config controls where unified outputs go.
type Config struct {
	OutputDir string
	Parts     int
}

// Result summarizes one unification pass.
type Result struct {
	Listings      int
	Rows          int
	MissingItems  int
	MissingFiles  int
	Failures      int
	CSVPath       string
	JSONLPath     string
	MarkdownFiles []string
}

// Service regenerates every unified output from the crawl tables.
type Service struct {
	cfg    Config
	blobs  crawler.BlobStore
	logger *zap.Logger
}

// NewService builds a Service writing per-listing JSON through blobs.
func NewService(cfg Config, blobs crawler.BlobStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, blobs: blobs, logger: logger}
}

// OutputDir returns the directory holding the outputs of one crawl mode.
func (s *Service) OutputDir(name string) string {
	return filepath.Join(s.cfg.OutputDir, name)
}

// Run reads the three tables and rewrites the JSON documents, the flattened
// CSV, the JSONL file and the Markdown parts. A listing whose details are
// missing is emitted with empty sections and logged.
func (s *Service) Run(ctx context.Context, src Sources) (Result, error) {
	logger := s.logger.With(zap.String("mode", src.Name))
	reader := table.NewWriter(src.Delimiter)

	listings, err := reader.Read(src.Listings)
	if err != nil {
		return Result{}, fmt.Errorf("read listings: %w", err)
	}
	items := s.group(reader, src.Items, logger)
	files := s.group(reader, src.Files, logger)

	outDir := s.OutputDir(src.Name)
	res := Result{
		CSVPath:   filepath.Join(outDir, "unified.csv"),
		JSONLPath: filepath.Join(outDir, "unified.jsonl"),
	}

	var rows [][]string
	var lines bytes.Buffer
	for _, listing := range listings.Records() {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("unify interrupted: %w", err)
		}
		id := listing.String(crawler.ColControlNumber)
		if id == "" {
			continue
		}
		its, haveItems := items[id]
		fls, haveFiles := files[id]
		if !haveItems {
			res.MissingItems++
			logger.Info("listing has no items", zap.String("control_number", id))
		}
		if !haveFiles {
			res.MissingFiles++
			logger.Info("listing has no files", zap.String("control_number", id))
		}

		rec := Unify(listing, its, fls)
		if err := s.putJSON(ctx, src.Name, id, rec); err != nil {
			res.Failures++
			logger.Error("write unified json failed", zap.String("control_number", id), zap.Error(err))
		}
		line, err := json.Marshal(rec)
		if err != nil {
			res.Failures++
			logger.Error("encode jsonl line failed", zap.String("control_number", id), zap.Error(err))
		} else {
			lines.Write(line)
			lines.WriteByte('\n')
		}
		flat := Flatten(rec)
		rows = append(rows, flat...)
		res.Listings++
	}
	res.Rows = len(rows)

	if err := table.NewWriter(',').Rewrite(res.CSVPath, table.Table{Header: Header, Rows: rows}); err != nil {
		return res, fmt.Errorf("write unified csv: %w", err)
	}
	if err := writeFileAtomic(res.JSONLPath, func(w *bufio.Writer) error {
		_, err := w.Write(lines.Bytes())
		return err
	}); err != nil {
		return res, fmt.Errorf("write unified jsonl: %w", err)
	}
	if s.cfg.Parts > 0 {
		parts, err := WriteMarkdown(res.CSVPath, outDir, s.cfg.Parts)
		res.MarkdownFiles = parts
		if err != nil {
			return res, fmt.Errorf("write markdown: %w", err)
		}
	}

	logger.Info("unification complete",
		zap.Int("listings", res.Listings),
		zap.Int("rows", res.Rows),
		zap.Int("missing_items", res.MissingItems),
		zap.Int("missing_files", res.MissingFiles),
		zap.Int("failures", res.Failures),
	)
	return res, nil
}

// group reads a detail table keyed by control number. A missing or
// unreadable table yields no groups.
func (s *Service) group(reader *table.Writer, p string, logger *zap.Logger) map[string][]crawler.Record {
	out := make(map[string][]crawler.Record)
	t, err := reader.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("detail table missing", zap.String("path", p))
		} else {
			logger.Warn("detail table unreadable", zap.String("path", p), zap.Error(err))
		}
		return out
	}
	for _, rec := range t.Records() {
		id := rec.String(crawler.ColControlNumber)
		out[id] = append(out[id], rec)
	}
	return out
}

func (s *Service) putJSON(ctx context.Context, mode, id string, rec Record) error {
	if s.blobs == nil {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("encode unified record: %w", err)
	}
	key := path.Join(mode, "json", crawler.SafeFilename(id)+".json")
	if _, err := s.blobs.PutObject(ctx, key, "application/json", &buf); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Package table reads and writes the delimited tables the crawl accumulates.
// Incremental writes append; anything that changes existing rows rewrites the
// whole file through a temp file and rename.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
)

// ErrNoHeader is returned when a table file exists but has no header row.
var ErrNoHeader = errors.New("table has no header")

// Table is an in-memory copy of a delimited file.
type Table struct {
	Header []string
	Rows   [][]string
}

// Index returns the position of column in the header, or -1.
func (t Table) Index(column string) int {
	for i, h := range t.Header {
		if h == column {
			return i
		}
	}
	return -1
}

// Records converts rows to string-valued records.
func (t Table) Records() []crawler.Record {
	out := make([]crawler.Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(crawler.Record, len(t.Header))
		for i, h := range t.Header {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}

// Writer reads and writes tables with a fixed delimiter.
type Writer struct {
	delim rune
}

// NewWriter returns a Writer. A zero delimiter means tab.
func NewWriter(delim rune) *Writer {
	if delim == 0 {
		delim = '\t'
	}
	return &Writer{delim: delim}
}

// Delimiter returns the configured delimiter.
func (w *Writer) Delimiter() rune { return w.delim }

// Read loads a table. A missing file returns os.ErrNotExist wrapped.
func (w *Writer) Read(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("open table %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return w.decode(f, path)
}

// ReadHeader returns the header row of path without reading the rows.
func (w *Writer) ReadHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	header, err := w.newReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read table %s: %w", path, ErrNoHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}
	return trimBOM(header), nil
}

func (w *Writer) newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = w.delim
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	return reader
}

func trimBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header
}

func (w *Writer) decode(r io.Reader, path string) (Table, error) {
	reader := w.newReader(r)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, fmt.Errorf("read table %s: %w", path, ErrNoHeader)
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header %s: %w", path, err)
	}
	header = trimBOM(header)
	rows, err := reader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("read rows %s: %w", path, err)
	}
	for i, row := range rows {
		rows[i] = padRow(row, len(header))
	}
	return Table{Header: header, Rows: rows}, nil
}

// ReadRecords is Read followed by Records. A missing file yields no records.
func (w *Writer) ReadRecords(path string) ([]crawler.Record, error) {
	t, err := w.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t.Records(), nil
}

// Append writes records to path. The first write creates the file with a
// sorted header; later writes follow the existing header. Keys the header
// lacks widen it, which rewrites the file.
func (w *Writer) Append(path string, records []crawler.Record) error {
	if len(records) == 0 {
		return nil
	}
	header, err := w.ReadHeader(path)
	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, ErrNoHeader):
		header := crawler.UnionKeys(records)
		return w.Rewrite(path, Table{Header: header, Rows: toRows(header, records)})
	case err != nil:
		return err
	}

	if missing := missingColumns(header, records); len(missing) > 0 {
		existing, err := w.Read(path)
		if err != nil {
			return err
		}
		widenedHeader := append(append([]string{}, existing.Header...), missing...)
		sort.Strings(widenedHeader)
		widened := Table{Header: widenedHeader, Rows: reorder(existing, widenedHeader)}
		widened.Rows = append(widened.Rows, toRows(widenedHeader, records)...)
		return w.Rewrite(path, widened)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open table for append %s: %w", path, err)
	}
	cw := csv.NewWriter(f)
	cw.Comma = w.delim
	if err := cw.WriteAll(toRows(header, records)); err != nil {
		_ = f.Close()
		return fmt.Errorf("append rows %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close table %s: %w", path, err)
	}
	return nil
}

// Rewrite replaces path atomically with t.
func (w *Writer) Rewrite(path string, t Table) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create table dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	cw := csv.NewWriter(tmp)
	cw.Comma = w.delim
	if err := cw.Write(t.Header); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write header %s: %w", path, err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write rows %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp table: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace table %s: %w", path, err)
	}
	return nil
}

// Sanitize drops rows that are equal in every column, keeping the first
// occurrence, and rewrites the file. It returns the number of removed rows.
// A missing file is not an error.
func (w *Writer) Sanitize(path string) (int, error) {
	t, err := w.Read(path)
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, ErrNoHeader) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(t.Rows))
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		key := strings.Join(row, "\x00")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	removed := len(t.Rows) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	t.Rows = kept
	if err := w.Rewrite(path, t); err != nil {
		return 0, err
	}
	return removed, nil
}

// UpdateRows applies fn to every row keyed by keyColumn and rewrites the
// file when fn reports a change. Columns fn sets that the header lacks are
// added.
func (w *Writer) UpdateRows(path, keyColumn string, fn func(key string, row crawler.Record) bool) (int, error) {
	t, err := w.Read(path)
	if err != nil {
		return 0, err
	}
	if t.Index(keyColumn) < 0 {
		return 0, fmt.Errorf("table %s has no column %q", path, keyColumn)
	}
	records := t.Records()
	changed := 0
	for _, rec := range records {
		if fn(rec.String(keyColumn), rec) {
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	header := append([]string{}, t.Header...)
	if extra := missingColumns(header, records); len(extra) > 0 {
		header = append(header, extra...)
		sort.Strings(header)
	}
	if err := w.Rewrite(path, Table{Header: header, Rows: toRows(header, records)}); err != nil {
		return 0, err
	}
	return changed, nil
}

// SetFlags sets every flag column to "True" on rows whose keyColumn is in
// ids. It returns the number of rows that changed.
func (w *Writer) SetFlags(path, keyColumn string, ids []string, flagColumns ...string) (int, error) {
	if len(ids) == 0 || len(flagColumns) == 0 {
		return 0, nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return w.UpdateRows(path, keyColumn, func(key string, row crawler.Record) bool {
		if _, ok := want[key]; !ok {
			return false
		}
		changed := false
		for _, col := range flagColumns {
			if row.Bool(col) {
				continue
			}
			row[col] = crawler.FormatBool(true)
			changed = true
		}
		return changed
	})
}

// toRows renders records in header order. CRLF inside a value becomes LF,
// matching what the reader returns, so a later rewrite leaves rows unchanged.
func toRows(header []string, records []crawler.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(header))
		for i, h := range header {
			row[i] = strings.ReplaceAll(rec.String(h), "\r\n", "\n")
		}
		rows = append(rows, row)
	}
	return rows
}

func reorder(t Table, header []string) [][]string {
	pos := make([]int, len(header))
	for i, h := range header {
		pos[i] = t.Index(h)
	}
	rows := make([][]string, 0, len(t.Rows))
	for _, old := range t.Rows {
		row := make([]string, len(header))
		for i, p := range pos {
			if p >= 0 && p < len(old) {
				row[i] = old[p]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func missingColumns(header []string, records []crawler.Record) []string {
	have := make(map[string]struct{}, len(header))
	for _, h := range header {
		have[h] = struct{}{}
	}
	var missing []string
	for _, k := range crawler.UnionKeys(records) {
		if _, ok := have[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

func padRow(row []string, n int) []string {
	if len(row) >= n {
		return row[:n]
	}
	return append(row, make([]string, n-len(row))...)
}

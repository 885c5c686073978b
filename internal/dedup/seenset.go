// Package dedup tracks identifiers already persisted to a table.
package dedup

import (
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
	"github.com/JakeFAU/pncp-crawler/internal/table"
)

// SeenSet is an in-memory identifier set. It is not safe for concurrent
// mutation; only the orchestrator goroutine adds to it.
type SeenSet struct {
	ids map[string]struct{}
}

// New returns an empty set.
func New() *SeenSet {
	return &SeenSet{ids: make(map[string]struct{})}
}

// Load reads column from the table at path. A missing file, an unreadable
// file or a missing column yields an empty set; the problem is logged.
func Load(path, column string, delim rune, logger *zap.Logger) *SeenSet {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := New()
	tbl, err := table.NewWriter(delim).Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("no existing table", zap.String("path", path))
		} else {
			logger.Warn("table unreadable, starting with empty seen set", zap.String("path", path), zap.Error(err))
		}
		return set
	}
	idx := tbl.Index(column)
	if idx < 0 {
		logger.Warn("identifier column missing, starting with empty seen set",
			zap.String("path", path),
			zap.String("column", column),
		)
		return set
	}
	for _, row := range tbl.Rows {
		if id := row[idx]; id != "" {
			set.ids[id] = struct{}{}
		}
	}
	logger.Info("seen set loaded", zap.String("path", path), zap.Int("ids", set.Len()))
	return set
}

// Contains reports whether id was seen.
func (s *SeenSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add records ids. Empty strings are ignored.
func (s *SeenSet) Add(ids ...string) {
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
}

// Len returns the number of identifiers.
func (s *SeenSet) Len() int { return len(s.ids) }

// Filter returns the records whose column value is unseen, also dropping
// repeats within the batch. The second result counts dropped records.
// Records without an identifier are kept. Filter does not mutate the set.
func (s *SeenSet) Filter(records []crawler.Record, column string) ([]crawler.Record, int) {
	fresh := make([]crawler.Record, 0, len(records))
	batch := make(map[string]struct{}, len(records))
	dropped := 0
	for _, rec := range records {
		id := rec.String(column)
		if id != "" {
			if _, ok := batch[id]; ok || s.Contains(id) {
				dropped++
				continue
			}
			batch[id] = struct{}{}
		}
		fresh = append(fresh, rec)
	}
	return fresh, dropped
}

package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
)

// Query is one search request.
type Query struct {
	Text   string
	Filter Filter
	Limit  int
	Cutoff float64
	// Exact switches from fuzzy ranking to token containment.
	Exact bool
}

// Service ties an Index to the ranking functions.
type Service struct {
	index  Index
	logger *zap.Logger
}

// NewService constructs a Service.
func NewService(index Index, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: index, logger: logger}
}

// Load indexes listing records, skipping rows without a control number.
func (s *Service) Load(ctx context.Context, records []crawler.Record) (int, error) {
	docs := make([]Document, 0, len(records))
	skipped := 0
	for _, r := range records {
		d := DocumentFromRecord(r)
		if d.ControlNumber == "" {
			skipped++
			continue
		}
		docs = append(docs, d)
	}
	n, err := s.index.Upsert(ctx, docs)
	if err != nil {
		return n, fmt.Errorf("index listings: %w", err)
	}
	s.logger.Info("listings indexed", zap.Int("indexed", n), zap.Int("skipped", skipped))
	return n, nil
}

// Search runs q against the index. An empty query text lists the filtered
// documents unranked.
func (s *Service) Search(ctx context.Context, q Query) ([]Hit, error) {
	docs, err := s.index.Find(ctx, q.Filter)
	if err != nil {
		return nil, fmt.Errorf("scan index: %w", err)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	cutoff := q.Cutoff
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}

	var hits []Hit
	switch {
	case Normalize(q.Text) == "":
		hits = make([]Hit, 0, min(limit, len(docs)))
		for _, d := range docs[:min(limit, len(docs))] {
			hits = append(hits, Hit{Document: d})
		}
	case q.Exact:
		hits = Match(q.Text, docs, limit)
	default:
		hits = Rank(q.Text, docs, limit, cutoff)
	}
	s.logger.Debug("search complete",
		zap.String("query", q.Text),
		zap.Bool("exact", q.Exact),
		zap.Int("candidates", len(docs)),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}

// Facets returns the distinct values offered for a filter field.
func (s *Service) Facets(ctx context.Context, field string) ([]string, error) {
	values, err := s.index.Values(ctx, field)
	if err != nil {
		return nil, fmt.Errorf("list %s values: %w", field, err)
	}
	return values, nil
}

// Package fetcher wraps a crawler.Transport with the retry contract and the
// PNCP search and detail endpoint conventions.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
	"github.com/JakeFAU/pncp-crawler/internal/metrics"
)

// ErrUnexpectedShape is returned when a detail body is neither a list nor an
// object wrapping an items list.
var ErrUnexpectedShape = errors.New("unexpected response shape")

const (
	searchPath = "/api/search/"
	detailPath = "/api/pncp/v1/orgaos/%s/compras/%s/%s/%s"
)

// Config holds endpoint settings.
type Config struct {
	BaseURL        string
	DetailPageSize int
}

// SearchParams selects one page of search results.
type SearchParams struct {
	Page     int
	PageSize int
	Sort     string
	Query    string
	DocType  string
	Status   string
}

// Values renders the params with the upstream parameter names.
func (p SearchParams) Values() url.Values {
	v := url.Values{}
	v.Set("pagina", strconv.Itoa(p.Page))
	v.Set("tam_pagina", strconv.Itoa(p.PageSize))
	if p.Sort != "" {
		v.Set("ordenacao", p.Sort)
	}
	v.Set("q", p.Query)
	if p.DocType != "" {
		v.Set("tipos_documento", p.DocType)
	}
	status := p.Status
	if status == "" {
		status = "todos"
	}
	v.Set("status", status)
	return v
}

// Fetcher issues search and detail requests with bounded retries.
type Fetcher struct {
	cfg       Config
	transport crawler.Transport
	retry     crawler.RetryPolicy
	sleeper   crawler.Sleeper
	logger    *zap.Logger
}

// New builds a Fetcher. A nil sleeper waits on a timer.
func New(cfg Config, transport crawler.Transport, retry crawler.RetryPolicy, sleeper crawler.Sleeper, logger *zap.Logger) *Fetcher {
	if sleeper == nil {
		sleeper = crawler.TimerSleeper{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DetailPageSize <= 0 {
		cfg.DetailPageSize = 500
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Fetcher{cfg: cfg, transport: transport, retry: retry, sleeper: sleeper, logger: logger}
}

// SearchURL returns the search URL for params.
func (f *Fetcher) SearchURL(params SearchParams) string {
	return f.cfg.BaseURL + searchPath + "?" + params.Values().Encode()
}

// DetailURL returns the detail endpoint URL for a listing.
func (f *Fetcher) DetailURL(listing crawler.Listing, kind crawler.DetailKind) string {
	v := url.Values{}
	v.Set("pagina", "1")
	v.Set("tamanhoPagina", strconv.Itoa(f.cfg.DetailPageSize))
	return f.cfg.BaseURL + fmt.Sprintf(detailPath,
		url.PathEscape(listing.OrgCNPJ),
		url.PathEscape(listing.Year),
		url.PathEscape(listing.Sequence),
		kind,
	) + "?" + v.Encode()
}

// SearchPage fetches one page of search results. The boolean is false when
// every attempt failed. A body without an items list is logged and yields an
// empty page.
func (f *Fetcher) SearchPage(ctx context.Context, params SearchParams) ([]crawler.Record, bool) {
	target := f.SearchURL(params)
	body, ok := f.get(ctx, "search", target)
	if !ok {
		return nil, false
	}
	records, err := decodeSearch(body)
	if err != nil {
		f.logger.Error("malformed search response",
			zap.String("url", target),
			zap.Int("page", params.Page),
			zap.Error(err),
		)
		return []crawler.Record{}, true
	}
	return records, true
}

// Details fetches the items or files of a listing. Every returned record is
// tagged with the listing's control number. The boolean is false when every
// attempt failed or the body had an unexpected shape.
func (f *Fetcher) Details(ctx context.Context, listing crawler.Listing, kind crawler.DetailKind) ([]crawler.Record, bool) {
	target := f.DetailURL(listing, kind)
	body, ok := f.get(ctx, string(kind), target)
	if !ok {
		return nil, false
	}
	records, err := decodeDetails(body)
	if err != nil {
		f.logger.Error("malformed detail response",
			zap.String("url", target),
			zap.String("control_number", listing.ControlNumber),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return nil, false
	}
	for _, rec := range records {
		rec[crawler.ColControlNumber] = listing.ControlNumber
	}
	return records, true
}

func (f *Fetcher) get(ctx context.Context, endpoint, target string) ([]byte, bool) {
	maxAttempts := f.retry.MaxAttempts()
	for attempt := 1; ; attempt++ {
		start := time.Now()
		resp, err := f.transport.Get(ctx, target)
		if err == nil {
			metrics.ObserveUpstream(endpoint, metrics.OutcomeOK, time.Since(start))
			return resp.Body, true
		}
		if !f.retry.ShouldRetry(err, attempt) {
			metrics.ObserveUpstream(endpoint, metrics.OutcomeFailed, time.Since(start))
			if ctx.Err() != nil {
				f.logger.Warn("request abandoned", zap.String("url", target), zap.Error(err))
				return nil, false
			}
			f.logger.Error("request failed, retries exhausted",
				zap.String("url", target),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return nil, false
		}
		delay := f.retry.Backoff(attempt)
		metrics.ObserveUpstream(endpoint, metrics.OutcomeRetry, time.Since(start))
		f.logger.Warn("request failed, retrying",
			zap.String("url", target),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		f.sleeper.Pause(ctx, delay)
		if ctx.Err() != nil {
			f.logger.Warn("request abandoned", zap.String("url", target), zap.Error(ctx.Err()))
			return nil, false
		}
	}
}

func decode(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

func decodeSearch(body []byte) ([]crawler.Record, error) {
	v, err := decode(body)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("search body is %T: %w", v, ErrUnexpectedShape)
	}
	items, present := obj["items"]
	if !present {
		return nil, fmt.Errorf("search body has no items: %w", ErrUnexpectedShape)
	}
	if items == nil {
		return []crawler.Record{}, nil
	}
	return toRecords(items)
}

func decodeDetails(body []byte) ([]crawler.Record, error) {
	v, err := decode(body)
	if err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case []any:
		return toRecords(val)
	case map[string]any:
		if items, ok := val["items"]; ok {
			if items == nil {
				return []crawler.Record{}, nil
			}
			return toRecords(items)
		}
	}
	return nil, fmt.Errorf("detail body is %T: %w", v, ErrUnexpectedShape)
}

func toRecords(v any) ([]crawler.Record, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("items is %T: %w", v, ErrUnexpectedShape)
	}
	out := make([]crawler.Record, 0, len(list))
	for i, elem := range list {
		obj, ok := elem.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d is %T: %w", i, elem, ErrUnexpectedShape)
		}
		out = append(out, crawler.Record(obj))
	}
	return out, nil
}

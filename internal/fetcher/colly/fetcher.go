// Package collyfetcher implements crawler.Transport using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodySize caps response bodies in bytes; zero means unlimited.
	MaxBodySize int
	Headers     http.Header
}

// Transport implements crawler.Transport using the Colly collector.
type Transport struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Transport.
func New(cfg Config) *Transport {
	c := colly.NewCollector(colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	c.MaxBodySize = cfg.MaxBodySize
	if cfg.Headers == nil {
		cfg.Headers = http.Header{"Accept": {"application/json"}}
	}
	return &Transport{cfg: cfg, baseCollector: c}
}

// Get executes a single HTTP GET. Non-2xx responses are returned as
// *crawler.HTTPStatusError.
func (t *Transport) Get(ctx context.Context, rawURL string) (crawler.FetchResponse, error) {
	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	collector := t.buildCollector(time.Now(), &result, &fetchErr)
	if err := t.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return result, err
	}
	return result, nil
}

func (t *Transport) buildCollector(start time.Time, result *crawler.FetchResponse, fetchErr *error) *colly.Collector {
	collector := t.baseCollector.Clone()
	if t.cfg.UserAgent != "" {
		collector.UserAgent = t.cfg.UserAgent
	}
	timeout := t.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	t.configureCollectorHooks(collector, start, result, fetchErr)
	return collector
}

func (t *Transport) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		t.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = toFetchResponse(r, start)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && r.Request != nil {
			*result = toFetchResponse(r, start)
			*fetchErr = &crawler.HTTPStatusError{URL: r.Request.URL.String(), StatusCode: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func (t *Transport) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("colly fetch canceled: %w", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		var statusErr *crawler.HTTPStatusError
		if errors.As(*fetchErr, &statusErr) {
			return statusErr
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (t *Transport) copyHeaders(r *colly.Request) {
	for key, values := range t.cfg.Headers {
		for _, v := range values {
			r.Headers.Set(key, v)
		}
	}
}

func toFetchResponse(r *colly.Response, start time.Time) crawler.FetchResponse {
	resp := crawler.FetchResponse{
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(start),
	}
	if r.Request != nil && r.Request.URL != nil {
		resp.URL = r.Request.URL.String()
	}
	if r.Headers != nil {
		resp.Headers = r.Headers.Clone()
	}
	return resp
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
	}
}

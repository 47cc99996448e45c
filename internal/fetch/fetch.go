// Package fetch implements the static HTTP fetcher using gocolly.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/cardstock/stockwatch/internal/monitor"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements monitor.Fetcher using the Colly collector. Any HTTP
// status that produces a body is returned as a page; only transport-level
// failures surface as errors, so 404/410 flow into verdict decisions rather
// than the error path.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	now           func() time.Time
}

// New builds a Fetcher.
func New(cfg Config, clock monitor.Clock) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true

	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		now:           clock.Now,
	}
}

// Fetch executes a single HTTP GET with a browser-like header set.
func (f *Fetcher) Fetch(ctx context.Context, url, referer string) (monitor.Page, error) {
	var (
		result   monitor.Page
		got      bool
		fetchErr error
	)
	collector := f.buildCollector(referer, &result, &got, &fetchErr)

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil && !got {
		return monitor.Page{}, err
	}
	result.URL = url
	result.FetchedAt = f.now()
	return result, nil
}

func (f *Fetcher) buildCollector(referer string, result *monitor.Page, got *bool, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	if collector.UserAgent == "" {
		collector.UserAgent = defaultUserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-AU,en;q=0.9")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
		if referer != "" {
			r.Headers.Set("Referer", referer)
		}
	})

	capture := func(r *colly.Response) {
		*result = monitor.Page{
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
		*got = true
	}

	collector.OnResponse(capture)

	collector.OnError(func(r *colly.Response, err error) {
		// Colly reports non-2xx statuses here. Keep the page when a
		// response actually arrived.
		if r != nil && r.StatusCode > 0 {
			capture(r)
			return
		}
		*fetchErr = err
	})

	return collector
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("fetch failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("fetch visit failed: %w", err)
		}
		return nil
	}
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
		IdleConnTimeout:       90 * time.Second,
	}
}

// Package fetcher retrieves a single web page for ingestion.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// ErrStatus is returned when the remote server answers with a 4xx or 5xx status.
var ErrStatus = errors.New("unexpected status")

// Config holds fetcher configuration.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	MaxBytes  int
}

// Page is the raw response for a fetched URL.
type Page struct {
	URL         string // final URL after redirects
	Body        []byte
	ContentType string
	StatusCode  int
	FetchedAt   time.Time
}

// Fetcher downloads pages with colly.
type Fetcher struct {
	config Config
}

// New creates a new Fetcher with the given configuration.
func New(config Config) *Fetcher {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "pagechat/1.0"
	}
	return &Fetcher{config: config}
}

// Fetch downloads pageURL without following links. The context cancels the
// request before it is sent; an in-flight request is bounded by Timeout.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(
		colly.UserAgent(f.config.UserAgent),
		colly.MaxDepth(1),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.SetRequestTimeout(f.config.Timeout)
	if f.config.MaxBytes > 0 {
		c.MaxBodySize = f.config.MaxBytes
	}

	var page *Page
	var fetchErr error

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			slog.Debug("fetch cancelled", "url", r.URL.String())
			r.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		if r.StatusCode >= http.StatusBadRequest {
			fetchErr = fmt.Errorf("%w: %d from %s", ErrStatus, r.StatusCode, r.Request.URL)
			return
		}
		page = &Page{
			URL:         r.Request.URL.String(),
			Body:        r.Body,
			ContentType: r.Headers.Get("Content-Type"),
			StatusCode:  r.StatusCode,
			FetchedAt:   time.Now(),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusBadRequest {
			fetchErr = fmt.Errorf("%w: %d from %s", ErrStatus, r.StatusCode, r.Request.URL)
			return
		}
		fetchErr = err
	})

	slog.Debug("fetching page", "url", pageURL)
	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = err
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, fetchErr)
	}
	if page == nil {
		return nil, fmt.Errorf("failed to fetch %s: no response", pageURL)
	}

	slog.Debug("fetched page", "url", page.URL, "status", page.StatusCode,
		"content_type", page.ContentType, "size", len(page.Body))
	return page, nil
}

// IsHTML reports whether the page declared an HTML body.
func (p *Page) IsHTML() bool {
	return strings.Contains(strings.ToLower(p.ContentType), "html")
}

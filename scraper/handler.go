package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/i1dus/listing-rater/config"
	"github.com/i1dus/listing-rater/httputil"
)

// ErrRateLimited is returned when the site answers a search page with 429.
var ErrRateLimited = fmt.Errorf("rate limited by source")

// Fetcher retrieves the HTML of one search page. The plain HTTP fetcher
// covers the normal case; the browser fetcher exists for periods when the
// site walls plain clients off.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Close()
}

func NewFetcher(cfg *config.ScraperConfig, clients *httputil.Clients) Fetcher {
	switch cfg.Handler {
	case "browser":
		return NewBrowserFetcher(cfg)
	default:
		return NewHTTPFetcher(cfg, clients)
	}
}

// HTTPFetcher fetches search pages with a plain HTTP client and browser-like
// headers.
type HTTPFetcher struct {
	cfg    *config.ScraperConfig
	client *http.Client
}

func NewHTTPFetcher(cfg *config.ScraperConfig, clients *httputil.Clients) *HTTPFetcher {
	return &HTTPFetcher{cfg: cfg, client: clients.Scraping}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(body), nil
}

func (f *HTTPFetcher) Close() {}

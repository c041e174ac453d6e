package httputil

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	"github.com/i1dus/listing-rater/config"
)

type Clients struct {
	Scraping *http.Client // optionally proxied, for the listing site
	Check    *http.Client // direct, for availability HEAD requests
}

func NewClients(scraperCfg *config.ScraperConfig) *Clients {
	transport := &http.Transport{
		ForceAttemptHTTP2: false,
		TLSNextProto:      make(map[string]func(string, *tls.Conn) http.RoundTripper),
	}
	if scraperCfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(scraperCfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	scraping := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}

	// The availability check must see the real status, not the page a
	// redirect lands on.
	check := &http.Client{
		Timeout: 15 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Clients{
		Scraping: scraping,
		Check:    check,
	}
}

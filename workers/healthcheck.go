package workers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/i1dus/listing-rater/models"
	"github.com/i1dus/listing-rater/services"
	"github.com/i1dus/listing-rater/storage"
)

// HealthcheckWorker checks whether active listings are still reachable at
// their source URL and marks the gone ones as removed.
type HealthcheckWorker struct {
	store      *storage.PostgresStore
	listings   *services.ListingService
	httpClient *http.Client
	userAgent  string
	triggerCh  chan struct{}
	logFunc    LogFunc
}

// NewHealthcheckWorker creates a new healthcheck worker. The client must not
// follow redirects: a redirect to the search page is how the site reports a
// removed listing.
func NewHealthcheckWorker(store *storage.PostgresStore, listings *services.ListingService, client *http.Client, userAgent string) *HealthcheckWorker {
	return &HealthcheckWorker{
		store:      store,
		listings:   listings,
		httpClient: client,
		userAgent:  userAgent,
		triggerCh:  make(chan struct{}, 1),
		logFunc:    NoOpLogger,
	}
}

func (w *HealthcheckWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run immediately
func (w *HealthcheckWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// CheckResult contains the outcome of checking a listing
type CheckResult struct {
	IsLive     bool
	StatusCode int
	Error      error
}

// Check does a lightweight HEAD request against the listing URL
func (w *HealthcheckWorker) Check(ctx context.Context, listingURL string) CheckResult {
	req, err := http.NewRequestWithContext(ctx, "HEAD", listingURL, nil)
	if err != nil {
		return CheckResult{Error: err}
	}
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return CheckResult{Error: err}
	}
	resp.Body.Close()

	result := CheckResult{StatusCode: resp.StatusCode}

	switch resp.StatusCode {
	case 200:
		result.IsLive = true
	case 404, 410:
		result.IsLive = false
	case 301, 302:
		result.IsLive = !isDelistRedirect(resp.Header.Get("Location"))
	default:
		// 403/429 mean we got blocked, not that the listing is gone
		result.IsLive = true
	}

	return result
}

// isDelistRedirect checks if a redirect target indicates a removed listing.
// Cian redirects dead listing pages back to the catalog.
func isDelistRedirect(location string) bool {
	delistPatterns := []string{
		"/kupit-",
		"/snyat-",
		"/cat.php",
		"notfound",
		"error",
	}

	lower := strings.ToLower(location)
	for _, pattern := range delistPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Run starts the healthcheck worker loop
func (w *HealthcheckWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Healthcheck worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		case <-w.triggerCh:
			log.Println("Healthcheck worker triggered manually")
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *HealthcheckWorker) processBatch(ctx context.Context, batchSize int) {
	listings, err := w.store.ListActiveListingsForCheck(ctx, batchSize)
	if err != nil {
		log.Printf("Healthcheck: query error: %v", err)
		return
	}

	if len(listings) == 0 {
		return
	}

	log.Printf("Healthcheck: checking %d listings", len(listings))

	var checked, removed int
	for _, listing := range listings {
		if ctx.Err() != nil {
			return
		}

		result := w.Check(ctx, listing.URL)
		checked++

		if result.Error != nil {
			log.Printf("Healthcheck: error checking %s: %v", listing.URL, result.Error)
			continue
		}

		if !result.IsLive {
			log.Printf("Healthcheck: listing removed (status %d): %s", result.StatusCode, listing.URL)
			if err := w.listings.MarkRemoved(ctx, listing); err != nil {
				log.Printf("Healthcheck: failed to mark removed: %v", err)
			} else {
				removed++
			}
		}

		// Rate limit between requests
		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
	}

	if removed > 0 {
		log.Printf("Healthcheck: checked %d, removed %d", checked, removed)
		w.logFunc(models.LogLevelInfo, "healthcheck", fmt.Sprintf("Checked %d listings, %d removed", checked, removed))
	}
}

package scraper

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/i1dus/listing-rater/config"
)

// BrowserFetcher drives a real Chromium through playwright. The listing site
// fingerprints plain HTTP clients aggressively; a persistent browser profile
// with human-ish mouse movement gets through where the HTTP fetcher starts
// seeing 429s.
type BrowserFetcher struct {
	cfg         *config.ScraperConfig
	mu          sync.Mutex
	pw          *playwright.Playwright
	context     playwright.BrowserContext
	initialized bool
}

func NewBrowserFetcher(cfg *config.ScraperConfig) *BrowserFetcher {
	return &BrowserFetcher{cfg: cfg}
}

func (f *BrowserFetcher) ensureBrowser() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized {
		return nil
	}

	var err error
	f.pw, err = playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	cwd, _ := os.Getwd()
	userDataDir := filepath.Join(cwd, "browser_data")
	f.context, err = f.pw.Chromium.LaunchPersistentContext(userDataDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	f.initialized = true
	return nil
}

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := f.ensureBrowser(); err != nil {
		return "", err
	}

	page, err := f.context.NewPage()
	if err != nil {
		return "", fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	log.Printf("Browser fetching: %s", url)
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(60000),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}

	f.simulateHumanBehavior(page)

	if blocked, _ := page.Locator("text=Доступ ограничен").First().IsVisible(); blocked {
		return "", ErrRateLimited
	}

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("read page content: %w", err)
	}
	return content, nil
}

func (f *BrowserFetcher) simulateHumanBehavior(page playwright.Page) {
	page.Mouse().Move(float64(300+rand.Intn(400)), float64(200+rand.Intn(300)))
	page.WaitForTimeout(float64(200 + rand.Intn(300)))
	page.Mouse().Move(float64(400+rand.Intn(300)), float64(300+rand.Intn(200)))
	page.WaitForTimeout(float64(200 + rand.Intn(300)))

	scrollAmount := 100 + rand.Intn(300)
	page.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d)`, scrollAmount))
}

func (f *BrowserFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.context != nil {
		f.context.Close()
	}
	if f.pw != nil {
		f.pw.Stop()
	}
	f.initialized = false
}

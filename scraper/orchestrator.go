package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/i1dus/listing-rater/config"
	"github.com/i1dus/listing-rater/models"
	"github.com/i1dus/listing-rater/services"
	"github.com/i1dus/listing-rater/storage"
)

// Orchestrator walks the configured search targets page by page, feeding
// every parsed card into the ingestion pipeline and recording each run.
type Orchestrator struct {
	cfg     *config.Config
	ops     *storage.SQLiteStore
	fetcher Fetcher
	paused  bool

	pgStore        *storage.PostgresStore
	listingService *services.ListingService
}

func NewOrchestrator(cfg *config.Config, ops *storage.SQLiteStore, fetcher Fetcher) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		ops:     ops,
		fetcher: fetcher,
	}
}

// SetServices injects the Postgres store and ingestion service.
func (o *Orchestrator) SetServices(pgStore *storage.PostgresStore, listing *services.ListingService) {
	o.pgStore = pgStore
	o.listingService = listing
}

func (o *Orchestrator) RunAll(ctx context.Context) error {
	if o.paused {
		log.Println("Scraper is paused, skipping run")
		return nil
	}

	for targetID := range o.cfg.Targets {
		if err := o.RunTarget(ctx, targetID); err != nil {
			log.Printf("Error running target %s: %v", targetID, err)
		}
	}

	return nil
}

func (o *Orchestrator) RunTarget(ctx context.Context, targetID string) error {
	target, ok := o.cfg.Targets[targetID]
	if !ok {
		return fmt.Errorf("unknown target: %s", targetID)
	}
	if o.listingService == nil {
		return fmt.Errorf("listing service not initialized")
	}

	run := &models.ScrapeRun{
		Source:    targetID,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	if o.pgStore != nil {
		if err := o.pgStore.CreateScrapeRun(ctx, run); err != nil {
			log.Printf("Warning: failed to create scrape run: %v", err)
		}
	}

	o.log(models.LogLevelInfo, fmt.Sprintf("Starting scrape for %s", target.Name), targetID)

	stats := &services.ProcessStats{}
	rateLimited := false

	defer func() {
		now := time.Now()
		run.FinishedAt = &now
		run.ListingsNew = stats.ListingsNew
		run.PropertiesNew = stats.PropertiesNew
		run.ErrorsCount = stats.Errors
		if run.Status == models.RunStatusRunning {
			run.Status = models.RunStatusCompleted
			if rateLimited {
				run.Status = models.RunStatusPartial
			}
		}
		if o.pgStore != nil && run.ID != 0 {
			if err := o.pgStore.FinishScrapeRun(ctx, run); err != nil {
				log.Printf("Warning: failed to finish scrape run: %v", err)
			}
		}
	}()

	maxPages := target.MaxPages
	if maxPages <= 0 {
		maxPages = o.cfg.Scraper.MaxPages
	}
	baseDomain := CityDomain(target.City)

	for page := 1; page <= maxPages; page++ {
		if page > 1 {
			delay := o.pageDelay()
			o.log(models.LogLevelInfo, fmt.Sprintf("Waiting %.1fs before page %d", delay.Seconds(), page), targetID)
			select {
			case <-ctx.Done():
				run.Status = models.RunStatusPartial
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		url := BuildSearchURL(target.City, target.Category, target.DealType, page, target.Filters)
		html, err := o.fetcher.Fetch(ctx, url)
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				o.log(models.LogLevelWarn, fmt.Sprintf("Rate limited on page %d, stopping", page), targetID)
				rateLimited = true
				break
			}
			o.log(models.LogLevelError, fmt.Sprintf("Fetch error on page %d: %v", page, err), targetID)
			run.Status = models.RunStatusFailed
			run.ErrorMessage = err.Error()
			return err
		}

		listings, err := ParseSearchPage(html, baseDomain)
		if err != nil {
			o.log(models.LogLevelError, fmt.Sprintf("Parse error on page %d: %v", page, err), targetID)
			run.Status = models.RunStatusFailed
			run.ErrorMessage = err.Error()
			return err
		}
		if len(listings) == 0 {
			o.log(models.LogLevelWarn, fmt.Sprintf("No listings on page %d, stopping", page), targetID)
			rateLimited = true
			break
		}

		run.ListingsFound += len(listings)
		o.log(models.LogLevelInfo, fmt.Sprintf("Page %d: %d listings", page, len(listings)), targetID)

		for i := range listings {
			raw := &listings[i]
			raw.City = CityName(target.City)
			raw.PropertyType = CategoryName(target.Category)

			result, err := o.listingService.ProcessListing(ctx, raw)
			if err != nil {
				o.log(models.LogLevelError, fmt.Sprintf("Process error for %d: %v", raw.SourceID, err), targetID)
				stats.Errors++
				continue
			}
			stats.Aggregate(result)
		}
	}

	o.log(models.LogLevelInfo,
		fmt.Sprintf("Completed: %d found, %d new listings, %d new properties, %d errors",
			run.ListingsFound, stats.ListingsNew, stats.PropertiesNew, stats.Errors), targetID)

	return nil
}

func (o *Orchestrator) pageDelay() time.Duration {
	delay := o.cfg.Scraper.Delay
	if o.cfg.Scraper.DelayRandom > 0 {
		delay += time.Duration(rand.Int63n(int64(o.cfg.Scraper.DelayRandom)))
	}
	return delay
}

// HandleCommand runs a queued scrape command.
func (o *Orchestrator) HandleCommand(cmd *models.Command) error {
	params, err := o.ops.ParseCommandParams(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()

	switch cmd.Command {
	case models.CmdRunScrape:
		if params.Target != "" {
			return o.RunTarget(ctx, params.Target)
		}
		return o.RunAll(ctx)
	}

	return nil
}

func (o *Orchestrator) Pause()         { o.paused = true }
func (o *Orchestrator) Resume()        { o.paused = false }
func (o *Orchestrator) IsPaused() bool { return o.paused }

func (o *Orchestrator) log(level models.LogLevel, message, targetID string) {
	log.Printf("[%s] %s: %s", level, targetID, message)
	if o.ops != nil {
		o.ops.Log(level, message, targetID)
	}
}

package workers

import (
	"context"
	"log"
	"time"

	"github.com/i1dus/listing-rater/config"
	"github.com/i1dus/listing-rater/scraper"
	"github.com/i1dus/listing-rater/services"
)

// StatsWorker periodically drops the regional stats cache and re-warms the
// slices the configured targets scrape, so scoring reads fresh market
// profiles instead of paying the recompute on a listing's critical path.
type StatsWorker struct {
	stats     *services.StatsService
	cfg       *config.Config
	triggerCh chan struct{}
}

// NewStatsWorker creates a new stats refresh worker
func NewStatsWorker(stats *services.StatsService, cfg *config.Config) *StatsWorker {
	return &StatsWorker{
		stats:     stats,
		cfg:       cfg,
		triggerCh: make(chan struct{}, 1),
	}
}

// Trigger causes the worker to run immediately
func (w *StatsWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run starts the stats refresh loop
func (w *StatsWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Stats worker stopping")
			return
		case <-ticker.C:
			w.refresh(ctx)
		case <-w.triggerCh:
			log.Println("Stats worker triggered manually")
			w.refresh(ctx)
		}
	}
}

func (w *StatsWorker) refresh(ctx context.Context) {
	w.stats.InvalidateCity("")

	for _, target := range w.cfg.Targets {
		if ctx.Err() != nil {
			return
		}
		city := scraper.CityName(target.City)
		propertyType := scraper.CategoryName(target.Category)
		w.stats.GetRegionalStats(ctx, city, "", propertyType)
	}
	log.Printf("Stats worker: refreshed %d target slices", len(w.cfg.Targets))
}

package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/i1dus/listing-rater/models"
	"github.com/i1dus/listing-rater/services"
	"github.com/i1dus/listing-rater/storage"
)

// ScoringWorker computes sale probability for listings that have not been
// scored yet, or were updated since their last score.
type ScoringWorker struct {
	store     *storage.PostgresStore
	scorer    *services.Scorer
	triggerCh chan struct{}
	logFunc   LogFunc
}

// NewScoringWorker creates a new scoring worker
func NewScoringWorker(store *storage.PostgresStore, scorer *services.Scorer) *ScoringWorker {
	return &ScoringWorker{
		store:     store,
		scorer:    scorer,
		triggerCh: make(chan struct{}, 1),
		logFunc:   NoOpLogger,
	}
}

func (w *ScoringWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run immediately
func (w *ScoringWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run starts the scoring worker loop
func (w *ScoringWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Scoring worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		case <-w.triggerCh:
			log.Println("Scoring worker triggered manually")
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *ScoringWorker) processBatch(ctx context.Context, batchSize int) {
	listings, err := w.store.ListUnscoredListings(ctx, batchSize)
	if err != nil {
		log.Printf("Scoring: query error: %v", err)
		return
	}

	if len(listings) == 0 {
		return
	}

	log.Printf("Scoring: scoring %d listings", len(listings))

	var scored, failed int
	for _, listing := range listings {
		if ctx.Err() != nil {
			return
		}

		result := w.scorer.CalculateProbability(ctx, listing, false)

		if err := w.store.UpdateListingScore(ctx, listing.ID, result.Probability, time.Now()); err != nil {
			log.Printf("Scoring: failed to save score for %s: %v", listing.ID, err)
			failed++
			continue
		}
		scored++
	}

	log.Printf("Scoring: scored %d, failed %d", scored, failed)
	w.logFunc(models.LogLevelInfo, "scoring", fmt.Sprintf("Scored %d listings (%d failed)", scored, failed))
}

package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/i1dus/listing-rater/config"
	"github.com/i1dus/listing-rater/models"
	"github.com/i1dus/listing-rater/scraper"
	"github.com/i1dus/listing-rater/services"
	"github.com/i1dus/listing-rater/storage"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

type Scheduler struct {
	cfg          *config.Config
	orchestrator *scraper.Orchestrator
	store        *storage.SQLiteStore
	matcher      *services.Matcher
	stats        *services.StatsService
	cron         *cron.Cron
	ticker       *time.Ticker
	stopCh       chan struct{}

	scoringWorker     Triggerable
	healthcheckWorker Triggerable
}

func New(cfg *config.Config, orchestrator *scraper.Orchestrator, store *storage.SQLiteStore, matcher *services.Matcher, stats *services.StatsService) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		store:        store,
		matcher:      matcher,
		stats:        stats,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
	}
}

// SetWorkers registers background workers for manual triggering
func (s *Scheduler) SetWorkers(scoring, healthcheck Triggerable) {
	s.scoringWorker = scoring
	s.healthcheckWorker = healthcheck
}

// logRetention bounds the SQLite run log. Two weeks is enough to debug a
// bad scrape cycle without the file growing without limit.
const logRetention = 14 * 24 * time.Hour

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)
	go s.pruneLogs(ctx)

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			if err := s.orchestrator.RunAll(ctx); err != nil {
				log.Printf("Scheduled run error: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					if err := s.orchestrator.RunAll(ctx); err != nil {
						log.Printf("Scheduled run error: %v", err)
					}
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, daemon will only respond to commands")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.store.GetPendingCommands()
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				if err := s.handleCommand(ctx, &cmd); err != nil {
					log.Printf("Command error: %v", err)
				}
				if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("Error marking command processed: %v", err)
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) pruneLogs(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pruned, err := s.store.PruneLogs(time.Now().Add(-logRetention))
			if err != nil {
				log.Printf("Error pruning run logs: %v", err)
			} else if pruned > 0 {
				log.Printf("Pruned %d old run log entries", pruned)
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdRunRematch:
		return s.runRematch(ctx)
	case models.CmdRunScoring:
		if s.scoringWorker != nil {
			s.scoringWorker.Trigger()
			log.Println("Scoring worker triggered via command")
		}
		return nil
	case models.CmdRefreshStats:
		params, err := s.store.ParseCommandParams(cmd)
		if err != nil {
			return err
		}
		s.stats.InvalidateCity(params.City)
		log.Printf("Regional stats cache invalidated (city=%q)", params.City)
		return nil
	default:
		return s.orchestrator.HandleCommand(cmd)
	}
}

// runRematch re-links every listing to a property. Only one rematch may run
// at a time; the batch_state row is the lock.
func (s *Scheduler) runRematch(ctx context.Context) error {
	claimed, err := s.store.TryStartBatch(models.BatchRematch)
	if err != nil {
		return fmt.Errorf("claim rematch batch: %w", err)
	}
	if !claimed {
		log.Println("Rematch already running, skipping")
		return nil
	}

	go func() {
		result, err := s.matcher.RematchAllListings(ctx)
		if err != nil {
			log.Printf("Rematch error: %v", err)
			s.store.Log(models.LogLevelError, fmt.Sprintf("Rematch failed: %v", err), "rematch")
			s.store.FinishBatch(models.BatchRematch, nil)
			return
		}

		log.Printf("Rematch done: processed %d, matched %d, created %d, low similarity %d, failed %d",
			result.Processed, result.Matched, result.Created, result.LowSimilarity, result.Failed)

		payload, err := json.Marshal(result)
		if err != nil {
			payload = nil
		}
		if err := s.store.FinishBatch(models.BatchRematch, payload); err != nil {
			log.Printf("Error finishing rematch batch: %v", err)
		}

		// Scores reference property links, so refresh them after a rematch.
		if s.scoringWorker != nil {
			s.scoringWorker.Trigger()
		}
	}()

	return nil
}

func (s *Scheduler) TriggerNow(ctx context.Context) error {
	return s.orchestrator.RunAll(ctx)
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/i1dus/listing-rater/config"
	"github.com/i1dus/listing-rater/httputil"
	"github.com/i1dus/listing-rater/logging"
	"github.com/i1dus/listing-rater/models"
	"github.com/i1dus/listing-rater/scheduler"
	"github.com/i1dus/listing-rater/scraper"
	"github.com/i1dus/listing-rater/services"
	"github.com/i1dus/listing-rater/storage"
	"github.com/i1dus/listing-rater/workers"
)

var (
	scrapeNow  = flag.Bool("scrape", false, "Run scrape once and exit")
	rematchNow = flag.Bool("rematch", false, "Rematch all listings to properties and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("daemon.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting listing-rater...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loaded %d scrape targets", len(cfg.Targets))
	for id, target := range cfg.Targets {
		log.Printf("  - %s (%s)", target.Name, id)
	}

	clients := httputil.NewClients(&cfg.Scraper)

	ctx := context.Background()

	// Postgres holds the domain data: listings, properties, scores
	pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()
	log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.DatabaseURL))

	// SQLite holds operational data: commands, batch locks, run logs
	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	// Initialize services
	matchConfig := services.NewMatchConfigProvider(pgStore)
	matcher := services.NewMatcher(pgStore, matchConfig)
	statsService := services.NewStatsService(pgStore, services.NewMemoryStatsCache())
	extractor := services.NewFeatureExtractor(statsService)
	model := services.LoadModel(cfg.Scoring.Model)
	scorer := services.NewScorer(model, extractor)
	listingService := services.NewListingService(pgStore, matcher, statsService)

	log.Printf("Services initialized (model %s v%s)", model.Name(), model.Version())

	// Create orchestrator
	fetcher := scraper.NewFetcher(&cfg.Scraper, clients)
	defer fetcher.Close()
	orchestrator := scraper.NewOrchestrator(cfg, sqliteStore, fetcher)
	orchestrator.SetServices(pgStore, listingService)

	// Handle one-shot commands
	if *scrapeNow {
		log.Println("Running scrape...")
		if err := orchestrator.RunAll(ctx); err != nil {
			log.Fatalf("Scrape failed: %v", err)
		}
		log.Println("Scrape complete!")
		return
	}

	if *rematchNow {
		// A daemon on the same SQLite file uses the batch flag as the
		// rematch lock, so claim it rather than just checking it.
		claimed, err := sqliteStore.TryStartBatch(models.BatchRematch)
		if err != nil {
			log.Fatalf("Failed to claim rematch lock: %v", err)
		}
		if !claimed {
			log.Fatal("A rematch is already running, refusing to start another")
		}
		log.Println("Running rematch...")
		result, err := matcher.RematchAllListings(ctx)
		if err != nil {
			sqliteStore.FinishBatch(models.BatchRematch, nil)
			log.Fatalf("Rematch failed: %v", err)
		}
		payload, _ := json.Marshal(result)
		if err := sqliteStore.FinishBatch(models.BatchRematch, payload); err != nil {
			log.Printf("Warning: could not release rematch lock: %v", err)
		}
		log.Printf("Rematch complete: processed %d, matched %d, created %d, low similarity %d, failed %d",
			result.Processed, result.Matched, result.Created, result.LowSimilarity, result.Failed)
		return
	}

	// Daemon mode
	sched := scheduler.New(cfg, orchestrator, sqliteStore, matcher, statsService)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start background workers
	scoringWorker := workers.NewScoringWorker(pgStore, scorer)
	scoringWorker.SetLogger(sqliteLogger(sqliteStore))
	go scoringWorker.Run(ctx, cfg.Scoring.BatchSize, cfg.Scoring.Interval)
	log.Println("Scoring worker started")

	healthcheckWorker := workers.NewHealthcheckWorker(pgStore, listingService, clients.Check, cfg.Scraper.UserAgent)
	healthcheckWorker.SetLogger(sqliteLogger(sqliteStore))
	go healthcheckWorker.Run(ctx, cfg.Healthcheck.BatchSize, cfg.Healthcheck.Interval)
	log.Println("Healthcheck worker started")

	statsWorker := workers.NewStatsWorker(statsService, cfg)
	go statsWorker.Run(ctx, cfg.Stats.Interval)
	log.Println("Stats worker started")

	if cfg.Media.Enabled {
		uploader, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			log.Printf("Warning: media mirroring disabled, S3 init failed: %v", err)
		} else {
			mediaWorker := workers.NewMediaWorker(pgStore, uploader, clients.Scraping, cfg.Scraper.UserAgent)
			mediaWorker.SetLogger(sqliteLogger(sqliteStore))
			go mediaWorker.Run(ctx, cfg.Media.BatchSize, cfg.Media.Interval)
			log.Println("Media worker started")
		}
	}

	sched.SetWorkers(scoringWorker, healthcheckWorker)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
}

// sqliteLogger adapts the ops store into a worker LogFunc
func sqliteLogger(store *storage.SQLiteStore) workers.LogFunc {
	return func(level models.LogLevel, source, message string) {
		if err := store.Log(level, message, source); err != nil {
			log.Printf("Warning: could not write run log: %v", err)
		}
	}
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}

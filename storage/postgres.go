package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/i1dus/listing-rater/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// =============================================================================
// Properties
// =============================================================================

func (s *PostgresStore) CreateProperty(ctx context.Context, p *models.Property) error {
	query := `
		INSERT INTO properties (
			id, city, district, street, house_number, property_type,
			rooms, floor, floors_total, area_total, area_living, area_kitchen,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW()
		)
		RETURNING created_at, updated_at`

	return s.pool.QueryRow(ctx, query,
		p.ID, p.City, p.District, p.Street, p.HouseNumber, p.PropertyType,
		p.Rooms, p.Floor, p.FloorsTotal, p.AreaTotal, p.AreaLiving, p.AreaKitchen,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (s *PostgresStore) GetPropertyByID(ctx context.Context, id uuid.UUID) (*models.Property, error) {
	query := `
		SELECT id, city, district, street, house_number, property_type,
			rooms, floor, floors_total, area_total, area_living, area_kitchen,
			created_at, updated_at
		FROM properties WHERE id = $1`

	var p models.Property
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.City, &p.District, &p.Street, &p.HouseNumber, &p.PropertyType,
		&p.Rooms, &p.Floor, &p.FloorsTotal, &p.AreaTotal, &p.AreaLiving, &p.AreaKitchen,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindCandidateProperties narrows the match search to one city and property
// type. Empty filters match everything; city is a case-insensitive substring
// so "Москва" finds properties stored as "г. Москва". Ordering is fixed so
// equal-score ties resolve the same way on every run.
func (s *PostgresStore) FindCandidateProperties(ctx context.Context, city, propertyType string) ([]*models.Property, error) {
	query := `
		SELECT id, city, district, street, house_number, property_type,
			rooms, floor, floors_total, area_total, area_living, area_kitchen,
			created_at, updated_at
		FROM properties
		WHERE ($1 = '' OR city ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR property_type = $2)
		ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, city, propertyType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var props []*models.Property
	for rows.Next() {
		var p models.Property
		if err := rows.Scan(
			&p.ID, &p.City, &p.District, &p.Street, &p.HouseNumber, &p.PropertyType,
			&p.Rooms, &p.Floor, &p.FloorsTotal, &p.AreaTotal, &p.AreaLiving, &p.AreaKitchen,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		props = append(props, &p)
	}
	return props, rows.Err()
}

// =============================================================================
// Listings
// =============================================================================

const listingColumns = `id, source_id, property_id, match_score, sale_probability,
		title, description, url, deal_type, price, currency,
		city, district, address, metro, metro_time, metro_transport,
		property_type, rooms, floor, floors_total, area_total, area_living, area_kitchen,
		images, is_active, parsed_at, published_at, scored_at, updated_at`

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(
		&l.ID, &l.SourceID, &l.PropertyID, &l.MatchScore, &l.SaleProbability,
		&l.Title, &l.Description, &l.URL, &l.DealType, &l.Price, &l.Currency,
		&l.City, &l.District, &l.Address, &l.Metro, &l.MetroTime, &l.MetroTransport,
		&l.PropertyType, &l.Rooms, &l.Floor, &l.FloorsTotal, &l.AreaTotal, &l.AreaLiving, &l.AreaKitchen,
		&l.Images, &l.IsActive, &l.ParsedAt, &l.PublishedAt, &l.ScoredAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) UpsertListing(ctx context.Context, l *models.Listing) error {
	query := `
		INSERT INTO listings (
			id, source_id, property_id, match_score, sale_probability,
			title, description, url, deal_type, price, currency,
			city, district, address, metro, metro_time, metro_transport,
			property_type, rooms, floor, floors_total, area_total, area_living, area_kitchen,
			images, is_active, parsed_at, published_at, scored_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30
		)
		ON CONFLICT (source_id) DO UPDATE SET
			property_id = COALESCE(EXCLUDED.property_id, listings.property_id),
			match_score = COALESCE(EXCLUDED.match_score, listings.match_score),
			sale_probability = COALESCE(EXCLUDED.sale_probability, listings.sale_probability),
			title = COALESCE(NULLIF(EXCLUDED.title, ''), listings.title),
			description = COALESCE(NULLIF(EXCLUDED.description, ''), listings.description),
			url = COALESCE(NULLIF(EXCLUDED.url, ''), listings.url),
			deal_type = COALESCE(NULLIF(EXCLUDED.deal_type, ''), listings.deal_type),
			price = COALESCE(EXCLUDED.price, listings.price),
			currency = COALESCE(NULLIF(EXCLUDED.currency, ''), listings.currency),
			city = COALESCE(NULLIF(EXCLUDED.city, ''), listings.city),
			district = COALESCE(NULLIF(EXCLUDED.district, ''), listings.district),
			address = COALESCE(NULLIF(EXCLUDED.address, ''), listings.address),
			metro = COALESCE(NULLIF(EXCLUDED.metro, ''), listings.metro),
			metro_time = COALESCE(EXCLUDED.metro_time, listings.metro_time),
			metro_transport = COALESCE(NULLIF(EXCLUDED.metro_transport, ''), listings.metro_transport),
			property_type = COALESCE(NULLIF(EXCLUDED.property_type, ''), listings.property_type),
			rooms = COALESCE(EXCLUDED.rooms, listings.rooms),
			floor = COALESCE(EXCLUDED.floor, listings.floor),
			floors_total = COALESCE(EXCLUDED.floors_total, listings.floors_total),
			area_total = COALESCE(EXCLUDED.area_total, listings.area_total),
			area_living = COALESCE(EXCLUDED.area_living, listings.area_living),
			area_kitchen = COALESCE(EXCLUDED.area_kitchen, listings.area_kitchen),
			images = CASE WHEN cardinality(EXCLUDED.images) > 0 THEN EXCLUDED.images ELSE listings.images END,
			is_active = EXCLUDED.is_active,
			published_at = COALESCE(EXCLUDED.published_at, listings.published_at),
			scored_at = COALESCE(EXCLUDED.scored_at, listings.scored_at),
			updated_at = NOW()
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		l.ID, l.SourceID, l.PropertyID, l.MatchScore, l.SaleProbability,
		l.Title, l.Description, l.URL, l.DealType, l.Price, l.Currency,
		l.City, l.District, l.Address, l.Metro, l.MetroTime, l.MetroTransport,
		l.PropertyType, l.Rooms, l.Floor, l.FloorsTotal, l.AreaTotal, l.AreaLiving, l.AreaKitchen,
		l.Images, l.IsActive, l.ParsedAt, l.PublishedAt, l.ScoredAt, l.UpdatedAt,
	).Scan(&l.ID)
}

func (s *PostgresStore) GetListingBySourceID(ctx context.Context, sourceID int64) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE source_id = $1`

	l, err := scanListing(s.pool.QueryRow(ctx, query, sourceID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *PostgresStore) queryListings(ctx context.Context, query string, args ...any) ([]*models.Listing, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// ListAllListings returns every listing, for full rematch sweeps.
func (s *PostgresStore) ListAllListings(ctx context.Context) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings ORDER BY parsed_at, id`
	return s.queryListings(ctx, query)
}

// ListActiveListingsForStats returns active listings with a usable price and
// area, optionally narrowed by region and exact property type.
func (s *PostgresStore) ListActiveListingsForStats(ctx context.Context, city, district, propertyType string) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings
		WHERE is_active = TRUE AND price > 0 AND area_total > 0
		  AND ($1 = '' OR city ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR district ILIKE '%' || $2 || '%')
		  AND ($3 = '' OR property_type = $3)`
	return s.queryListings(ctx, query, city, district, propertyType)
}

// ListUnscoredListings returns active listings that were never scored or
// changed since their last score, oldest first.
func (s *PostgresStore) ListUnscoredListings(ctx context.Context, limit int) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings
		WHERE is_active = TRUE AND (scored_at IS NULL OR updated_at > scored_at)
		ORDER BY parsed_at
		LIMIT $1`
	return s.queryListings(ctx, query, limit)
}

// ListActiveListingsForCheck returns active listings least recently checked
// first, for the availability sweep.
func (s *PostgresStore) ListActiveListingsForCheck(ctx context.Context, limit int) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings
		WHERE is_active = TRUE AND url <> ''
		ORDER BY updated_at
		LIMIT $1`
	return s.queryListings(ctx, query, limit)
}

// ListListingsWithImages returns listings that still reference at least one
// image outside the mirror host.
func (s *PostgresStore) ListListingsWithImages(ctx context.Context, mirrorPrefix string, limit int) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings
		WHERE cardinality(images) > 0
		  AND EXISTS (SELECT 1 FROM unnest(images) img WHERE img NOT LIKE $1 || '%')
		ORDER BY parsed_at
		LIMIT $2`
	return s.queryListings(ctx, query, mirrorPrefix, limit)
}

func (s *PostgresStore) UpdateListingImages(ctx context.Context, id uuid.UUID, images []string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE listings SET images = $2, updated_at = NOW() WHERE id = $1`, id, images)
	return err
}

func (s *PostgresStore) UpdateListingScore(ctx context.Context, id uuid.UUID, probability float64, scoredAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE listings SET sale_probability = $2, scored_at = $3 WHERE id = $1`,
		id, probability, scoredAt)
	return err
}

// ApplyListingPropertyUpdates writes a batch of rematch assignments in one
// transaction so an interrupted sweep never leaves half the corpus on the old
// configuration.
func (s *PostgresStore) ApplyListingPropertyUpdates(ctx context.Context, updates []models.ListingPropertyUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(
			`UPDATE listings SET property_id = $2, match_score = $3, updated_at = NOW() WHERE id = $1`,
			u.ListingID, u.PropertyID, u.MatchScore)
	}
	br := tx.SendBatch(ctx, batch)
	for range updates {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("apply update: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	return tx.Commit(ctx)
}

// =============================================================================
// Match configs
// =============================================================================

func (s *PostgresStore) GetActiveMatchConfig(ctx context.Context) (*models.MatchConfig, error) {
	query := `
		SELECT id, name, is_active, weights, strict_attributes, threshold, created_at, updated_at
		FROM match_configs WHERE is_active = TRUE
		ORDER BY updated_at DESC LIMIT 1`

	var cfg models.MatchConfig
	var weights []byte
	err := s.pool.QueryRow(ctx, query).Scan(
		&cfg.ID, &cfg.Name, &cfg.IsActive, &weights, &cfg.StrictAttributes,
		&cfg.Threshold, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(weights, &cfg.Weights); err != nil {
		return nil, fmt.Errorf("decode weights: %w", err)
	}
	return &cfg, nil
}

// SaveMatchConfig inserts a config; when it is marked active, every other
// config is deactivated in the same transaction.
func (s *PostgresStore) SaveMatchConfig(ctx context.Context, cfg *models.MatchConfig) error {
	weights, err := json.Marshal(cfg.Weights)
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if cfg.IsActive {
		if _, err := tx.Exec(ctx, `UPDATE match_configs SET is_active = FALSE WHERE is_active = TRUE`); err != nil {
			return fmt.Errorf("deactivate configs: %w", err)
		}
	}

	query := `
		INSERT INTO match_configs (name, is_active, weights, strict_attributes, threshold, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id`
	if err := tx.QueryRow(ctx, query,
		cfg.Name, cfg.IsActive, weights, cfg.StrictAttributes, cfg.Threshold,
	).Scan(&cfg.ID); err != nil {
		return fmt.Errorf("insert config: %w", err)
	}

	return tx.Commit(ctx)
}

// =============================================================================
// Status logs
// =============================================================================

func (s *PostgresStore) CreateStatusLog(ctx context.Context, entry *models.StatusLog) error {
	query := `
		INSERT INTO status_logs (listing_id, status, published_at, removed_at, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		entry.ListingID, entry.Status, entry.PublishedAt, entry.RemovedAt, entry.Note, entry.CreatedAt,
	).Scan(&entry.ID)
}

// =============================================================================
// Scrape runs
// =============================================================================

func (s *PostgresStore) CreateScrapeRun(ctx context.Context, run *models.ScrapeRun) error {
	query := `
		INSERT INTO scrape_runs (source, started_at, status)
		VALUES ($1, $2, $3)
		RETURNING id`
	return s.pool.QueryRow(ctx, query, run.Source, run.StartedAt, run.Status).Scan(&run.ID)
}

func (s *PostgresStore) FinishScrapeRun(ctx context.Context, run *models.ScrapeRun) error {
	query := `
		UPDATE scrape_runs SET
			finished_at = $2, status = $3, listings_found = $4, listings_new = $5,
			properties_new = $6, errors_count = $7, error_message = $8
		WHERE id = $1`
	_, err := s.pool.Exec(ctx, query,
		run.ID, run.FinishedAt, run.Status, run.ListingsFound, run.ListingsNew,
		run.PropertiesNew, run.ErrorsCount, run.ErrorMessage)
	return err
}

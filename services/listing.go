package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/i1dus/listing-rater/models"
)

// ListingStore is the storage surface the ingestion service uses.
type ListingStore interface {
	GetListingBySourceID(ctx context.Context, sourceID int64) (*models.Listing, error)
	UpsertListing(ctx context.Context, l *models.Listing) error
	CreateStatusLog(ctx context.Context, entry *models.StatusLog) error
}

// ListingService handles the fan-out logic for saving scraped listings:
// upsert, status transitions, property matching and stats invalidation.
type ListingService struct {
	store   ListingStore
	matcher *Matcher
	stats   *StatsService
}

// NewListingService creates a new ListingService. The matcher and stats
// service are optional; a nil matcher skips property linking.
func NewListingService(store ListingStore, matcher *Matcher, stats *StatsService) *ListingService {
	return &ListingService{
		store:   store,
		matcher: matcher,
		stats:   stats,
	}
}

// ProcessResult contains the outcome of processing one raw listing.
type ProcessResult struct {
	ListingID     uuid.UUID
	PropertyID    *uuid.UUID
	IsNewListing  bool
	IsNewProperty bool
	Reactivated   bool
	PriceChanged  bool
}

// listingFromRaw merges a raw listing into an existing record, or builds a
// fresh one. Absent raw fields keep the stored value: a source that stops
// sending the kitchen area shouldn't erase what an earlier scrape found.
func listingFromRaw(raw *models.RawListing, existing *models.Listing, now time.Time) *models.Listing {
	l := existing
	if l == nil {
		l = &models.Listing{
			ID:       uuid.New(),
			SourceID: raw.SourceID,
			ParsedAt: now,
		}
	}

	if raw.Title != "" {
		l.Title = raw.Title
	}
	if raw.Description != "" {
		l.Description = raw.Description
	}
	if raw.URL != "" {
		l.URL = raw.URL
	}
	if raw.DealType != "" {
		l.DealType = raw.DealType
	}
	if raw.Price != nil {
		l.Price = raw.Price
	}
	if raw.City != "" {
		l.City = raw.City
	}
	if raw.District != "" {
		l.District = raw.District
	}
	if raw.Address != "" {
		l.Address = raw.Address
	}
	if raw.Metro != "" {
		l.Metro = raw.Metro
	}
	if raw.MetroTime != nil {
		l.MetroTime = raw.MetroTime
	}
	if raw.MetroTransport != "" {
		l.MetroTransport = raw.MetroTransport
	}
	if raw.PropertyType != "" {
		l.PropertyType = raw.PropertyType
	}
	if raw.Rooms != nil {
		l.Rooms = raw.Rooms
	}
	if raw.Floor != nil {
		l.Floor = raw.Floor
	}
	if raw.FloorsTotal != nil {
		l.FloorsTotal = raw.FloorsTotal
	}
	if raw.AreaTotal != nil {
		l.AreaTotal = raw.AreaTotal
	}
	if raw.AreaLiving != nil {
		l.AreaLiving = raw.AreaLiving
	}
	if raw.AreaKitchen != nil {
		l.AreaKitchen = raw.AreaKitchen
	}
	if len(raw.Images) > 0 {
		l.Images = raw.Images
	}

	l.IsActive = true
	l.UpdatedAt = now
	return l
}

// ProcessListing saves one raw listing. Idempotent: re-running the same scrape
// updates the stored listing in place and produces no duplicate status logs.
func (s *ListingService) ProcessListing(ctx context.Context, raw *models.RawListing) (*ProcessResult, error) {
	if raw.SourceID == 0 {
		return nil, fmt.Errorf("raw listing has no source id")
	}
	now := time.Now()
	result := &ProcessResult{}

	existing, err := s.store.GetListingBySourceID(ctx, raw.SourceID)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}

	var previousPrice *int64
	wasInactive := false
	if existing != nil {
		previousPrice = existing.Price
		wasInactive = !existing.IsActive
	}

	listing := listingFromRaw(raw, existing, now)
	result.ListingID = listing.ID
	result.IsNewListing = existing == nil
	result.Reactivated = wasInactive

	// Property linking before save so the assignment lands in the same upsert.
	if s.matcher != nil && listing.PropertyID == nil {
		_, created, err := s.matcher.FindOrCreateProperty(ctx, listing, true)
		if err != nil {
			log.Printf("Warning: failed to match listing %d to a property: %v", raw.SourceID, err)
		} else if created {
			result.IsNewProperty = true
		}
	}
	result.PropertyID = listing.PropertyID

	if err := s.store.UpsertListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("save listing: %w", err)
	}

	if previousPrice != nil && listing.Price != nil && *previousPrice != *listing.Price {
		result.PriceChanged = true
	}

	switch {
	case result.IsNewListing:
		s.logStatus(ctx, listing, models.StatusPublished)
	case result.Reactivated:
		s.logStatus(ctx, listing, models.StatusReactivated)
	}

	// A new or re-priced listing shifts the regional price profile.
	if s.stats != nil && (result.IsNewListing || result.PriceChanged) {
		s.stats.InvalidateCity(listing.City)
	}

	return result, nil
}

// MarkRemoved deactivates a listing that disappeared from the source and
// records the transition.
func (s *ListingService) MarkRemoved(ctx context.Context, listing *models.Listing) error {
	if !listing.IsActive {
		return nil
	}
	listing.IsActive = false
	listing.UpdatedAt = time.Now()
	if err := s.store.UpsertListing(ctx, listing); err != nil {
		return fmt.Errorf("deactivate listing: %w", err)
	}
	s.logStatus(ctx, listing, models.StatusRemoved)
	if s.stats != nil {
		s.stats.InvalidateCity(listing.City)
	}
	return nil
}

func (s *ListingService) logStatus(ctx context.Context, l *models.Listing, status string) {
	now := time.Now()
	entry := &models.StatusLog{
		ListingID: l.ID,
		Status:    status,
		CreatedAt: now,
	}
	switch status {
	case models.StatusPublished, models.StatusReactivated:
		entry.PublishedAt = &now
	case models.StatusRemoved:
		entry.RemovedAt = &now
	}
	if err := s.store.CreateStatusLog(ctx, entry); err != nil {
		log.Printf("Warning: failed to log %s status for listing %d: %v", status, l.SourceID, err)
	}
}

// ProcessStats tracks aggregate statistics for a scrape run
type ProcessStats struct {
	ListingsProcessed int
	ListingsNew       int
	PropertiesNew     int
	Reactivated       int
	PriceChanges      int
	Errors            int
}

// Aggregate adds a ProcessResult to the stats
func (s *ProcessStats) Aggregate(r *ProcessResult) {
	s.ListingsProcessed++
	if r.IsNewListing {
		s.ListingsNew++
	}
	if r.IsNewProperty {
		s.PropertiesNew++
	}
	if r.Reactivated {
		s.Reactivated++
	}
	if r.PriceChanged {
		s.PriceChanges++
	}
}

// ToJSON returns JSON-serializable metadata
func (s *ProcessStats) ToJSON() json.RawMessage {
	data, _ := json.Marshal(map[string]int{
		"listings_processed": s.ListingsProcessed,
		"listings_new":       s.ListingsNew,
		"properties_new":     s.PropertiesNew,
		"reactivated":        s.Reactivated,
		"price_changes":      s.PriceChanges,
		"errors":             s.Errors,
	})
	return data
}

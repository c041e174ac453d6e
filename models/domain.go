package models

import (
	"time"

	"github.com/google/uuid"
)

// Listing is one scraped advertisement. A listing optionally belongs to the
// physical Property it was matched against.
type Listing struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	SourceID        int64      `json:"source_id" db:"source_id"` // external classified id, unique
	PropertyID      *uuid.UUID `json:"property_id" db:"property_id"`
	MatchScore      *float64   `json:"match_score" db:"match_score"` // similarity to property, 0-100
	SaleProbability *float64   `json:"sale_probability" db:"sale_probability"`

	Title       string `json:"title" db:"title"`
	Description string `json:"description" db:"description"`
	URL         string `json:"url" db:"url"`
	DealType    string `json:"deal_type" db:"deal_type"`

	Price    *int64 `json:"price" db:"price"`
	Currency string `json:"currency" db:"currency"`

	City     string `json:"city" db:"city"`
	District string `json:"district" db:"district"`
	Address  string `json:"address" db:"address"`

	Metro          string `json:"metro" db:"metro"`
	MetroTime      *int   `json:"metro_time" db:"metro_time"`
	MetroTransport string `json:"metro_transport" db:"metro_transport"`

	PropertyType string   `json:"property_type" db:"property_type"`
	Rooms        *int     `json:"rooms" db:"rooms"`
	Floor        *int     `json:"floor" db:"floor"`
	FloorsTotal  *int     `json:"floors_total" db:"floors_total"`
	AreaTotal    *float64 `json:"area_total" db:"area_total"`
	AreaLiving   *float64 `json:"area_living" db:"area_living"`
	AreaKitchen  *float64 `json:"area_kitchen" db:"area_kitchen"`

	Images []string `json:"images" db:"images"`

	IsActive bool `json:"is_active" db:"is_active"`

	ParsedAt    time.Time  `json:"parsed_at" db:"parsed_at"`
	PublishedAt *time.Time `json:"published_at" db:"published_at"`
	ScoredAt    *time.Time `json:"scored_at" db:"scored_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Property is a physical real-estate unit grouping listings that refer to it.
// Attributes are captured once at creation and never mutated by re-scrape.
type Property struct {
	ID uuid.UUID `json:"id" db:"id"`

	City        string `json:"city" db:"city"`
	District    string `json:"district" db:"district"`
	Street      string `json:"street" db:"street"`
	HouseNumber string `json:"house_number" db:"house_number"`

	PropertyType string   `json:"property_type" db:"property_type"`
	Rooms        *int     `json:"rooms" db:"rooms"`
	Floor        *int     `json:"floor" db:"floor"`
	FloorsTotal  *int     `json:"floors_total" db:"floors_total"`
	AreaTotal    *float64 `json:"area_total" db:"area_total"`
	AreaLiving   *float64 `json:"area_living" db:"area_living"`
	AreaKitchen  *float64 `json:"area_kitchen" db:"area_kitchen"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MatchConfig is a versioned snapshot of matching weights, strict attributes
// and the similarity threshold. At most one row is active at a time.
type MatchConfig struct {
	ID               int64              `json:"id" db:"id"`
	Name             string             `json:"name" db:"name"`
	IsActive         bool               `json:"is_active" db:"is_active"`
	Weights          map[string]float64 `json:"weights" db:"weights"`
	StrictAttributes []string           `json:"strict_attributes" db:"strict_attributes"`
	Threshold        float64            `json:"threshold" db:"threshold"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" db:"updated_at"`
}

// AttributeScore is the comparator outcome for a single attribute.
type AttributeScore struct {
	Matched    bool    `json:"matched"`
	Similarity float64 `json:"similarity"`
}

// MatchResult is the transient outcome of comparing a listing against one
// candidate property. SimilarityScore is the raw weighted formula output and
// is deliberately not clamped to 100.
type MatchResult struct {
	Property         *Property                 `json:"property"`
	SimilarityScore  float64                   `json:"similarity_score"`
	AttributeScores  map[string]AttributeScore `json:"attribute_scores"`
	StrictViolations []string                  `json:"strict_violations"`
}

// StatusLog records a listing status transition.
type StatusLog struct {
	ID          int64      `json:"id" db:"id"`
	ListingID   uuid.UUID  `json:"listing_id" db:"listing_id"`
	Status      string     `json:"status" db:"status"`
	PublishedAt *time.Time `json:"published_at" db:"published_at"`
	RemovedAt   *time.Time `json:"removed_at" db:"removed_at"`
	Note        string     `json:"note" db:"note"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// ScrapeRun is a scrape execution record.
type ScrapeRun struct {
	ID            int64      `json:"id" db:"id"`
	Source        string     `json:"source" db:"source"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at" db:"finished_at"`
	Status        string     `json:"status" db:"status"` // running, completed, failed, partial
	ListingsFound int        `json:"listings_found" db:"listings_found"`
	ListingsNew   int        `json:"listings_new" db:"listings_new"`
	PropertiesNew int        `json:"properties_new" db:"properties_new"`
	ErrorsCount   int        `json:"errors_count" db:"errors_count"`
	ErrorMessage  string     `json:"error_message" db:"error_message"`
}

// RematchResult tallies one full rematch sweep.
type RematchResult struct {
	Processed     int `json:"processed"`
	Matched       int `json:"matched"`
	Created       int `json:"created"`
	Failed        int `json:"failed"`
	LowSimilarity int `json:"low_similarity"`
}

// ListingPropertyUpdate is one listing's new property assignment, collected
// during a rematch sweep and applied in bulk.
type ListingPropertyUpdate struct {
	ListingID  uuid.UUID
	PropertyID *uuid.UUID
	MatchScore *float64
}

// Status log statuses
const (
	StatusPublished   = "published"
	StatusRemoved     = "removed"
	StatusReactivated = "reactivated"
)

// Scrape run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusPartial   = "partial"
)

// Deal types (display values, as stored)
const (
	DealTypeSale = "Продажа"
	DealTypeRent = "Аренда"
)

package services

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/i1dus/listing-rater/address"
	"github.com/i1dus/listing-rater/models"
)

// MatchStore is the storage surface the matcher depends on.
type MatchStore interface {
	FindCandidateProperties(ctx context.Context, city, propertyType string) ([]*models.Property, error)
	CreateProperty(ctx context.Context, p *models.Property) error
	ListAllListings(ctx context.Context) ([]*models.Listing, error)
	ApplyListingPropertyUpdates(ctx context.Context, updates []models.ListingPropertyUpdate) error
}

// Matcher links listings to canonical property records by weighted
// attribute similarity.
type Matcher struct {
	store  MatchStore
	config *MatchConfigProvider
}

func NewMatcher(store MatchStore, config *MatchConfigProvider) *Matcher {
	return &Matcher{store: store, config: config}
}

// listingAttribute resolves a named attribute from a listing, using the
// address parts already extracted from it.
func listingAttribute(l *models.Listing, parts address.Parts, name string) AttrValue {
	switch name {
	case "city":
		return StrValue(parts.City)
	case "district":
		return StrValue(parts.District)
	case "street":
		return StrValue(parts.Street)
	case "house_number":
		return StrValue(parts.HouseNumber)
	case "property_type":
		return StrValue(l.PropertyType)
	case "rooms":
		return IntPtr(l.Rooms)
	case "floor":
		return IntPtr(l.Floor)
	case "area_total":
		return NumPtr(l.AreaTotal)
	case "area_living":
		return NumPtr(l.AreaLiving)
	case "area_kitchen":
		return NumPtr(l.AreaKitchen)
	}
	return AttrValue{}
}

func propertyAttribute(p *models.Property, name string) AttrValue {
	switch name {
	case "city":
		return StrValue(p.City)
	case "district":
		return StrValue(p.District)
	case "street":
		return StrValue(p.Street)
	case "house_number":
		return StrValue(p.HouseNumber)
	case "property_type":
		return StrValue(p.PropertyType)
	case "rooms":
		return IntPtr(p.Rooms)
	case "floor":
		return IntPtr(p.Floor)
	case "area_total":
		return NumPtr(p.AreaTotal)
	case "area_living":
		return NumPtr(p.AreaLiving)
	case "area_kitchen":
		return NumPtr(p.AreaKitchen)
	}
	return AttrValue{}
}

func isStrict(cfg *models.MatchConfig, name string) bool {
	for _, a := range cfg.StrictAttributes {
		if a == name {
			return true
		}
	}
	return false
}

// CalculateSimilarity scores a listing against a property using the weighted
// attribute profile in cfg. The score is the matched weight as a percentage
// of the contested weight.
//
// An attribute absent on both sides is skipped entirely. A partial match
// (similarity below 1.0) adds its fractional weight to the matched side only,
// which lets strong partial agreement push the raw score above 100; callers
// that need a bounded value clamp it themselves. Any strict attribute that is
// one-sided or mismatched vetoes the candidate outright.
func (m *Matcher) CalculateSimilarity(listing *models.Listing, property *models.Property, cfg *models.MatchConfig) *models.MatchResult {
	parts := address.Extract(listing.City, listing.District, listing.Address)

	result := &models.MatchResult{
		Property:        property,
		AttributeScores: make(map[string]models.AttributeScore),
	}

	var totalWeight, matchedWeight float64
	for name, weight := range cfg.Weights {
		lv := listingAttribute(listing, parts, name)
		pv := propertyAttribute(property, name)

		if lv.Absent() && pv.Absent() {
			continue
		}
		if lv.Absent() || pv.Absent() {
			if isStrict(cfg, name) {
				result.StrictViolations = append(result.StrictViolations, name)
			}
			result.AttributeScores[name] = models.AttributeScore{Matched: false, Similarity: 0}
			continue
		}

		matched, sim := CompareAttribute(name, lv, pv)
		result.AttributeScores[name] = models.AttributeScore{Matched: matched, Similarity: sim}

		if matched {
			if sim >= 1.0 {
				totalWeight += weight
				matchedWeight += weight
			} else {
				matchedWeight += weight * sim
			}
		} else {
			totalWeight += weight
			if isStrict(cfg, name) {
				result.StrictViolations = append(result.StrictViolations, name)
			}
		}
	}

	if len(result.StrictViolations) > 0 || totalWeight == 0 {
		result.SimilarityScore = 0
		return result
	}
	result.SimilarityScore = 100 * matchedWeight / totalWeight
	return result
}

// hasMatchableData reports whether a listing carries enough identifying
// information to be matched at all: an address, or a city plus total area.
func hasMatchableData(l *models.Listing) bool {
	if l.Address != "" {
		return true
	}
	return l.City != "" && l.AreaTotal != nil
}

// FindBestMatch returns the best candidate property at or above the
// configured threshold, or nil when none qualifies or the listing lacks
// enough data to match.
func (m *Matcher) FindBestMatch(ctx context.Context, listing *models.Listing) (*models.MatchResult, error) {
	return m.findBestMatch(ctx, listing, m.config.Active(ctx))
}

func (m *Matcher) findBestMatch(ctx context.Context, listing *models.Listing, cfg *models.MatchConfig) (*models.MatchResult, error) {
	if !hasMatchableData(listing) {
		return nil, nil
	}

	candidates, err := m.store.FindCandidateProperties(ctx, listing.City, listing.PropertyType)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate properties: %w", err)
	}

	var best *models.MatchResult
	for _, cand := range candidates {
		r := m.CalculateSimilarity(listing, cand, cfg)
		if best == nil || r.SimilarityScore > best.SimilarityScore {
			best = r
		}
	}
	if best == nil || best.SimilarityScore < cfg.Threshold {
		return nil, nil
	}
	return best, nil
}

// newPropertyFromListing builds a canonical property record from a listing's
// normalized address parts and physical attributes.
func newPropertyFromListing(l *models.Listing) *models.Property {
	parts := address.Extract(l.City, l.District, l.Address)
	return &models.Property{
		ID:           uuid.New(),
		City:         parts.City,
		District:     parts.District,
		Street:       parts.Street,
		HouseNumber:  parts.HouseNumber,
		PropertyType: l.PropertyType,
		Rooms:        l.Rooms,
		Floor:        l.Floor,
		FloorsTotal:  l.FloorsTotal,
		AreaTotal:    l.AreaTotal,
		AreaLiving:   l.AreaLiving,
		AreaKitchen:  l.AreaKitchen,
	}
}

// FindOrCreateProperty links the listing to an existing property when one
// matches, or creates a fresh property from the listing's own attributes and
// reports the creation. When saveScore is set, the listing's property id and
// match score fields are stamped in place; a created property counts as a
// perfect self-match.
func (m *Matcher) FindOrCreateProperty(ctx context.Context, listing *models.Listing, saveScore bool) (*models.Property, bool, error) {
	return m.findOrCreateProperty(ctx, listing, saveScore, m.config.Active(ctx))
}

func (m *Matcher) findOrCreateProperty(ctx context.Context, listing *models.Listing, saveScore bool, cfg *models.MatchConfig) (*models.Property, bool, error) {
	if !hasMatchableData(listing) {
		return nil, false, fmt.Errorf("listing %s lacks address and city/area, cannot derive a property", listing.ID)
	}

	match, err := m.findBestMatch(ctx, listing, cfg)
	if err != nil {
		return nil, false, err
	}
	if match != nil {
		if saveScore {
			listing.PropertyID = &match.Property.ID
			score := match.SimilarityScore
			listing.MatchScore = &score
		}
		return match.Property, false, nil
	}

	prop := newPropertyFromListing(listing)
	if err := m.store.CreateProperty(ctx, prop); err != nil {
		return nil, false, fmt.Errorf("failed to create property: %w", err)
	}
	if saveScore {
		listing.PropertyID = &prop.ID
		score := 100.0
		listing.MatchScore = &score
	}
	return prop, true, nil
}

// RematchAllListings re-runs matching over every listing and applies the new
// property assignments in a single transaction. The configuration is read
// once at sweep start, so a config change mid-sweep never splits the corpus
// across two weight profiles. Individual failures are logged and tallied
// without aborting the sweep.
//
// Listings that keep their property count as matched, listings that moved (or
// gained) one count as created, and stamped scores below the active threshold
// are tracked separately so a weight change that degrades match quality shows
// up in the result.
func (m *Matcher) RematchAllListings(ctx context.Context) (*models.RematchResult, error) {
	listings, err := m.store.ListAllListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings for rematch: %w", err)
	}
	cfg := m.config.Active(ctx)

	result := &models.RematchResult{}
	var updates []models.ListingPropertyUpdate

	for _, l := range listings {
		result.Processed++

		prevProperty := l.PropertyID
		_, _, err := m.findOrCreateProperty(ctx, l, true, cfg)
		if err != nil {
			result.Failed++
			log.Printf("Warning: rematch failed for listing %s: %v", l.ID, err)
			continue
		}

		if prevProperty != nil && l.PropertyID != nil && *prevProperty == *l.PropertyID {
			result.Matched++
		} else {
			result.Created++
		}
		if l.MatchScore != nil && *l.MatchScore < cfg.Threshold {
			result.LowSimilarity++
		}

		updates = append(updates, models.ListingPropertyUpdate{
			ListingID:  l.ID,
			PropertyID: l.PropertyID,
			MatchScore: l.MatchScore,
		})
	}

	if err := m.store.ApplyListingPropertyUpdates(ctx, updates); err != nil {
		return nil, fmt.Errorf("failed to apply rematch updates: %w", err)
	}
	return result, nil
}

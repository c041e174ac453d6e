package services

import (
	"context"
	"strings"
	"time"

	"github.com/i1dus/listing-rater/models"
)

// FeatureVector is a flat numeric representation of a listing. Every key is
// always present; -1 marks an unknown categorical value and derived ratios
// default to 0 when their inputs are missing.
type FeatureVector map[string]float64

// propertyTypeCodes encodes the source's category names as small integers.
var propertyTypeCodes = map[string]float64{
	"Квартиры":                 0,
	"Комнаты":                  1,
	"Дома":                     2,
	"Участки":                  3,
	"Коммерческая недвижимость": 4,
}

// featureImportance is the static weight table reported alongside
// predictions. It mirrors what the heuristic model actually looks at.
var featureImportance = map[string]float64{
	"price_per_m2_normalized": 0.25,
	"has_metro":               0.15,
	"metro_proximity":         0.10,
	"floor_category":          0.12,
	"area_category":           0.12,
	"rooms":                   0.08,
	"data_completeness":       0.08,
	"living_area_ratio":       0.05,
	"days_since_published":    0.03,
}

// FeatureImportance returns the importance weight for a feature name, with a
// small floor for features the model barely uses.
func FeatureImportance(name string) float64 {
	if w, ok := featureImportance[name]; ok {
		return w
	}
	return 0.02
}

// FeatureExtractor turns listings into feature vectors, pulling regional
// price context from the stats service.
type FeatureExtractor struct {
	stats *StatsService
}

func NewFeatureExtractor(stats *StatsService) *FeatureExtractor {
	return &FeatureExtractor{stats: stats}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// metroProximity maps minutes-to-metro onto a closeness score.
func metroProximity(minutes *int) float64 {
	if minutes == nil {
		return 0.0
	}
	switch {
	case *minutes <= 5:
		return 1.0
	case *minutes <= 10:
		return 0.7
	case *minutes <= 15:
		return 0.4
	default:
		return 0.1
	}
}

func floorCategory(floor, floorsTotal *int) float64 {
	if floor == nil || floorsTotal == nil || *floorsTotal <= 0 {
		return -1
	}
	ratio := float64(*floor) / float64(*floorsTotal)
	switch {
	case ratio < 0.2:
		return 0
	case ratio < 0.4:
		return 1
	case ratio <= 0.7:
		return 2
	case ratio <= 0.9:
		return 3
	default:
		return 4
	}
}

func areaCategory(area *float64) float64 {
	if area == nil {
		return -1
	}
	switch {
	case *area < 20:
		return 0
	case *area < 30:
		return 1
	case *area <= 80:
		return 2
	case *area <= 120:
		return 3
	default:
		return 4
	}
}

// percentileRank places the value within the percentile ladder by linear
// interpolation between the bracketing points.
func percentileRank(value float64, percentiles map[int]float64) float64 {
	if len(percentiles) == 0 {
		return 50.0
	}
	points := []int{10, 25, 50, 75, 90}
	if value <= percentiles[points[0]] {
		return float64(points[0])
	}
	for i := 1; i < len(points); i++ {
		lo, hi := points[i-1], points[i]
		loV, hiV := percentiles[lo], percentiles[hi]
		if value <= hiV {
			if hiV == loV {
				return float64(hi)
			}
			frac := (value - loV) / (hiV - loV)
			return float64(lo) + frac*float64(hi-lo)
		}
	}
	return 100.0
}

// dataCompleteness is the filled fraction of the eight fields that matter
// most for a buyer's first look.
func dataCompleteness(l *models.Listing) float64 {
	filled := 0
	if l.Price != nil && *l.Price > 0 {
		filled++
	}
	if l.AreaTotal != nil && *l.AreaTotal > 0 {
		filled++
	}
	if l.Rooms != nil {
		filled++
	}
	if l.Floor != nil {
		filled++
	}
	if l.Metro != "" {
		filled++
	}
	if l.Address != "" {
		filled++
	}
	if l.Description != "" {
		filled++
	}
	if len(l.Images) > 0 {
		filled++
	}
	return float64(filled) / 8.0
}

// Extract builds the full feature vector for a listing.
func (e *FeatureExtractor) Extract(ctx context.Context, l *models.Listing) FeatureVector {
	f := make(FeatureVector, 32)

	if l.Rooms != nil {
		f["rooms"] = float64(*l.Rooms)
	} else {
		f["rooms"] = -1
	}
	if l.AreaTotal != nil {
		f["area_total"] = *l.AreaTotal
	} else {
		f["area_total"] = -1
	}
	if l.AreaLiving != nil {
		f["area_living"] = *l.AreaLiving
	} else {
		f["area_living"] = -1
	}
	if l.AreaKitchen != nil {
		f["area_kitchen"] = *l.AreaKitchen
	} else {
		f["area_kitchen"] = -1
	}
	if l.Floor != nil {
		f["floor"] = float64(*l.Floor)
	} else {
		f["floor"] = -1
	}
	if l.FloorsTotal != nil {
		f["floors_total"] = float64(*l.FloorsTotal)
	} else {
		f["floors_total"] = -1
	}

	if code, ok := propertyTypeCodes[l.PropertyType]; ok {
		f["property_type"] = code
	} else {
		f["property_type"] = -1
	}
	switch l.DealType {
	case models.DealTypeSale:
		f["deal_type"] = 0
	case models.DealTypeRent:
		f["deal_type"] = 1
	default:
		f["deal_type"] = -1
	}

	if l.Price != nil && *l.Price > 0 {
		f["price"] = float64(*l.Price)
	} else {
		f["price"] = -1
	}
	if l.Price != nil && *l.Price > 0 && l.AreaTotal != nil && *l.AreaTotal > 0 {
		f["price_per_m2"] = float64(*l.Price) / *l.AreaTotal
	} else {
		f["price_per_m2"] = -1
	}

	// Regional price context.
	f["price_per_m2_normalized"] = 0.0
	f["price_per_m2_percentile"] = 50.0
	if f["price_per_m2"] > 0 && e.stats != nil {
		stats := e.stats.GetRegionalStats(ctx, l.City, l.District, l.PropertyType)
		if stats.PricePerM2Std > 0 {
			f["price_per_m2_normalized"] = (f["price_per_m2"] - stats.PricePerM2Mean) / stats.PricePerM2Std
		}
		f["price_per_m2_percentile"] = percentileRank(f["price_per_m2"], stats.Percentiles)
	}

	f["has_metro"] = boolFeature(l.Metro != "")
	if l.MetroTime != nil {
		f["metro_time"] = float64(*l.MetroTime)
	} else {
		f["metro_time"] = -1
	}
	switch strings.ToLower(strings.TrimSpace(l.MetroTransport)) {
	case "walk":
		f["metro_transport"] = 0
	case "transport", "public":
		f["metro_transport"] = 1
	default:
		f["metro_transport"] = -1
	}
	f["metro_proximity"] = metroProximity(l.MetroTime)

	f["has_city"] = boolFeature(l.City != "")
	f["has_district"] = boolFeature(l.District != "")
	f["has_address"] = boolFeature(l.Address != "")

	f["floor_ratio"] = -1.0
	if l.Floor != nil && l.FloorsTotal != nil && *l.FloorsTotal > 0 {
		f["floor_ratio"] = float64(*l.Floor) / float64(*l.FloorsTotal)
	}
	f["floor_category"] = floorCategory(l.Floor, l.FloorsTotal)
	f["area_category"] = areaCategory(l.AreaTotal)

	f["living_area_ratio"] = -1.0
	if l.AreaLiving != nil && l.AreaTotal != nil && *l.AreaTotal > 0 {
		f["living_area_ratio"] = *l.AreaLiving / *l.AreaTotal
	}

	f["data_completeness"] = dataCompleteness(l)
	f["has_description"] = boolFeature(l.Description != "")
	f["has_images"] = boolFeature(len(l.Images) > 0)
	f["description_length"] = float64(len([]rune(l.Description)))

	now := time.Now()
	if !l.ParsedAt.IsZero() {
		f["days_since_parsed"] = now.Sub(l.ParsedAt).Hours() / 24
	} else {
		f["days_since_parsed"] = -1
	}
	if l.PublishedAt != nil {
		f["days_since_published"] = now.Sub(*l.PublishedAt).Hours() / 24
	} else {
		f["days_since_published"] = -1
	}
	f["is_active"] = boolFeature(l.IsActive)

	return f
}

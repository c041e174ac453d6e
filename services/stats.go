package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/i1dus/listing-rater/models"
)

// StatsStore is the storage surface the stats service needs: active listings
// with positive price and area, filtered by region and type.
type StatsStore interface {
	ListActiveListingsForStats(ctx context.Context, city, district, propertyType string) ([]*models.Listing, error)
}

// RegionalStats is the market profile for one (city, district, type) slice.
type RegionalStats struct {
	PricePerM2Mean   float64         `json:"price_per_m2_mean"`
	PricePerM2Median float64         `json:"price_per_m2_median"`
	PricePerM2Std    float64         `json:"price_per_m2_std"`
	PricePerM2Min    float64         `json:"price_per_m2_min"`
	PricePerM2Max    float64         `json:"price_per_m2_max"`
	Percentiles      map[int]float64 `json:"percentiles"`
	AreaMean         float64         `json:"area_mean"`
	RoomsDist        map[int]int     `json:"rooms_distribution"`
	SampleSize       int             `json:"sample_size"`
}

// defaultRegionalStats is the fallback profile used when a region slice has
// no usable listings. The numbers are rough Russian secondary-market figures
// so downstream normalization still produces something sane.
func defaultRegionalStats() *RegionalStats {
	return &RegionalStats{
		PricePerM2Mean:   200000,
		PricePerM2Median: 190000,
		PricePerM2Std:    60000,
		PricePerM2Min:    100000,
		PricePerM2Max:    500000,
		Percentiles: map[int]float64{
			10: 120000,
			25: 150000,
			50: 190000,
			75: 240000,
			90: 300000,
		},
		AreaMean:   50.0,
		RoomsDist:  map[int]int{},
		SampleSize: 0,
	}
}

// StatsCache caches computed regional profiles between refreshes.
type StatsCache interface {
	Get(key string) (*RegionalStats, bool)
	Set(key string, stats *RegionalStats)
	InvalidateCity(city string)
	InvalidateAll()
}

// MemoryStatsCache is a mutex-guarded in-process StatsCache.
type MemoryStatsCache struct {
	mu      sync.RWMutex
	entries map[string]*RegionalStats
}

func NewMemoryStatsCache() *MemoryStatsCache {
	return &MemoryStatsCache{entries: make(map[string]*RegionalStats)}
}

func (c *MemoryStatsCache) Get(key string) (*RegionalStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[key]
	return s, ok
}

func (c *MemoryStatsCache) Set(key string, stats *RegionalStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = stats
}

// InvalidateCity drops every cached slice for the given city.
func (c *MemoryStatsCache) InvalidateCity(city string) {
	prefix := strings.ToLower(strings.TrimSpace(city)) + "_"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryStatsCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*RegionalStats)
}

// StatsService computes and caches regional market statistics.
type StatsService struct {
	store StatsStore
	cache StatsCache
}

func NewStatsService(store StatsStore, cache StatsCache) *StatsService {
	if cache == nil {
		cache = NewMemoryStatsCache()
	}
	return &StatsService{store: store, cache: cache}
}

func statsCacheKey(city, district, propertyType string) string {
	return fmt.Sprintf("%s_%s_%s",
		strings.ToLower(strings.TrimSpace(city)),
		strings.ToLower(strings.TrimSpace(district)),
		strings.ToLower(strings.TrimSpace(propertyType)))
}

// GetRegionalStats returns the cached profile for the slice, computing it on
// a miss. Query failures fall back to the default profile so scoring never
// blocks on the database.
func (s *StatsService) GetRegionalStats(ctx context.Context, city, district, propertyType string) *RegionalStats {
	key := statsCacheKey(city, district, propertyType)
	if cached, ok := s.cache.Get(key); ok {
		return cached
	}

	listings, err := s.store.ListActiveListingsForStats(ctx, city, district, propertyType)
	if err != nil {
		log.Printf("Warning: failed to query listings for regional stats (%s): %v", key, err)
		return defaultRegionalStats()
	}

	stats := ComputeRegionalStats(listings)
	s.cache.Set(key, stats)
	return stats
}

// InvalidateCity drops cached slices for one city; empty city drops all.
func (s *StatsService) InvalidateCity(city string) {
	if strings.TrimSpace(city) == "" {
		s.cache.InvalidateAll()
		return
	}
	s.cache.InvalidateCity(city)
}

// ComputeRegionalStats aggregates per-square-meter prices, areas and room
// counts over the given listings. Listings without a positive price and area
// are skipped; an empty usable sample yields the default profile.
func ComputeRegionalStats(listings []*models.Listing) *RegionalStats {
	var prices []float64
	var areaSum float64
	rooms := make(map[int]int)

	for _, l := range listings {
		if l.Price == nil || l.AreaTotal == nil || *l.Price <= 0 || *l.AreaTotal <= 0 {
			continue
		}
		prices = append(prices, float64(*l.Price) / *l.AreaTotal)
		areaSum += *l.AreaTotal
		if l.Rooms != nil {
			rooms[*l.Rooms]++
		}
	}
	if len(prices) == 0 {
		return defaultRegionalStats()
	}

	sort.Float64s(prices)
	n := len(prices)

	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(n)

	var variance float64
	for _, p := range prices {
		d := p - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(n))

	percentiles := make(map[int]float64, 5)
	for _, p := range []int{10, 25, 50, 75, 90} {
		idx := n * p / 100
		if idx >= n {
			idx = n - 1
		}
		percentiles[p] = prices[idx]
	}

	return &RegionalStats{
		PricePerM2Mean:   mean,
		PricePerM2Median: prices[n/2],
		PricePerM2Std:    std,
		PricePerM2Min:    prices[0],
		PricePerM2Max:    prices[n-1],
		Percentiles:      percentiles,
		AreaMean:         areaSum / float64(n),
		RoomsDist:        rooms,
		SampleSize:       n,
	}
}

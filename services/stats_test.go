package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/i1dus/listing-rater/models"
)

type mockStatsStore struct {
	listings []*models.Listing
	err      error
	queries  int
}

func (m *mockStatsStore) ListActiveListingsForStats(ctx context.Context, city, district, propertyType string) ([]*models.Listing, error) {
	m.queries++
	return m.listings, m.err
}

func int64Ptr(i int64) *int64 { return &i }

func statsListing(price int64, area float64, rooms int) *models.Listing {
	return &models.Listing{
		Price:     int64Ptr(price),
		AreaTotal: floatPtr(area),
		Rooms:     intPtr(rooms),
	}
}

func TestComputeRegionalStats(t *testing.T) {
	// Prices per m2: 100000, 150000, 200000, 250000 (already distinct).
	listings := []*models.Listing{
		statsListing(5000000, 50, 1),
		statsListing(7500000, 50, 2),
		statsListing(10000000, 50, 2),
		statsListing(12500000, 50, 3),
	}

	stats := ComputeRegionalStats(listings)

	if stats.SampleSize != 4 {
		t.Fatalf("sample size = %d, want 4", stats.SampleSize)
	}
	if stats.PricePerM2Mean != 175000 {
		t.Errorf("mean = %.0f, want 175000", stats.PricePerM2Mean)
	}
	if stats.PricePerM2Median != 200000 {
		t.Errorf("median = %.0f, want 200000", stats.PricePerM2Median)
	}
	if stats.PricePerM2Min != 100000 || stats.PricePerM2Max != 250000 {
		t.Errorf("min/max = %.0f/%.0f", stats.PricePerM2Min, stats.PricePerM2Max)
	}
	wantStd := math.Sqrt((75000.0*75000 + 25000.0*25000 + 25000.0*25000 + 75000.0*75000) / 4)
	if math.Abs(stats.PricePerM2Std-wantStd) > 0.001 {
		t.Errorf("std = %.3f, want %.3f", stats.PricePerM2Std, wantStd)
	}
	if stats.AreaMean != 50 {
		t.Errorf("area mean = %.1f, want 50", stats.AreaMean)
	}
	if stats.RoomsDist[2] != 2 {
		t.Errorf("rooms dist = %v", stats.RoomsDist)
	}
	// Index-based percentiles: 4*10/100=0, 4*25/100=1, 4*50/100=2, 4*75/100=3, 4*90/100=3.
	if stats.Percentiles[10] != 100000 || stats.Percentiles[25] != 150000 ||
		stats.Percentiles[50] != 200000 || stats.Percentiles[75] != 250000 ||
		stats.Percentiles[90] != 250000 {
		t.Errorf("percentiles = %v", stats.Percentiles)
	}
}

func TestComputeRegionalStats_SkipsUnusable(t *testing.T) {
	listings := []*models.Listing{
		statsListing(5000000, 50, 1),
		{Price: int64Ptr(5000000)},          // no area
		{AreaTotal: floatPtr(40)},           // no price
		{Price: int64Ptr(0), AreaTotal: floatPtr(40)}, // zero price
	}

	stats := ComputeRegionalStats(listings)
	if stats.SampleSize != 1 {
		t.Fatalf("sample size = %d, want 1", stats.SampleSize)
	}
}

func TestComputeRegionalStats_EmptyFallsBack(t *testing.T) {
	stats := ComputeRegionalStats(nil)

	if stats.SampleSize != 0 {
		t.Fatalf("sample size = %d, want 0", stats.SampleSize)
	}
	if stats.PricePerM2Mean != 200000 || stats.PricePerM2Median != 190000 {
		t.Errorf("default mean/median = %.0f/%.0f", stats.PricePerM2Mean, stats.PricePerM2Median)
	}
	if stats.Percentiles[25] != 150000 || stats.Percentiles[90] != 300000 {
		t.Errorf("default percentiles = %v", stats.Percentiles)
	}
	if stats.AreaMean != 50.0 {
		t.Errorf("default area mean = %.1f", stats.AreaMean)
	}
}

func TestGetRegionalStats_Caches(t *testing.T) {
	store := &mockStatsStore{listings: []*models.Listing{statsListing(5000000, 50, 1)}}
	svc := NewStatsService(store, NewMemoryStatsCache())

	ctx := context.Background()
	svc.GetRegionalStats(ctx, "Москва", "Центр", "Квартиры")
	svc.GetRegionalStats(ctx, "москва", "центр", "квартиры") // same slice, different case

	if store.queries != 1 {
		t.Fatalf("store queried %d times, want 1", store.queries)
	}
}

// A failed query yields the default profile without poisoning the cache.
func TestGetRegionalStats_QueryErrorNotCached(t *testing.T) {
	store := &mockStatsStore{err: errors.New("connection refused")}
	svc := NewStatsService(store, NewMemoryStatsCache())

	ctx := context.Background()
	stats := svc.GetRegionalStats(ctx, "Москва", "", "")
	if stats.SampleSize != 0 {
		t.Fatalf("expected default profile on query error")
	}

	store.err = nil
	store.listings = []*models.Listing{statsListing(5000000, 50, 1)}
	stats = svc.GetRegionalStats(ctx, "Москва", "", "")
	if stats.SampleSize != 1 {
		t.Fatalf("expected fresh stats after recovery, got sample size %d", stats.SampleSize)
	}
}

func TestInvalidateCity(t *testing.T) {
	store := &mockStatsStore{listings: []*models.Listing{statsListing(5000000, 50, 1)}}
	svc := NewStatsService(store, NewMemoryStatsCache())

	ctx := context.Background()
	svc.GetRegionalStats(ctx, "Москва", "", "Квартиры")
	svc.GetRegionalStats(ctx, "Казань", "", "Квартиры")

	svc.InvalidateCity("Москва")

	svc.GetRegionalStats(ctx, "Казань", "", "Квартиры") // still cached
	if store.queries != 2 {
		t.Fatalf("store queried %d times, want 2", store.queries)
	}
	svc.GetRegionalStats(ctx, "Москва", "", "Квартиры") // recomputed
	if store.queries != 3 {
		t.Fatalf("store queried %d times, want 3", store.queries)
	}
}

func TestInvalidateCity_EmptyDropsAll(t *testing.T) {
	store := &mockStatsStore{listings: []*models.Listing{statsListing(5000000, 50, 1)}}
	svc := NewStatsService(store, NewMemoryStatsCache())

	ctx := context.Background()
	svc.GetRegionalStats(ctx, "Москва", "", "Квартиры")
	svc.GetRegionalStats(ctx, "Казань", "", "Квартиры")

	svc.InvalidateCity("")

	svc.GetRegionalStats(ctx, "Москва", "", "Квартиры")
	svc.GetRegionalStats(ctx, "Казань", "", "Квартиры")
	if store.queries != 4 {
		t.Fatalf("store queried %d times, want 4", store.queries)
	}
}
